package data

import "github.com/khaledhikmat/vs-feedback/model"

type IService interface {
	NewError(err interface{}) error
	NewSessionStats(stats model.SessionStats) error
}
