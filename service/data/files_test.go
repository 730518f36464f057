package data

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/config"
)

type folderConfig struct {
	config.IService
	dir string
}

func (c folderConfig) GetInputFolder() string { return c.dir }

func TestFilesDB_AppendsErrors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "settings")
	svc := NewFilesDB(folderConfig{IService: config.NewHardCoded(), dir: dir})

	if err := svc.NewError(model.GenError("transfer", xerrors.New("boom"), map[string]interface{}{"attempt": "a1"}, "upload %s failed", "a1")); err != nil {
		t.Fatalf("new custom error: %v", err)
	}
	if err := svc.NewError(xerrors.New("plain")); err != nil {
		t.Fatalf("new plain error: %v", err)
	}
	if err := svc.NewError("not an error"); err != nil {
		t.Fatalf("new non-error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "errors.json"))
	if err != nil {
		t.Fatal(err)
	}
	var got []errorEntity
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	if got[0].Processor != "transfer" || got[0].Message != "upload a1 failed" || got[0].Inner != "boom" {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].Processor != "N/A" || got[1].Message != "plain" {
		t.Errorf("second entry = %+v", got[1])
	}
	if got[2].Message != "not an error" {
		t.Errorf("third entry = %+v", got[2])
	}
}

func TestFilesDB_SessionStats(t *testing.T) {
	dir := t.TempDir()
	svc := NewFilesDB(folderConfig{IService: config.NewHardCoded(), dir: dir})

	for i := 1; i <= 2; i++ {
		if err := svc.NewSessionStats(model.SessionStats{ID: "s", Uploads: i}); err != nil {
			t.Fatalf("stats: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "session-stats.json"))
	if err != nil {
		t.Fatal(err)
	}
	var got []model.SessionStats
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Uploads != 2 || got[1].Timestamp == 0 {
		t.Errorf("stats = %+v", got)
	}
}
