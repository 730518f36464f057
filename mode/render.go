package mode

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/khaledhikmat/vs-feedback/model"
)

var (
	labelColor = color.New(color.FgCyan)
	okColor    = color.New(color.FgGreen)
	badColor   = color.New(color.FgRed)
)

// summary is a plain one-line rendering used to detect view changes.
func summary(v model.ViewState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "capture=%s", v.Capture)
	if v.Blob != nil {
		fmt.Fprintf(&b, " blob=%s(%d)", v.Blob.Name, v.Blob.Size())
	}
	fmt.Fprintf(&b, " upload=%d%%", v.Transfer.Progress)
	switch {
	case v.Transfer.Failed:
		b.WriteString(" (failed)")
	case v.Transfer.Result != "":
		fmt.Fprintf(&b, " -> %s", v.Transfer.Result)
	}
	fmt.Fprintf(&b, " processing=%.0f%%", v.Processing.Progress)
	if len(v.Processing.Preview) > 0 {
		fmt.Fprintf(&b, " preview=%dB", len(v.Processing.Preview))
	}
	fmt.Fprintf(&b, " objects=%s", objectCounts(v.Processing.Objects))
	if v.Location != nil {
		fmt.Fprintf(&b, " location=%.5f,%.5f", v.Location.Latitude, v.Location.Longitude)
	}
	return b.String()
}

// objectCounts groups detections by class, e.g. "car:2,person:1".
func objectCounts(objs []model.DetectedObject) string {
	if len(objs) == 0 {
		return "-"
	}
	counts := map[string]int{}
	for _, o := range objs {
		counts[o.Class]++
	}
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	parts := make([]string, len(classes))
	for i, c := range classes {
		parts[i] = fmt.Sprintf("%s:%d", c, counts[c])
	}
	return strings.Join(parts, ",")
}

func renderView(w io.Writer, v model.ViewState) {
	labelColor.Fprint(w, "capture    ")
	fmt.Fprintln(w, v.Capture)

	labelColor.Fprint(w, "source     ")
	if v.Blob != nil {
		fmt.Fprintf(w, "%s %s (%d bytes, %s)\n", v.Blob.Source, v.Blob.Name, v.Blob.Size(), v.Blob.MediaType)
	} else {
		fmt.Fprintln(w, "-")
	}

	labelColor.Fprint(w, "upload     ")
	switch {
	case v.Transfer.Failed:
		badColor.Fprintf(w, "%d%% failed\n", v.Transfer.Progress)
	case v.Transfer.Result != "":
		okColor.Fprintf(w, "%d%% %s\n", v.Transfer.Progress, v.Transfer.Result)
	default:
		fmt.Fprintf(w, "%d%%\n", v.Transfer.Progress)
	}

	labelColor.Fprint(w, "processing ")
	fmt.Fprintf(w, "%.0f%%", v.Processing.Progress)
	if len(v.Processing.Preview) > 0 {
		fmt.Fprintf(w, " (preview %d bytes)", len(v.Processing.Preview))
	}
	fmt.Fprintln(w)

	labelColor.Fprint(w, "objects    ")
	fmt.Fprintln(w, objectCounts(v.Processing.Objects))

	labelColor.Fprint(w, "location   ")
	if v.Location != nil {
		fmt.Fprintf(w, "%.5f, %.5f\n", v.Location.Latitude, v.Location.Longitude)
	} else {
		fmt.Fprintln(w, "-")
	}
}
