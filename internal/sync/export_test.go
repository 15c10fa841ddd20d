package sync

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

func TestExportJSON_Sorted(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 0, 0, 42, time.UTC)
	cursors := model.Cursors{
		"zeta":  {LastEventID: "ev-2", LastTimestamp: ts},
		"alpha": {LastEventID: "ev-1", LastTimestamp: ts},
	}
	var a, b bytes.Buffer
	if err := ExportJSON(cursors, ts, &a); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	_ = ExportJSON(cursors, ts, &b)
	if a.String() != b.String() {
		t.Error("export is not deterministic")
	}
	if strings.Index(a.String(), "alpha") > strings.Index(a.String(), "zeta") {
		t.Errorf("spaces are not sorted:\n%s", a.String())
	}
}

func TestImportJSON(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 0, 0, 42, time.UTC)
	var buf bytes.Buffer
	_ = ExportJSON(model.Cursors{"sp": {LastEventID: "ev-1", LastTimestamp: ts}}, ts, &buf)

	got, err := ImportJSON(&buf)
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if c := got["sp"]; c.LastEventID != "ev-1" || !c.LastTimestamp.Equal(ts) {
		t.Errorf("sp = %+v", c)
	}
}

func TestImportJSON_Errors(t *testing.T) {
	for name, in := range map[string]string{
		"garbage":     "not json",
		"bad version": `{"version": 7, "spaces": []}`,
	} {
		if _, err := ImportJSON(strings.NewReader(in)); err == nil {
			t.Errorf("%s: ImportJSON should fail", name)
		}
	}
}
