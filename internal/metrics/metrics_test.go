package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.ObserveStage("components", 2*time.Second, nil)
	r.ObserveStage("score", time.Second, errors.New("boom"))
	r.SetRows("main.sepsis_platelet_rollup", 12)
	r.SetLabels(3, 7, 0)

	if got := testutil.ToFloat64(r.stageFailures.WithLabelValues("score")); got != 1 {
		t.Fatalf("failures = %v", got)
	}
	if got := testutil.ToFloat64(r.relationRows.WithLabelValues("main.sepsis_platelet_rollup")); got != 12 {
		t.Fatalf("rows = %v", got)
	}
	if got := testutil.ToFloat64(r.labels.WithLabelValues("positive")); got != 3 {
		t.Fatalf("positive = %v", got)
	}
}

func TestWriteFile(t *testing.T) {
	r := New()
	r.SetRows("main.sepsis_sofa_score", 4)
	r.MarkSuccess(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "sepsis.prom")
	if err := r.WriteFile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"sepsis_relation_rows", "sepsis_last_success_timestamp_seconds 1.7e+09"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected %q in\n%s", want, data)
		}
	}
}
