package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clinlabel/sepsis/internal/models"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Windows.Measurement != models.DefaultWindows() {
		t.Fatalf("unexpected measurement windows: %+v", cfg.Windows.Measurement)
	}
	if !cfg.SaveToDatabase || !cfg.PediatricScoring {
		t.Fatalf("expected save_to_database and pediatric_scoring on by default")
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	data := []byte(`
dataset: omop
cohort_name: cohort_a
limit: 100
windows:
  drug:
    current: {start_days: -1, end_days: 1}
    prior: {start_days: -7, end_days: -3}
`)
	cfg, err := Load(data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dataset != "omop" || cfg.CohortName != "cohort_a" || cfg.Limit != 100 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.OutputDataset != "main" {
		t.Fatalf("expected default output dataset, got %s", cfg.OutputDataset)
	}
	if cfg.Windows.Drug.Current != (models.Window{StartDays: -1, EndDays: 1}) {
		t.Fatalf("drug window not parsed: %+v", cfg.Windows.Drug)
	}
	if cfg.Windows.Measurement != models.DefaultWindows() {
		t.Fatalf("measurement window should keep default, got %+v", cfg.Windows.Measurement)
	}
	if cfg.MinStayHour == nil || *cfg.MinStayHour != 0 {
		t.Fatalf("expected default min_stay_hour 0")
	}
	if !cfg.SaveToDatabase {
		t.Fatalf("expected save_to_database to stay true")
	}
}

func TestOutputDatasetStaysSeparateFromInput(t *testing.T) {
	cfg, err := Load([]byte("dataset: omop_cdm\noutput_dataset: \"\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dataset != "omop_cdm" || cfg.OutputDataset != "main" {
		t.Fatalf("dataset=%s output_dataset=%s", cfg.Dataset, cfg.OutputDataset)
	}
	if got := cfg.Table("label"); got != "main.sepsis_label" {
		t.Fatalf("relation = %s", got)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load([]byte("windows: [")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidateRejectsOverlappingWindows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Windows.Observation.Prior = models.Window{StartDays: -10, EndDays: -1}
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for overlapping windows, got %v", err)
	}
}

func TestValidateRejectsInvertedWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Windows.Drug.Current = models.Window{StartDays: 2, EndDays: -2}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidateRequiresIdentifiers(t *testing.T) {
	cases := map[string]func(*Config){
		"missing dataset":  func(c *Config) { c.Dataset = "" },
		"bad cohort name":  func(c *Config) { c.CohortName = "drop table;" },
		"bad override":     func(c *Config) { c.PreExistingCohort = "a.b-c" },
		"bad unmatched":    func(c *Config) { c.UnmatchedLabel = "maybe" },
		"negative limit":   func(c *Config) { c.Limit = -1 },
		"bad log format":   func(c *Config) { c.LogFormat = "xml" },
		"negative offsets": func(c *Config) { c.Infection.CultureBeforeAbxDays = -1 },
		"zero parallelism": func(c *Config) { c.MaxParallel = 0 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestRelationNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Namespace = "proj"
	cfg.OutputDataset = "results"
	if got := cfg.Table("platelet_rollup_prior"); got != "results.sepsis_platelet_rollup_prior" {
		t.Fatalf("unexpected table: %s", got)
	}
	if got := cfg.QualifiedName("sofa_score"); got != "proj.results.sepsis_sofa_score" {
		t.Fatalf("unexpected qualified name: %s", got)
	}
	if got := cfg.AdmissionTable(); got != "results.sepsis_admission_rollup" {
		t.Fatalf("unexpected admission table: %s", got)
	}
	cfg.PreExistingCohort = "other.cohort"
	if got := cfg.AdmissionTable(); got != "other.cohort" {
		t.Fatalf("expected override, got %s", got)
	}
}

func TestLoadFileAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sepsis.yaml")
	if err := os.WriteFile(path, []byte("dataset: omop\nlimit: 5\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SEPSIS_LIMIT", "42")
	t.Setenv("SEPSIS_SAVE_TO_DATABASE", "false")
	t.Setenv("SEPSIS_COHORT_NAME", "envcohort")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.Limit != 42 {
		t.Fatalf("expected env limit 42, got %d", cfg.Limit)
	}
	if cfg.SaveToDatabase {
		t.Fatalf("expected save_to_database overridden to false")
	}
	if cfg.CohortName != "envcohort" || cfg.Dataset != "omop" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadFlowsheetNamesAndRetry(t *testing.T) {
	data := []byte(`
dataset: omop
flowsheet_names:
  map: ["MAP (mmHg)", "Arterial Line MAP"]
retry:
  max_retries: 5
  initial_backoff: 2s
`)
	cfg, err := Load(data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.FlowsheetNames["map"]; len(got) != 2 || got[1] != "Arterial Line MAP" {
		t.Fatalf("unexpected flowsheet names: %v", cfg.FlowsheetNames)
	}
	if cfg.Retry.MaxRetries != 5 || cfg.Retry.InitialBackoff.Seconds() != 2 {
		t.Fatalf("unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Retry.MaxBackoff == 0 {
		t.Fatalf("expected retry defaults to fill max_backoff")
	}
}

func TestValidateRejectsEmptyFlowsheetNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlowsheetNames = map[string][]string{"map": nil}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
