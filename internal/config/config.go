package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/clinlabel/sepsis/internal/models"
	"github.com/clinlabel/sepsis/internal/retry"
)

// ErrInvalid marks every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Unmatched-label policies for admissions without a suspected infection.
const (
	UnmatchedZero = "zero"
	UnmatchedNull = "null"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds the labeler configuration.
type Config struct {
	DatabaseDSN string `yaml:"database_dsn" json:"database_dsn"`
	DebugSQL    bool   `yaml:"debug_sql" json:"debug_sql"`

	Namespace         string `yaml:"namespace" json:"namespace"`
	Dataset           string `yaml:"dataset" json:"dataset"`
	OutputDataset     string `yaml:"output_dataset" json:"output_dataset"`
	CohortName        string `yaml:"cohort_name" json:"cohort_name"`
	FlowsheetTable    string `yaml:"flowsheet_table" json:"flowsheet_table"`
	PreExistingCohort string `yaml:"pre_existing_cohort" json:"pre_existing_cohort"`

	Limit       int  `yaml:"limit" json:"limit"`
	MinStayHour *int `yaml:"min_stay_hour" json:"min_stay_hour"`

	PrintOnly         bool `yaml:"print_only" json:"print_only"`
	ExtractFlowsheets bool `yaml:"extract_flowsheets" json:"extract_flowsheets"`
	SaveToDatabase    bool `yaml:"save_to_database" json:"save_to_database"`

	Windows   Windows   `yaml:"windows" json:"windows"`
	Infection Infection `yaml:"infection" json:"infection"`

	// FlowsheetNames replaces the display names a flowsheet component
	// matches, keyed by component name.
	FlowsheetNames map[string][]string `yaml:"flowsheet_names" json:"flowsheet_names"`

	PediatricScoring bool   `yaml:"pediatric_scoring" json:"pediatric_scoring"`
	UnmatchedLabel   string `yaml:"unmatched_label" json:"unmatched_label"`

	Verbose   bool   `yaml:"verbose" json:"verbose"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	MaxParallel      int     `yaml:"max_parallel" json:"max_parallel"`
	QueriesPerSecond float64 `yaml:"queries_per_second" json:"queries_per_second"`
	MetricsFile      string  `yaml:"metrics_file" json:"metrics_file"`

	Retry retry.Config `yaml:"retry" json:"retry"`
}

// Windows holds the current/prior bands per fact kind.
type Windows struct {
	Measurement models.VariantWindows `yaml:"measurement" json:"measurement"`
	Observation models.VariantWindows `yaml:"observation" json:"observation"`
	Drug        models.VariantWindows `yaml:"drug" json:"drug"`
}

// For returns the bands for a fact kind.
func (w Windows) For(kind models.FactKind) models.VariantWindows {
	switch kind {
	case models.FactObservation:
		return w.Observation
	case models.FactDrug:
		return w.Drug
	default:
		return w.Measurement
	}
}

// Infection holds the day offsets of the suspected-infection pairing.
type Infection struct {
	// AdmitLeadDays lets events start this many days before the admit date.
	AdmitLeadDays int `yaml:"admit_lead_days" json:"admit_lead_days"`
	// CultureBeforeAbxDays is how far a culture may precede the antibiotic.
	CultureBeforeAbxDays int `yaml:"culture_before_abx_days" json:"culture_before_abx_days"`
	// CultureAfterAbxDays is how far a culture may follow the antibiotic.
	CultureAfterAbxDays int `yaml:"culture_after_abx_days" json:"culture_after_abx_days"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	minStay := 0
	return Config{
		DatabaseDSN:      "file:sepsis.db?cache=shared",
		Namespace:        "local",
		Dataset:          "main",
		OutputDataset:    "main",
		CohortName:       "sepsis",
		FlowsheetTable:   "meas_vals_json",
		MinStayHour:      &minStay,
		SaveToDatabase:   true,
		Windows:          Windows{models.DefaultWindows(), models.DefaultWindows(), models.DefaultWindows()},
		Infection:        Infection{AdmitLeadDays: 1, CultureBeforeAbxDays: 3, CultureAfterAbxDays: 1},
		PediatricScoring: true,
		UnmatchedLabel:   UnmatchedZero,
		Verbose:          true,
		LogFormat:        "json",
		MaxParallel:      4,
		Retry:            retry.DefaultConfig(),
	}
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = def.DatabaseDSN
	}
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	if cfg.OutputDataset == "" {
		cfg.OutputDataset = def.OutputDataset
	}
	if cfg.CohortName == "" {
		cfg.CohortName = def.CohortName
	}
	if cfg.FlowsheetTable == "" {
		cfg.FlowsheetTable = def.FlowsheetTable
	}
	if cfg.UnmatchedLabel == "" {
		cfg.UnmatchedLabel = def.UnmatchedLabel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = def.MaxParallel
	}
	if cfg.QueriesPerSecond < 0 {
		cfg.QueriesPerSecond = 0
	}
	cfg.Retry = retry.ApplyDefaults(cfg.Retry)
	return cfg
}

// Validate fails fast on anything that would break extraction.
func (c Config) Validate() error {
	if c.Dataset == "" {
		return fmt.Errorf("%w: dataset is required", ErrInvalid)
	}
	if c.OutputDataset == "" {
		return fmt.Errorf("%w: output_dataset is required", ErrInvalid)
	}
	idents := map[string]string{
		"dataset":         c.Dataset,
		"output_dataset":  c.OutputDataset,
		"cohort_name":     c.CohortName,
		"flowsheet_table": c.FlowsheetTable,
	}
	for name, value := range idents {
		if !identRe.MatchString(value) {
			return fmt.Errorf("%w: %s %q is not a valid identifier", ErrInvalid, name, value)
		}
	}
	if c.PreExistingCohort != "" {
		for _, part := range strings.Split(c.PreExistingCohort, ".") {
			if !identRe.MatchString(part) {
				return fmt.Errorf("%w: pre_existing_cohort %q is not a valid relation name", ErrInvalid, c.PreExistingCohort)
			}
		}
	}
	if c.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalid)
	}
	for kind, w := range map[models.FactKind]models.VariantWindows{
		models.FactMeasurement: c.Windows.Measurement,
		models.FactObservation: c.Windows.Observation,
		models.FactDrug:        c.Windows.Drug,
	} {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("%w: %s windows: %v", ErrInvalid, kind, err)
		}
	}
	if c.Infection.AdmitLeadDays < 0 || c.Infection.CultureBeforeAbxDays < 0 || c.Infection.CultureAfterAbxDays < 0 {
		return fmt.Errorf("%w: infection offsets must not be negative", ErrInvalid)
	}
	if c.UnmatchedLabel != UnmatchedZero && c.UnmatchedLabel != UnmatchedNull {
		return fmt.Errorf("%w: unmatched_label must be %q or %q, got %q", ErrInvalid, UnmatchedZero, UnmatchedNull, c.UnmatchedLabel)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("%w: log_format must be json or console, got %q", ErrInvalid, c.LogFormat)
	}
	for name, names := range c.FlowsheetNames {
		if len(names) == 0 {
			return fmt.Errorf("%w: flowsheet_names.%s must list at least one name", ErrInvalid, name)
		}
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("%w: max_parallel must be positive", ErrInvalid)
	}
	return nil
}

// SourceTable returns the physical name of a fact-store relation.
func (c Config) SourceTable(name string) string {
	return c.Dataset + "." + name
}

// Table returns the physical name of an output relation, e.g. main.sepsis_platelet_rollup.
func (c Config) Table(suffix string) string {
	return c.OutputDataset + "." + c.CohortName + "_" + suffix
}

// QualifiedName returns the fully qualified name used in logs and errors.
func (c Config) QualifiedName(suffix string) string {
	return c.Namespace + "." + c.Table(suffix)
}

// AdmissionTable returns the admission relation: the override when set.
func (c Config) AdmissionTable() string {
	if c.PreExistingCohort != "" {
		if strings.Contains(c.PreExistingCohort, ".") {
			return c.PreExistingCohort
		}
		return c.OutputDataset + "." + c.PreExistingCohort
	}
	return c.Table("admission_rollup")
}

// FlowsheetRelation returns the unpacked flowsheet relation.
func (c Config) FlowsheetRelation() string {
	return c.OutputDataset + "." + c.FlowsheetTable
}
