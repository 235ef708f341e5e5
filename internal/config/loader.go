package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load parses YAML bytes on top of the defaults.
func Load(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse yaml: %v", ErrInvalid, err)
	}
	return applyDefaults(cfg), nil
}

// LoadFile reads a YAML file, when given, and applies SEPSIS_* environment overrides.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Load(data); err != nil {
			return Config{}, err
		}
	}
	return ApplyEnv(cfg), nil
}

// ApplyEnv overrides scalar settings from SEPSIS_* environment variables.
func ApplyEnv(cfg Config) Config {
	v := viper.New()
	v.SetEnvPrefix("SEPSIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	str := map[string]*string{
		"database_dsn":        &cfg.DatabaseDSN,
		"namespace":           &cfg.Namespace,
		"dataset":             &cfg.Dataset,
		"output_dataset":      &cfg.OutputDataset,
		"cohort_name":         &cfg.CohortName,
		"flowsheet_table":     &cfg.FlowsheetTable,
		"pre_existing_cohort": &cfg.PreExistingCohort,
		"unmatched_label":     &cfg.UnmatchedLabel,
		"log_format":          &cfg.LogFormat,
		"metrics_file":        &cfg.MetricsFile,
	}
	for key, dst := range str {
		_ = v.BindEnv(key)
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	flags := map[string]*bool{
		"debug_sql":          &cfg.DebugSQL,
		"print_only":         &cfg.PrintOnly,
		"extract_flowsheets": &cfg.ExtractFlowsheets,
		"save_to_database":   &cfg.SaveToDatabase,
		"pediatric_scoring":  &cfg.PediatricScoring,
		"verbose":            &cfg.Verbose,
	}
	for key, dst := range flags {
		_ = v.BindEnv(key)
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	_ = v.BindEnv("limit")
	if v.IsSet("limit") {
		cfg.Limit = v.GetInt("limit")
	}
	_ = v.BindEnv("min_stay_hour")
	if v.IsSet("min_stay_hour") {
		h := v.GetInt("min_stay_hour")
		cfg.MinStayHour = &h
	}
	_ = v.BindEnv("max_parallel")
	if v.IsSet("max_parallel") {
		cfg.MaxParallel = v.GetInt("max_parallel")
	}
	_ = v.BindEnv("queries_per_second")
	if v.IsSet("queries_per_second") {
		cfg.QueriesPerSecond = v.GetFloat64("queries_per_second")
	}

	return applyDefaults(cfg)
}
