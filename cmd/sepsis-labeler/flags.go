package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/clinlabel/sepsis/internal/config"
	"github.com/clinlabel/sepsis/internal/models"
)

// runOverrides holds the per-run flags that override the config file.
type runOverrides struct {
	dataset           string
	outputDataset     string
	cohortName        string
	flowsheetTable    string
	preExistingCohort string
	limit             int
	minStayHour       int
	printOnly         bool
	extractFlowsheets bool
	saveToDatabase    bool
	adultOnly         bool
	unmatchedLabel    string
	maxParallel       int
	queriesPerSecond  float64
	metricsFile       string
}

func (o *runOverrides) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.dataset, "dataset", "", "schema holding the OMOP fact store")
	f.StringVar(&o.outputDataset, "output-dataset", "", "schema receiving the output relations")
	f.StringVar(&o.cohortName, "cohort-name", "", "prefix of every output relation")
	f.StringVar(&o.flowsheetTable, "flowsheet-table", "", "name of the unpacked flowsheet relation")
	f.StringVar(&o.preExistingCohort, "pre-existing-cohort", "", "read admissions from this relation instead of building them")
	f.IntVar(&o.limit, "limit", 0, "cap the number of qualifying visits (0 = no cap)")
	f.IntVar(&o.minStayHour, "min-stay-hour", 0, "keep visits longer than this many hours")
	f.BoolVar(&o.printOnly, "print-only", false, "log the plan and queries without running them")
	f.BoolVar(&o.extractFlowsheets, "extract-flowsheets", false, "unpack flowsheet observations first")
	f.BoolVar(&o.saveToDatabase, "save-to-database", true, "materialize relations; false prints labels as JSON lines")
	f.BoolVar(&o.adultOnly, "adult-only", false, "score with adult cut points only")
	f.StringVar(&o.unmatchedLabel, "unmatched-label", "", "label of admissions without suspected infection: zero or null")
	f.IntVar(&o.maxParallel, "max-parallel", 0, "concurrent component extractions")
	f.Float64Var(&o.queriesPerSecond, "queries-per-second", 0, "throttle fact-store queries (0 = unlimited)")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write prometheus metrics to this file")
}

func (o *runOverrides) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	str := map[string]struct {
		dst *string
		val string
	}{
		"dataset":             {&cfg.Dataset, o.dataset},
		"output-dataset":      {&cfg.OutputDataset, o.outputDataset},
		"cohort-name":         {&cfg.CohortName, o.cohortName},
		"flowsheet-table":     {&cfg.FlowsheetTable, o.flowsheetTable},
		"pre-existing-cohort": {&cfg.PreExistingCohort, o.preExistingCohort},
		"unmatched-label":     {&cfg.UnmatchedLabel, o.unmatchedLabel},
		"metrics-file":        {&cfg.MetricsFile, o.metricsFile},
	}
	for name, s := range str {
		if f.Changed(name) {
			*s.dst = s.val
		}
	}

	if f.Changed("limit") {
		cfg.Limit = o.limit
	}
	if f.Changed("min-stay-hour") {
		h := o.minStayHour
		cfg.MinStayHour = &h
	}
	if f.Changed("print-only") {
		cfg.PrintOnly = o.printOnly
	}
	if f.Changed("extract-flowsheets") {
		cfg.ExtractFlowsheets = o.extractFlowsheets
	}
	if f.Changed("save-to-database") {
		cfg.SaveToDatabase = o.saveToDatabase
	}
	if f.Changed("adult-only") {
		cfg.PediatricScoring = !o.adultOnly
	}
	if f.Changed("max-parallel") {
		cfg.MaxParallel = o.maxParallel
	}
	if f.Changed("queries-per-second") {
		cfg.QueriesPerSecond = o.queriesPerSecond
	}
}

// writeLabels prints labeled admissions as JSON lines.
func writeLabels(w io.Writer, rows []models.LabeledAdmission) error {
	enc := json.NewEncoder(w)
	for i := range rows {
		if err := enc.Encode(&rows[i]); err != nil {
			return err
		}
	}
	return nil
}
