package component

import "github.com/clinlabel/sepsis/internal/models"

// Values indexes rollup values by column, then admission. A column is
// present once its rollup was collected, even when the rollup is empty.
type Values map[string]map[models.AdmissionKey]models.NullableFloat64

// Index collects rollups into Values.
func Index(rollups ...Rollup) Values {
	out := make(Values, len(rollups))
	for _, r := range rollups {
		out.Add(r.Variable.Column, r.Values)
	}
	return out
}

// Add records rows under column.
func (v Values) Add(column string, rows []models.ComponentValue) {
	m, ok := v[column]
	if !ok {
		m = make(map[models.AdmissionKey]models.NullableFloat64, len(rows))
		v[column] = m
	}
	for i := range rows {
		m[rows[i].Key()] = rows[i].Value
	}
}

// Has reports whether column was collected.
func (v Values) Has(column string) bool {
	_, ok := v[column]
	return ok
}

// Get returns the value of column for key, NULL when absent.
func (v Values) Get(column string, key models.AdmissionKey) models.NullableFloat64 {
	return v[column][key]
}
