package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ComponentValue is one admission's summary value for a component variable.
type ComponentValue struct {
	bun.BaseModel `bun:"table:component_rollup,alias:cr"`

	PersonID      int64           `bun:"person_id,notnull" json:"person_id"`
	AdmitDate     time.Time       `bun:"admit_date,notnull" json:"admit_date"`
	AdmitDatetime time.Time       `bun:"admit_datetime,notnull" json:"admit_datetime"`
	Measure       string          `bun:"measure,notnull" json:"measure"`
	Value         NullableFloat64 `bun:"value,type:double precision" json:"value"`
}

// Key identifies the admission of the value.
func (c *ComponentValue) Key() AdmissionKey {
	return AdmissionKey{PersonID: c.PersonID, AdmitDate: DateOf(c.AdmitDate)}
}
