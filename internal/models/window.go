package models

import (
	"fmt"
	"time"
)

// Window is a half-open band of calendar days relative to the index date:
// a timestamp t is inside when date(index)+StartDays <= date(t) < date(index)+EndDays.
type Window struct {
	StartDays int `yaml:"start_days" json:"start_days"`
	EndDays   int `yaml:"end_days" json:"end_days"`
}

// Validate rejects empty or inverted windows.
func (w Window) Validate() error {
	if w.EndDays <= w.StartDays {
		return fmt.Errorf("window end (%d) must be after start (%d)", w.EndDays, w.StartDays)
	}
	return nil
}

// Bounds returns the first included day and the first excluded day.
func (w Window) Bounds(index time.Time) (time.Time, time.Time) {
	day := DateOf(index)
	return day.AddDate(0, 0, w.StartDays), day.AddDate(0, 0, w.EndDays)
}

// Contains reports whether the calendar date of t falls inside the window.
func (w Window) Contains(index, t time.Time) bool {
	from, to := w.Bounds(index)
	d := DateOf(t)
	return !d.Before(from) && d.Before(to)
}

// Overlaps reports whether any calendar day of [start, end] falls inside the window.
func (w Window) Overlaps(index, start, end time.Time) bool {
	from, to := w.Bounds(index)
	s, e := DateOf(start), DateOf(end)
	if e.Before(s) {
		e = s
	}
	return !e.Before(from) && s.Before(to)
}

// Intersects reports whether two windows share at least one day.
func (w Window) Intersects(o Window) bool {
	return w.StartDays < o.EndDays && o.StartDays < w.EndDays
}

// VariantWindows pairs the current and prior bands of one fact kind.
type VariantWindows struct {
	Current Window `yaml:"current" json:"current"`
	Prior   Window `yaml:"prior" json:"prior"`
}

// For returns the band of the variant.
func (v VariantWindows) For(variant WindowVariant) Window {
	if variant == VariantPrior {
		return v.Prior
	}
	return v.Current
}

// Validate checks both bands and that they never overlap.
func (v VariantWindows) Validate() error {
	if err := v.Current.Validate(); err != nil {
		return fmt.Errorf("current: %w", err)
	}
	if err := v.Prior.Validate(); err != nil {
		return fmt.Errorf("prior: %w", err)
	}
	if v.Current.Intersects(v.Prior) {
		return fmt.Errorf("current %v and prior %v windows overlap", v.Current, v.Prior)
	}
	return nil
}

// DefaultWindows returns the index-anchored bands used for every fact kind:
// current covers index-2d..index+1d, prior covers index-10d..index-3d.
func DefaultWindows() VariantWindows {
	return VariantWindows{
		Current: Window{StartDays: -2, EndDays: 2},
		Prior:   Window{StartDays: -10, EndDays: -2},
	}
}
