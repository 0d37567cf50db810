// Package attendance derives the attendance remark of an invigilator assignment
// from its timestamps and validates check-in/check-out edits.
package attendance

import (
	"time"

	"github.com/trezcool/invigil/core"
)

type Remark string

const (
	RemarkPending       Remark = "PENDING"
	RemarkCheckIn       Remark = "CHECK_IN"
	RemarkCheckInLate   Remark = "CHECK_IN_LATE"
	RemarkCheckOutEarly Remark = "CHECK_OUT_EARLY"
	RemarkCompleted     Remark = "COMPLETED"
	RemarkExpired       Remark = "EXPIRED"
	RemarkRejected      Remark = "REJECTED"
)

// DefaultGrace bounds check-in/check-out around the exam window.
const DefaultGrace = time.Hour

var allRemarks = map[Remark]bool{
	RemarkPending: true, RemarkCheckIn: true, RemarkCheckInLate: true, RemarkCheckOutEarly: true,
	RemarkCompleted: true, RemarkExpired: true, RemarkRejected: true,
}

func (r Remark) Valid() bool { return allRemarks[r] }

// Terminal reports whether no further timestamp transition applies.
func (r Remark) Terminal() bool { return r == RemarkRejected }

func (r Remark) String() string { return string(r) }

// Window is the authoritative time window of an exam.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

func (w Window) Hours() float64 { return w.Duration().Hours() }

func (w Window) IsZero() bool { return w.Start.IsZero() && w.End.IsZero() }

// Padded returns the window widened by d on both sides.
func (w Window) Padded(d time.Duration) Window {
	return Window{Start: w.Start.Add(-d), End: w.End.Add(d)}
}

// Overlaps reports whether both windows share a non-empty interval.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Record holds the inputs the remark is derived from. Zero times mean "absent".
type Record struct {
	CheckIn  time.Time
	CheckOut time.Time
	Declined bool
}

// Derive computes the remark of rec for an exam held during w.
// It is a pure function: identical inputs always yield the same remark.
func Derive(rec Record, w Window, grace time.Duration) Remark {
	if rec.Declined {
		return RemarkRejected
	}
	if rec.CheckIn.IsZero() {
		return RemarkPending
	}

	remark := RemarkCheckIn
	if rec.CheckIn.After(w.Start) {
		remark = RemarkCheckInLate
	}
	if rec.CheckOut.IsZero() {
		return remark
	}

	switch {
	case rec.CheckOut.Before(w.End):
		if remark == RemarkCheckInLate {
			return RemarkCheckInLate
		}
		return RemarkCheckOutEarly
	case !rec.CheckOut.After(w.End.Add(grace)):
		return RemarkCompleted
	default:
		return RemarkExpired
	}
}

// Validate checks a check-in/check-out edit against the exam window widened by grace.
// It returns *core.OutOfWindowError or *core.OrderingError.
func Validate(checkIn, checkOut time.Time, w Window, grace time.Duration) error {
	bounds := w.Padded(grace)
	if !checkIn.IsZero() && !bounds.Contains(checkIn) {
		return &core.OutOfWindowError{Field: "check_in", At: checkIn, From: bounds.Start, To: bounds.End}
	}
	if !checkOut.IsZero() && !bounds.Contains(checkOut) {
		return &core.OutOfWindowError{Field: "check_out", At: checkOut, From: bounds.Start, To: bounds.End}
	}
	if !checkOut.IsZero() && (checkIn.IsZero() || !checkIn.Before(checkOut)) {
		return &core.OrderingError{CheckIn: checkIn, CheckOut: checkOut}
	}
	return nil
}
