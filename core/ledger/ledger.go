// Package ledger holds the hour arithmetic of the invigilator ledger.
//
// Each invigilator owns two counters: cumulative hours (confirmed work) and
// pending hours (assigned but not yet confirmed). Both are clamped at zero;
// the arithmetic never fails, it reports the delta it actually applied.
package ledger

import (
	"math"
	"time"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/attendance"
)

// precision used to absorb float drift after repeated reversals
const precision = 1e6

type Delta struct {
	Cumulative float64 `json:"cumulative"`
	Pending    float64 `json:"pending"`
}

func (d Delta) Add(o Delta) Delta {
	return Delta{Cumulative: d.Cumulative + o.Cumulative, Pending: d.Pending + o.Pending}
}

func (d Delta) Neg() Delta { return Delta{Cumulative: -d.Cumulative, Pending: -d.Pending} }

func (d Delta) IsZero() bool { return d.Cumulative == 0 && d.Pending == 0 }

// Account is the ledger of one invigilator.
type Account struct {
	UserID     string  `json:"user_id"`
	Cumulative float64 `json:"cumulative_hours"`
	Pending    float64 `json:"pending_hours"`
}

// Apply adds d to the account, clamping both counters at zero,
// and returns the delta that was actually applied.
func (a *Account) Apply(d Delta) Delta {
	oldCum, oldPen := a.Cumulative, a.Pending
	a.Cumulative = clamp(a.Cumulative + d.Cumulative)
	a.Pending = clamp(a.Pending + d.Pending)
	return Delta{Cumulative: round(a.Cumulative - oldCum), Pending: round(a.Pending - oldPen)}
}

func (a Account) Total() float64 { return a.Cumulative + a.Pending }

func clamp(v float64) float64 {
	v = round(v)
	if v < 0 {
		return 0
	}
	return v
}

func round(v float64) float64 {
	return math.Round(v*precision) / precision
}

// Attendance is the part of an assignment the ledger cares about.
type Attendance struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// Credited reports whether the attendance has been turned into cumulative hours.
func (a Attendance) Credited() bool {
	return !a.CheckIn.IsZero() && !a.CheckOut.IsZero()
}

// Hours returns the worked hours of a, limited to the exam window.
func (a Attendance) Hours(w attendance.Window) float64 {
	if !a.Credited() {
		return 0
	}
	return OverlapHours(a.CheckIn, a.CheckOut, w)
}

// OverlapHours returns the length in hours of [from, to] ∩ w.
func OverlapHours(from, to time.Time, w attendance.Window) float64 {
	if w.Start.After(from) {
		from = w.Start
	}
	if w.End.Before(to) {
		to = w.End
	}
	if !from.Before(to) {
		return 0
	}
	return round(to.Sub(from).Hours())
}

// Assign is the delta of offering a duty over w.
func Assign(w attendance.Window) Delta { return Delta{Pending: round(w.Hours())} }

// Release is the delta of withdrawing a duty over w that still holds pending hours.
func Release(w attendance.Window) Delta { return Assign(w).Neg() }

// Reconcile returns the delta of moving an accepted assignment from prev to next.
// A credited prev attendance is reversed (cumulative -= worked, pending += duration)
// then a credited next attendance is applied (cumulative += worked, pending -= duration).
func Reconcile(prev, next Attendance, w attendance.Window) Delta {
	var d Delta
	if prev.Credited() {
		d.Cumulative -= prev.Hours(w)
		d.Pending += w.Hours()
	}
	if next.Credited() {
		d.Cumulative += next.Hours(w)
		d.Pending -= w.Hours()
	}
	d.Cumulative, d.Pending = round(d.Cumulative), round(d.Pending)
	return d
}

// Ledger applies deltas to accounts and logs every clamped discrepancy.
type Ledger struct {
	log core.Logger
}

func New(log core.Logger) *Ledger {
	return &Ledger{log: log}
}

// Apply applies d to acc. When clamping altered the result, the discrepancy is logged at warn level.
func (l *Ledger) Apply(acc *Account, d Delta) Delta {
	applied := acc.Apply(d)
	if applied != (Delta{Cumulative: round(d.Cumulative), Pending: round(d.Pending)}) && l.log != nil {
		l.log.Warn("ledger: clamped hour adjustment", map[string]interface{}{
			"user_id":   acc.UserID,
			"requested": d,
			"applied":   applied,
		})
	}
	return applied
}
