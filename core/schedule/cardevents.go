package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
)

// RecordCardEvent applies a card-reader tap to the nearest open assignment of the card holder.
// The first check-in wins and the latest check-out wins; repeated events are ignored.
func (svc *Service) RecordCardEvent(ctx context.Context, ev CardEvent) (CardEventResult, error) {
	ev.CardID = core.CleanString(ev.CardID)
	if ev.CardID == "" {
		return CardEventResult{}, core.NewFieldValidationError("card_id", "this field is required")
	}
	if ev.Direction != DirectionIn && ev.Direction != DirectionOut {
		return CardEventResult{}, core.NewFieldValidationError("direction", "must be one of [in out]")
	}
	if ev.At.IsZero() {
		return CardEventResult{}, core.NewFieldValidationError("at", "this field is required")
	}

	usr, err := svc.users.GetByCardID(ctx, ev.CardID)
	if err != nil {
		return CardEventResult{}, err
	}
	ev.UserID = usr.ID
	ev.At = ev.At.UTC()

	var res CardEventResult
	err = svc.withinTx(ctx, func(repo Repository, book *accountBook) error {
		if err := repo.CreateCardEvent(ctx, ev); err != nil {
			if errors.Is(err, core.ErrDuplicateEvent) {
				res.Ignored = true
				return nil
			}
			return errors.Wrap(err, "saving card event")
		}

		duty, err := svc.nearestDuty(ctx, repo, ev)
		if err != nil {
			return err
		}
		a, err := repo.GetAssignment(ctx, duty.AssignmentID)
		if err != nil {
			return errors.Wrap(err, "getting assignment")
		}
		exam, err := repo.GetExam(ctx, a.ExamID)
		if err != nil {
			return errors.Wrap(err, "getting exam")
		}

		checkIn, checkOut := a.CheckIn, a.CheckOut
		switch ev.Direction {
		case DirectionIn:
			if !checkIn.IsZero() {
				res.Assignment, res.Ignored = a, true
				return nil
			}
			checkIn = ev.At
		case DirectionOut:
			if !checkOut.IsZero() && !ev.At.After(checkOut) {
				res.Assignment, res.Ignored = a, true
				return nil
			}
			checkOut = ev.At
		}
		res.Assignment, err = svc.recordAttendance(ctx, repo, book, usr.ID, a, exam, checkIn, checkOut)
		return err
	})
	if err != nil {
		return CardEventResult{}, err
	}
	return res, nil
}

// nearestDuty returns the open duty of ev's user whose window, widened by the attendance
// grace, contains ev.At. Check-ins are matched against the exam start, check-outs against the end.
func (svc *Service) nearestDuty(ctx context.Context, repo Repository, ev CardEvent) (Duty, error) {
	duties, err := repo.QueryDuties(ctx, ev.UserID)
	if err != nil {
		return Duty{}, errors.Wrap(err, "querying duties")
	}

	var (
		best     Duty
		bestDist time.Duration = -1
	)
	for _, d := range duties {
		if d.Response == ResponseDeclined || !d.Window().Padded(svc.conf.AttendanceGrace).Contains(ev.At) {
			continue
		}
		anchor := d.StartAt
		if ev.Direction == DirectionOut {
			anchor = d.EndAt
		}
		dist := ev.At.Sub(anchor)
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist || (dist == bestDist && d.StartAt.Before(best.StartAt)) {
			best, bestDist = d, dist
		}
	}
	if bestDist < 0 {
		return Duty{}, core.NewNotFoundError("assignment", fmt.Sprintf("card %s at %s", ev.CardID, ev.At.Format(time.RFC3339)))
	}
	return best, nil
}
