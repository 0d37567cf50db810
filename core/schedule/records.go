package schedule

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/attendance"
	"github.com/trezcool/invigil/core/ledger"
)

func deriveRemark(a Assignment, exam Exam, grace time.Duration) attendance.Remark {
	return attendance.Derive(a.record(), exam.Window(), grace)
}

// EditAttendance replaces the check-in/check-out of an assignment, derives its remark
// and reconciles the invigilator ledger. Nothing changes when validation fails.
func (svc *Service) EditAttendance(ctx context.Context, actor, assignmentID string, edit AttendanceEdit) (Assignment, error) {
	var asg Assignment
	err := svc.withinTx(ctx, func(repo Repository, book *accountBook) error {
		a, err := repo.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		exam, err := repo.GetExam(ctx, a.ExamID)
		if err != nil {
			return errors.Wrap(err, "getting exam")
		}
		asg, err = svc.recordAttendance(ctx, repo, book, actor, a, exam, edit.CheckIn, edit.CheckOut)
		return err
	})
	if err != nil {
		return Assignment{}, err
	}
	return asg, nil
}

func (svc *Service) recordAttendance(
	ctx context.Context,
	repo Repository,
	book *accountBook,
	actor string,
	a Assignment,
	exam Exam,
	checkIn, checkOut time.Time,
) (Assignment, error) {
	if a.Declined() {
		return Assignment{}, core.NewFieldValidationError("assignment", "the offer was declined")
	}
	if !checkIn.IsZero() {
		checkIn = checkIn.UTC()
	}
	if !checkOut.IsZero() {
		checkOut = checkOut.UTC()
	}
	if err := attendance.Validate(checkIn, checkOut, exam.Window(), svc.conf.AttendanceGrace); err != nil {
		return Assignment{}, err
	}

	prev := ledger.Attendance{CheckIn: a.CheckIn, CheckOut: a.CheckOut}
	next := ledger.Attendance{CheckIn: checkIn, CheckOut: checkOut}
	if _, err := book.apply(ctx, a.InvigilatorID, ledger.Reconcile(prev, next, exam.Window())); err != nil {
		return Assignment{}, err
	}

	a.CheckIn, a.CheckOut = checkIn, checkOut
	if a.Response == ResponsePending && !checkIn.IsZero() {
		// showing up answers the offer
		a.Response = ResponseAccepted
	}
	a.Remark = deriveRemark(a, exam, svc.conf.AttendanceGrace)
	a.UpdatedBy = actor
	a.UpdatedAt = NowFunc().UTC()
	a, err := repo.UpdateAssignment(ctx, a)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "updating assignment")
	}
	return a, nil
}

// RespondToOffer accepts or declines an open invigilation offer.
// Declining is terminal and releases the pending hours of the duty.
func (svc *Service) RespondToOffer(ctx context.Context, actor, assignmentID string, resp OfferResponse) (Assignment, error) {
	var asg Assignment
	err := svc.withinTx(ctx, func(repo Repository, book *accountBook) error {
		a, err := repo.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if a.Response != ResponsePending {
			return core.NewFieldValidationError("response", "the offer was already answered")
		}
		now := NowFunc().UTC()
		if now.Before(a.TimeCreate) || now.After(a.TimeExpire) {
			return core.NewFieldValidationError("response", "the offer is not open")
		}
		exam, err := repo.GetExam(ctx, a.ExamID)
		if err != nil {
			return errors.Wrap(err, "getting exam")
		}

		if resp.Accept {
			a.Response = ResponseAccepted
		} else {
			if a.HasAttendance() {
				return core.NewFieldValidationError("response", "attendance was already recorded")
			}
			if _, err = book.apply(ctx, a.InvigilatorID, ledger.Release(exam.Window())); err != nil {
				return err
			}
			a.Response = ResponseDeclined
			a.RejectReason = core.CleanString(resp.Reason)
		}
		a.Remark = deriveRemark(a, exam, svc.conf.AttendanceGrace)
		a.UpdatedBy = actor
		a.UpdatedAt = now
		if asg, err = repo.UpdateAssignment(ctx, a); err != nil {
			return errors.Wrap(err, "updating assignment")
		}
		_, err = refreshOutput(ctx, repo, exam)
		return err
	})
	if err != nil {
		return Assignment{}, err
	}
	return asg, nil
}
