package schedule

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/ledger"
)

// Reassign swaps invigilators on the slots of a report. mapping is keyed by assignment id.
// The exam duration of pending hours moves from each displaced invigilator to its replacement.
func (svc *Service) Reassign(ctx context.Context, actor, reportID string, mapping map[string]string) (ReportDetail, error) {
	if len(mapping) == 0 {
		return ReportDetail{}, core.NewFieldValidationError("invigilators", "no change requested")
	}

	var detail ReportDetail
	err := svc.withinTx(ctx, func(repo Repository, book *accountBook) error {
		report, err := repo.GetReport(ctx, reportID)
		if err != nil {
			return err
		}
		exam, err := repo.GetExam(ctx, report.ExamID)
		if err != nil {
			return errors.Wrap(err, "getting exam")
		}
		asgs, err := repo.QueryAssignments(ctx, &AssignmentFilter{ReportIDs: []string{report.ID}})
		if err != nil {
			return errors.Wrap(err, "querying assignments")
		}

		byID := make(map[string]Assignment, len(asgs))
		for _, a := range asgs {
			byID[a.ID] = a
		}
		for asgID, invID := range mapping {
			a, ok := byID[asgID]
			if !ok {
				return core.NewNotFoundError("assignment", asgID)
			}
			if invID == "" {
				return core.NewFieldValidationError("invigilators", fmt.Sprintf("no invigilator given for %s", asgID))
			}
			if a.HasAttendance() && a.InvigilatorID != invID {
				return core.NewFieldValidationError("invigilators", fmt.Sprintf("attendance already recorded for %s", asgID))
			}
		}

		// the resulting report must hold each invigilator once
		seen := make(map[string]bool, len(asgs))
		for _, a := range asgs {
			invID, remapped := mapping[a.ID]
			if !remapped {
				if a.Declined() {
					continue
				}
				invID = a.InvigilatorID
			}
			if seen[invID] {
				return core.NewConflictError(core.ErrDuplicateSlot, "report", report.ID)
			}
			seen[invID] = true
		}

		// deterministic order for locks and errors
		ids := make([]string, 0, len(mapping))
		for asgID := range mapping {
			ids = append(ids, asgID)
		}
		sort.Strings(ids)

		moved := func(d Duty) bool {
			_, ok := mapping[d.AssignmentID]
			return ok
		}
		changes := make([]Assignment, 0, len(ids))
		lockIDs := make([]string, 0, 2*len(ids))
		incoming := make([]string, 0, len(ids))
		for _, asgID := range ids {
			a := byID[asgID]
			invID := mapping[asgID]
			if a.InvigilatorID == invID && !a.Declined() {
				continue
			}
			changes = append(changes, a)
			lockIDs = append(lockIDs, a.InvigilatorID, invID)
			incoming = append(incoming, invID)
		}
		if err = svc.claim(ctx, repo, book, exam, lockIDs, incoming, moved); err != nil {
			return err
		}

		now := NowFunc().UTC()
		for _, a := range changes {
			invID := mapping[a.ID]
			if a.HoldsPending() {
				if _, err = book.apply(ctx, a.InvigilatorID, ledger.Release(exam.Window())); err != nil {
					return err
				}
			}
			if _, err = book.apply(ctx, invID, ledger.Assign(exam.Window())); err != nil {
				return err
			}

			a.InvigilatorID = invID
			a.Response = ResponsePending
			a.RejectReason = ""
			a.Remark = deriveRemark(a, exam, svc.conf.AttendanceGrace)
			a.UpdatedBy = actor
			a.UpdatedAt = now
			if _, err = repo.UpdateAssignment(ctx, a); err != nil {
				return errors.Wrap(err, "updating assignment")
			}
		}

		if exam, err = refreshOutput(ctx, repo, exam); err != nil {
			return err
		}
		full, err := examDetail(ctx, repo, exam)
		if err != nil {
			return err
		}
		for _, r := range full.Reports {
			if r.ID == report.ID {
				detail = r
			}
		}
		return nil
	})
	if err != nil {
		return ReportDetail{}, err
	}
	return detail, nil
}
