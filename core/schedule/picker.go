package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/attendance"
	"github.com/trezcool/invigil/core/user"
)

// gapConflict returns the first duty that leaves less than minGap of rest around w.
// Two windows conflict when w2.Start < w1.End+gap and w1.Start < w2.End+gap.
func gapConflict(duties []Duty, w attendance.Window, minGap time.Duration, skip func(Duty) bool) (Duty, bool) {
	padded := w.Padded(minGap)
	for _, d := range duties {
		if d.Response == ResponseDeclined || (skip != nil && skip(d)) {
			continue
		}
		if padded.Overlaps(d.Window()) {
			return d, true
		}
	}
	return Duty{}, false
}

// checkDuty reports whether invigilatorID can take a slot of exam. Duties matched by skip
// are ignored. A second slot of the same exam is a *core.ConflictError; a duty of another
// exam closer than the minimum rest gap is a *core.InsufficientGapError.
func (svc *Service) checkDuty(ctx context.Context, repo Repository, invigilatorID string, exam Exam, skip func(Duty) bool) error {
	duties, err := repo.QueryDuties(ctx, invigilatorID)
	if err != nil {
		return errors.Wrap(err, "querying duties")
	}
	for _, d := range duties {
		if d.ExamID == exam.ID && d.Response != ResponseDeclined && (skip == nil || !skip(d)) {
			return core.NewConflictError(core.ErrDuplicateSlot, "exam", exam.ID)
		}
	}
	skipOwn := func(d Duty) bool { return d.ExamID == exam.ID || (skip != nil && skip(d)) }
	if d, ok := gapConflict(duties, exam.Window(), svc.conf.MinRestGap, skipOwn); ok {
		return &core.InsufficientGapError{InvigilatorID: invigilatorID, ExamID: d.ExamID, MinGap: svc.conf.MinRestGap}
	}
	return nil
}

// claim locks the accounts of lockIDs, then runs the duty checks of holders under the lock.
func (svc *Service) claim(ctx context.Context, repo Repository, book *accountBook, exam Exam, lockIDs, holders []string, skip func(Duty) bool) error {
	if err := book.lock(ctx, lockIDs...); err != nil {
		return err
	}
	for _, id := range holders {
		if err := svc.checkDuty(ctx, repo, id, exam, skip); err != nil {
			return err
		}
	}
	return nil
}

// pickInvigilators selects n distinct invigilators for exam.
// preferred ids come first, then active invigilators with the least total load.
// Excluded ids and invigilators failing the gap rule are skipped.
func (svc *Service) pickInvigilators(
	ctx context.Context,
	repo Repository,
	exam Exam,
	n int,
	preferred []string,
	exclude map[string]bool,
) ([]string, error) {
	invigilators, err := repo.QueryInvigilators(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying invigilators")
	}

	rank := make(map[string]int, len(preferred))
	for i, id := range preferred {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	sort.SliceStable(invigilators, func(i, j int) bool {
		a, b := invigilators[i], invigilators[j]
		ra, aPref := rank[a.ID]
		rb, bPref := rank[b.ID]
		switch {
		case aPref && bPref:
			return ra < rb
		case aPref != bPref:
			return aPref
		}
		if la, lb := load(a), load(b); la != lb {
			return la < lb
		}
		return a.ID < b.ID
	})

	picked := make([]string, 0, n)
	for _, inv := range invigilators {
		if len(picked) == n {
			break
		}
		if exclude[inv.ID] {
			continue
		}
		err := svc.checkDuty(ctx, repo, inv.ID, exam, nil)
		var (
			gapErr      *core.InsufficientGapError
			conflictErr *core.ConflictError
		)
		if errors.As(err, &gapErr) || errors.As(err, &conflictErr) {
			continue
		} else if err != nil {
			return nil, err
		}
		picked = append(picked, inv.ID)
	}

	if len(picked) < n {
		return nil, core.NewFieldValidationError("invigilators",
			fmt.Sprintf("%d invigilators needed, %d available", n, len(picked)))
	}
	return picked, nil
}

func load(u user.User) float64 { return u.CumulativeHours + u.PendingHours }
