package schedule

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
)

// checkSlot validates the time windows of a scheduling request.
func checkSlot(slot Slot) error {
	var flds []core.FieldError
	if slot.StartAt.IsZero() {
		flds = append(flds, core.FieldError{Field: "start_at", Error: "this field is required"})
	}
	if slot.EndAt.IsZero() {
		flds = append(flds, core.FieldError{Field: "end_at", Error: "this field is required"})
	}
	if !slot.StartAt.IsZero() && !slot.EndAt.IsZero() && !slot.StartAt.Before(slot.EndAt) {
		flds = append(flds, core.FieldError{Field: "end_at", Error: "must be after start_at"})
	}
	if slot.OpenAt.IsZero() {
		flds = append(flds, core.FieldError{Field: "open_at", Error: "this field is required"})
	}
	if slot.ExpireAt.IsZero() {
		flds = append(flds, core.FieldError{Field: "expire_at", Error: "this field is required"})
	}
	if !slot.OpenAt.IsZero() && !slot.ExpireAt.IsZero() && !slot.OpenAt.Before(slot.ExpireAt) {
		flds = append(flds, core.FieldError{Field: "expire_at", Error: "must be after open_at"})
	}
	if len(slot.Venues) == 0 {
		flds = append(flds, core.FieldError{Field: "venues", Error: "at least one venue is required"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid schedule"), flds...)
	}
	return nil
}

// checkCapacity ensures each venue exists, is requested once and seats its share,
// and that together they seat the course.
func checkCapacity(ctx context.Context, repo Repository, slot Slot, students int) error {
	seen := make(map[string]bool, len(slot.Venues))
	total := 0
	for _, vc := range slot.Venues {
		if seen[vc.VenueID] {
			return core.NewFieldValidationError("venues", fmt.Sprintf("venue %s listed twice", vc.VenueID))
		}
		seen[vc.VenueID] = true

		if vc.Capacity <= 0 {
			return core.NewFieldValidationError("venues", fmt.Sprintf("capacity for venue %s must be greater than 0", vc.VenueID))
		}
		venue, err := repo.GetVenue(ctx, vc.VenueID)
		if err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldValidationError("venues", fmt.Sprintf("venue %s does not exist", vc.VenueID))
			}
			return errors.Wrap(err, "getting venue")
		}
		if venue.Capacity < vc.Capacity {
			return core.NewFieldValidationError("venues",
				fmt.Sprintf("venue %s seats %d, %d requested", venue.ID, venue.Capacity, vc.Capacity))
		}
		total += vc.Capacity
	}
	if students > 0 && total < students {
		return core.NewFieldValidationError("venues", fmt.Sprintf("venues seat %d of %d students", total, students))
	}
	return nil
}

// allocate creates or reuses one venue session per requested venue and links it to exam.
// It has no ledger side effect.
func allocate(ctx context.Context, repo Repository, exam Exam, slot Slot) ([]VenueSession, error) {
	sessions := make([]VenueSession, 0, len(slot.Venues))
	for _, vc := range slot.Venues {
		sess, err := bookSession(ctx, repo, exam.ID, vc, slot)
		if err != nil {
			return nil, err
		}
		if err = repo.CreateVenueExam(ctx, VenueExam{ExamID: exam.ID, SessionID: sess.ID, Capacity: vc.Capacity}); err != nil {
			return nil, errors.Wrap(err, "linking session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// bookSession returns the session of vc.VenueID over the slot window.
// A session with the exact same window is shared as long as the seats linked to it,
// vc.Capacity included, fit the venue. Any other overlap is a double booking.
func bookSession(ctx context.Context, repo Repository, examID string, vc VenueCapacity, slot Slot) (VenueSession, error) {
	venue, err := repo.LockVenue(ctx, vc.VenueID)
	if err != nil {
		return VenueSession{}, errors.Wrap(err, "locking venue")
	}
	overlapping, err := repo.QueryOverlappingSessions(ctx, venue.ID, slot.StartAt, slot.EndAt)
	if err != nil {
		return VenueSession{}, errors.Wrap(err, "querying sessions")
	}

	var reuse *VenueSession
	for i, s := range overlapping {
		if !s.StartAt.Equal(slot.StartAt) || !s.EndAt.Equal(slot.EndAt) {
			return VenueSession{}, core.NewConflictError(core.ErrDoubleBooked, "venue", venue.ID)
		}
		reuse = &overlapping[i]
	}
	if reuse == nil {
		sess, err := repo.CreateSession(ctx, VenueSession{
			VenueID: venue.ID,
			StartAt: slot.StartAt.UTC(),
			EndAt:   slot.EndAt.UTC(),
		})
		if err != nil {
			return VenueSession{}, errors.Wrap(err, "creating session")
		}
		return sess, nil
	}

	links, err := repo.QueryVenueExams(ctx, "", reuse.ID)
	if err != nil {
		return VenueSession{}, errors.Wrap(err, "querying venue links")
	}
	seated := vc.Capacity
	for _, l := range links {
		if l.ExamID == examID {
			return VenueSession{}, core.NewConflictError(core.ErrDoubleBooked, "venue", venue.ID)
		}
		seated += l.Capacity
	}
	if seated > venue.Capacity {
		return VenueSession{}, core.NewConflictError(core.ErrDoubleBooked, "venue", venue.ID)
	}
	return *reuse, nil
}

// slotsFor returns the number of invigilators needed to cover capacity students.
func slotsFor(capacity, perInvigilator int) int {
	if perInvigilator <= 0 || capacity <= 0 {
		return 1
	}
	n := (capacity + perInvigilator - 1) / perInvigilator
	if n < 1 {
		n = 1
	}
	return n
}
