package schedule

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
)

// PendingOfferDigests groups, per invigilator, the open offers still unanswered
// that expire within window after now. It does not modify anything.
func (svc *Service) PendingOfferDigests(ctx context.Context, now time.Time, window time.Duration) ([]OfferDigest, error) {
	now = now.UTC()
	asgs, err := svc.store.QueryAssignments(ctx, &AssignmentFilter{
		Responses:     []Response{ResponsePending},
		ExpiresAfter:  now,
		ExpiresBefore: now.Add(window),
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying pending offers")
	}

	exams := make(map[string]Exam)
	courses := make(map[string]Course)
	venues := make(map[string]string) // report id -> venue id
	digests := make(map[string]*OfferDigest)

	for _, a := range asgs {
		if a.TimeCreate.After(now) {
			continue
		}

		exam, ok := exams[a.ExamID]
		if !ok {
			if exam, err = svc.store.GetExam(ctx, a.ExamID); err != nil {
				return nil, errors.Wrap(err, "getting exam")
			}
			exams[a.ExamID] = exam
		}
		course, ok := courses[exam.CourseID]
		if !ok {
			if course, err = svc.store.GetCourse(ctx, exam.CourseID); err != nil {
				return nil, errors.Wrap(err, "getting course")
			}
			courses[exam.CourseID] = course
		}
		venueID, ok := venues[a.ReportID]
		if !ok {
			report, err := svc.store.GetReport(ctx, a.ReportID)
			if err != nil {
				return nil, errors.Wrap(err, "getting report")
			}
			sess, err := svc.store.GetSession(ctx, report.SessionID)
			if err != nil {
				return nil, errors.Wrap(err, "getting session")
			}
			venueID = sess.VenueID
			venues[a.ReportID] = venueID
		}

		dg, ok := digests[a.InvigilatorID]
		if !ok {
			usr, err := svc.users.GetByID(ctx, a.InvigilatorID)
			if err != nil {
				if core.IsNotFound(err) {
					svc.log.Warn("schedule: offer of unknown invigilator", map[string]interface{}{"assignment_id": a.ID})
					continue
				}
				return nil, errors.Wrap(err, "getting invigilator")
			}
			dg = &OfferDigest{InvigilatorID: usr.ID, Name: usr.Name, Email: usr.Email}
			digests[a.InvigilatorID] = dg
		}
		dg.Offers = append(dg.Offers, Offer{
			AssignmentID: a.ID,
			ExamID:       exam.ID,
			CourseCode:   course.Code,
			VenueID:      venueID,
			StartAt:      exam.StartAt,
			EndAt:        exam.EndAt,
			TimeExpire:   a.TimeExpire,
		})
	}

	out := make([]OfferDigest, 0, len(digests))
	for _, dg := range digests {
		sort.Slice(dg.Offers, func(i, j int) bool { return dg.Offers[i].TimeExpire.Before(dg.Offers[j].TimeExpire) })
		out = append(out, *dg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].InvigilatorID < out[j].InvigilatorID
	})
	return out, nil
}
