package schedule

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/ledger"
)

// CreateExamAndRelated creates (or reuses) the course and its exam, allocates the venue
// sessions, creates one report per session and one pending assignment per invigilator slot.
// Every assignee's pending hours grow by the exam duration.
func (svc *Service) CreateExamAndRelated(ctx context.Context, actor string, ne NewExam) (ExamDetail, error) {
	ne.Course = ne.Course.Clean()
	if ne.Course.Code == "" || ne.Course.Section == "" || ne.Course.Intake == "" {
		return ExamDetail{}, core.NewFieldValidationError("course", "code, section and intake are required")
	}
	if err := checkSlot(ne.Slot); err != nil {
		return ExamDetail{}, err
	}

	if ne.Lecturers.IsZero() && svc.lecturers != nil {
		lecturers, err := svc.lecturers.ResolveLecturers(ctx, ne.Course)
		switch {
		case err == nil:
			ne.Lecturers = lecturers
		case core.IsNotFound(err):
		default:
			svc.log.Warn("schedule: resolving lecturers", err, map[string]interface{}{"course": ne.Course.String()})
		}
	}

	var detail ExamDetail
	err := svc.withinTx(ctx, func(repo Repository, book *accountBook) error {
		course, exam, err := svc.prepareExam(ctx, repo, actor, ne)
		if err != nil {
			return err
		}
		if exam, err = svc.scheduleExam(ctx, repo, book, actor, exam, course, ne.Slot, nil); err != nil {
			return err
		}
		detail, err = examDetail(ctx, repo, exam)
		return err
	})
	if err != nil {
		return ExamDetail{}, err
	}
	return detail, nil
}

// prepareExam finds or creates the course of ne and its exam.
func (svc *Service) prepareExam(ctx context.Context, repo Repository, actor string, ne NewExam) (Course, Exam, error) {
	now := NowFunc().UTC()

	course, err := repo.FindCourse(ctx, ne.Course)
	if err != nil && !core.IsNotFound(err) {
		return Course{}, Exam{}, errors.Wrap(err, "finding course")
	}
	if core.IsNotFound(err) {
		course, err = repo.CreateCourse(ctx, Course{CourseKey: ne.Course, Lecturers: ne.Lecturers, StudentCount: ne.StudentCount})
		if err != nil {
			return Course{}, Exam{}, errors.Wrap(err, "creating course")
		}
	}

	var exam Exam
	if course.ExamID != "" {
		if exam, err = repo.GetExam(ctx, course.ExamID); err != nil {
			return Course{}, Exam{}, errors.Wrap(err, "getting exam")
		}
		if exam.Active {
			if exam.StartAt.Equal(ne.StartAt) && exam.EndAt.Equal(ne.EndAt) {
				return Course{}, Exam{}, core.NewConflictError(core.ErrDuplicateSchedule, "exam", exam.ID)
			}
			return Course{}, Exam{}, core.NewConflictError(core.ErrCourseScheduled, "exam", exam.ID)
		}
	} else {
		exam, err = repo.CreateExam(ctx, Exam{CourseID: course.ID, UpdatedBy: actor, CreatedAt: now, UpdatedAt: now})
		if err != nil {
			return Course{}, Exam{}, errors.Wrap(err, "creating exam")
		}
		course.ExamID = exam.ID
	}

	if course.Lecturers.IsZero() {
		course.Lecturers = ne.Lecturers
	}
	if ne.StudentCount > 0 {
		course.StudentCount = ne.StudentCount
	}
	if course, err = repo.UpdateCourse(ctx, course); err != nil {
		return Course{}, Exam{}, errors.Wrap(err, "updating course")
	}
	return course, exam, nil
}

// scheduleExam moves exam to slot, allocates its sessions and offers its invigilator slots.
func (svc *Service) scheduleExam(
	ctx context.Context,
	repo Repository,
	book *accountBook,
	actor string,
	exam Exam,
	course Course,
	slot Slot,
	preferred []string,
) (Exam, error) {
	if err := checkCapacity(ctx, repo, slot, course.StudentCount); err != nil {
		return Exam{}, err
	}

	now := NowFunc().UTC()
	exam.StartAt = slot.StartAt.UTC()
	exam.EndAt = slot.EndAt.UTC()
	exam.Active = true
	exam.UpdatedBy = actor
	exam.UpdatedAt = now
	exam, err := repo.UpdateExam(ctx, exam)
	if err != nil {
		return Exam{}, errors.Wrap(err, "updating exam")
	}

	sessions, err := allocate(ctx, repo, exam, slot)
	if err != nil {
		return Exam{}, err
	}

	needed := make([]int, len(sessions))
	total := 0
	for i, vc := range slot.Venues {
		needed[i] = slotsFor(vc.Capacity, svc.conf.StudentsPerInvigilator)
		total += needed[i]
	}

	exclude := make(map[string]bool)
	for _, id := range course.Lecturers.IDs() {
		exclude[id] = true
	}
	picked, err := svc.pickInvigilators(ctx, repo, exam, total, preferred, exclude)
	if err != nil {
		return Exam{}, err
	}
	if err = svc.claim(ctx, repo, book, exam, picked, picked, nil); err != nil {
		return Exam{}, err
	}

	next := 0
	for i, sess := range sessions {
		report, err := repo.CreateReport(ctx, Report{ExamID: exam.ID, SessionID: sess.ID})
		if err != nil {
			return Exam{}, errors.Wrap(err, "creating report")
		}
		for k := 0; k < needed[i]; k++ {
			inv := picked[next]
			next++
			_, err = repo.CreateAssignment(ctx, Assignment{
				ReportID:      report.ID,
				ExamID:        exam.ID,
				InvigilatorID: inv,
				TimeCreate:    slot.OpenAt.UTC(),
				TimeExpire:    slot.ExpireAt.UTC(),
				Response:      ResponsePending,
				Remark:        deriveRemark(Assignment{}, exam, svc.conf.AttendanceGrace),
				UpdatedBy:     actor,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
			if err != nil {
				return Exam{}, errors.Wrap(err, "creating assignment")
			}
			if _, err = book.apply(ctx, inv, ledger.Assign(exam.Window())); err != nil {
				return Exam{}, err
			}
		}
	}
	return refreshOutput(ctx, repo, exam)
}

// ResetExamRelations rolls an exam back to unscheduled: pending hours still held by
// assignees are released (clamped), then assignments, reports, venue links and orphaned
// sessions are removed. Calling it on an unscheduled exam changes nothing.
func (svc *Service) ResetExamRelations(ctx context.Context, actor, examID string) (Exam, error) {
	var exam Exam
	err := svc.withinTx(ctx, func(repo Repository, book *accountBook) error {
		var err error
		if exam, err = repo.GetExam(ctx, examID); err != nil {
			return err
		}
		exam, err = svc.resetExam(ctx, repo, book, actor, exam)
		return err
	})
	if err != nil {
		return Exam{}, err
	}
	return exam, nil
}

func (svc *Service) resetExam(ctx context.Context, repo Repository, book *accountBook, actor string, exam Exam) (Exam, error) {
	asgs, err := repo.QueryAssignments(ctx, &AssignmentFilter{ExamID: exam.ID})
	if err != nil {
		return Exam{}, errors.Wrap(err, "querying assignments")
	}
	links, err := repo.QueryVenueExams(ctx, exam.ID, "")
	if err != nil {
		return Exam{}, errors.Wrap(err, "querying venue links")
	}
	if len(asgs) == 0 && len(links) == 0 && !exam.Active && exam.Output == "" {
		return exam, nil
	}

	holders := make([]string, 0, len(asgs))
	for _, a := range asgs {
		if a.HoldsPending() {
			holders = append(holders, a.InvigilatorID)
		}
	}
	if err = book.lock(ctx, holders...); err != nil {
		return Exam{}, err
	}
	for _, id := range holders {
		if _, err = book.apply(ctx, id, ledger.Release(exam.Window())); err != nil {
			return Exam{}, err
		}
	}

	if err = repo.DeleteAssignments(ctx, exam.ID); err != nil {
		return Exam{}, errors.Wrap(err, "deleting assignments")
	}
	if err = repo.DeleteReports(ctx, exam.ID); err != nil {
		return Exam{}, errors.Wrap(err, "deleting reports")
	}
	if err = repo.DeleteVenueExams(ctx, exam.ID); err != nil {
		return Exam{}, errors.Wrap(err, "deleting venue links")
	}
	for _, l := range links {
		remaining, err := repo.QueryVenueExams(ctx, "", l.SessionID)
		if err != nil {
			return Exam{}, errors.Wrap(err, "querying venue links")
		}
		if len(remaining) == 0 {
			if err = repo.DeleteSession(ctx, l.SessionID); err != nil {
				return Exam{}, errors.Wrap(err, "deleting session")
			}
		}
	}

	exam.Output = ""
	exam.Active = false
	exam.UpdatedBy = actor
	exam.UpdatedAt = NowFunc().UTC()
	if exam, err = repo.UpdateExam(ctx, exam); err != nil {
		return Exam{}, errors.Wrap(err, "updating exam")
	}
	return exam, nil
}

// AdjustExam resets the exam then schedules it again on slot, in one unit of work.
// The previous assignees are offered the new slots first.
func (svc *Service) AdjustExam(ctx context.Context, actor, examID string, slot Slot) (ExamDetail, error) {
	if err := checkSlot(slot); err != nil {
		return ExamDetail{}, err
	}

	var detail ExamDetail
	err := svc.withinTx(ctx, func(repo Repository, book *accountBook) error {
		exam, err := repo.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		course, err := repo.GetCourse(ctx, exam.CourseID)
		if err != nil {
			return errors.Wrap(err, "getting course")
		}
		asgs, err := repo.QueryAssignments(ctx, &AssignmentFilter{ExamID: exam.ID})
		if err != nil {
			return errors.Wrap(err, "querying assignments")
		}
		preferred := make([]string, 0, len(asgs))
		for _, a := range asgs {
			if !a.Declined() {
				preferred = append(preferred, a.InvigilatorID)
			}
		}

		if exam, err = svc.resetExam(ctx, repo, book, actor, exam); err != nil {
			return err
		}
		if exam, err = svc.scheduleExam(ctx, repo, book, actor, exam, course, slot, preferred); err != nil {
			return err
		}
		detail, err = examDetail(ctx, repo, exam)
		return err
	})
	if err != nil {
		return ExamDetail{}, err
	}
	return detail, nil
}

// DeleteExam resets the exam then removes it together with its course.
func (svc *Service) DeleteExam(ctx context.Context, actor, examID string) error {
	return svc.withinTx(ctx, func(repo Repository, book *accountBook) error {
		exam, err := repo.GetExam(ctx, examID)
		if err != nil {
			return err
		}
		if _, err = svc.resetExam(ctx, repo, book, actor, exam); err != nil {
			return err
		}
		if err = repo.DeleteExam(ctx, exam.ID); err != nil {
			return errors.Wrap(err, "deleting exam")
		}
		if err = repo.DeleteCourse(ctx, exam.CourseID); err != nil {
			return errors.Wrap(err, "deleting course")
		}
		return nil
	})
}
