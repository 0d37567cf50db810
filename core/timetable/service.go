// Package timetable parses lecturer timetables extracted from documents and keeps
// one set of weekly class rows per lecturer.
package timetable

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
	"github.com/trezcool/invigil/core/user"
)

var NowFunc = time.Now // mockable

type Service struct {
	repo     Repository
	users    *user.Service
	minRatio float64
	log      core.Logger
}

var _ schedule.LecturerResolver = (*Service)(nil)

func NewService(repo Repository, users *user.Service, conf core.ScheduleConfig, log core.Logger) *Service {
	ratio := conf.LecturerMatchRatio
	if ratio <= 0 {
		ratio = core.DefaultScheduleConfig().LecturerMatchRatio
	}
	return &Service{repo: repo, users: users, minRatio: ratio, log: log}
}

// Import parses text and replaces every stored row of its lecturer with the parsed ones.
// Importing the same document twice leaves the same rows.
func (svc *Service) Import(ctx context.Context, text string) (ImportSummary, error) {
	doc, err := Parse(text)
	if err != nil {
		return ImportSummary{}, err
	}

	now := NowFunc().UTC()
	rows := doc.Rows()
	for i := range rows {
		rows[i].ImportedAt = now
	}
	if err = svc.repo.ReplaceLecturerRows(ctx, doc.Lecturer, rows); err != nil {
		return ImportSummary{}, errors.Wrap(err, "replacing timetable rows")
	}
	return ImportSummary{Lecturer: doc.Lecturer, Title: doc.Title, Rows: len(rows)}, nil
}

// ImportMany imports each source on its own; a failing source never stops the others.
func (svc *Service) ImportMany(ctx context.Context, sources []Source) BulkResult {
	var res BulkResult
	for _, src := range sources {
		sum, err := svc.Import(ctx, src.Text)
		if err != nil {
			if !core.IsValidation(err) {
				svc.log.Error("timetable: importing document", err, map[string]interface{}{"name": src.Name})
			}
			res.Failed++
			res.Messages = append(res.Messages, SourceResult{Name: src.Name, Message: err.Error()})
			continue
		}
		res.Added++
		res.Messages = append(res.Messages, SourceResult{
			Name:    src.Name,
			Success: true,
			Message: "imported " + sum.Lecturer,
		})
	}
	return res
}

func (svc *Service) Rows(ctx context.Context, filter *RowFilter) ([]Row, error) {
	if filter != nil && filter.Lecturer != "" {
		filter.Lecturer = NormalizeLecturer(filter.Lecturer)
	}
	return svc.repo.QueryRows(ctx, filter)
}

// ResolveLecturers matches the timetable lecturers of a course to users, by class type.
func (svc *Service) ResolveLecturers(ctx context.Context, key schedule.CourseKey) (schedule.Lecturers, error) {
	key = key.Clean()
	rows, err := svc.repo.QueryRows(ctx, &RowFilter{CourseCode: key.Code, Section: key.Section, Intake: key.Intake})
	if err != nil {
		return schedule.Lecturers{}, errors.Wrap(err, "querying timetable rows")
	}

	var lecturers schedule.Lecturers
	for _, r := range rows {
		var target *string
		switch r.ClassType {
		case ClassLecture:
			target = &lecturers.ClassID
		case ClassTutorial:
			target = &lecturers.TutorialID
		case ClassPractical, ClassLab:
			target = &lecturers.PracticalID
		default:
			continue
		}
		if *target != "" {
			continue
		}
		usr, err := svc.users.MatchByName(ctx, r.Lecturer, svc.minRatio)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return schedule.Lecturers{}, errors.Wrap(err, "matching lecturer")
		}
		*target = usr.ID
	}
	if lecturers.IsZero() {
		return schedule.Lecturers{}, core.NewNotFoundError("lecturers", key.String())
	}
	return lecturers, nil
}

func cleanFilter(f *RowFilter) RowFilter {
	if f == nil {
		return RowFilter{}
	}
	return RowFilter{
		Lecturer:   strings.TrimSpace(f.Lecturer),
		CourseCode: core.CleanCode(f.CourseCode),
		Section:    core.CleanCode(f.Section),
		Intake:     strings.TrimSpace(f.Intake),
	}
}

// Matches reports whether r satisfies every set field of f.
func (f *RowFilter) Matches(r Row) bool {
	c := cleanFilter(f)
	return (c.Lecturer == "" || strings.EqualFold(r.Lecturer, c.Lecturer)) &&
		(c.CourseCode == "" || r.CourseCode == c.CourseCode) &&
		(c.Section == "" || strings.EqualFold(r.Section, c.Section)) &&
		(c.Intake == "" || r.Intake == c.Intake)
}
