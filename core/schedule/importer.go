package schedule

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core"
)

var (
	importDateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "02-01-2006"}
	importTimeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM"}
)

// ImportExams schedules the exams described by rows. Rows sharing course, date and times
// form one exam over several venues; each exam is imported in its own unit of work.
func (svc *Service) ImportExams(ctx context.Context, actor string, rows []ImportRow, loc *time.Location) BulkResult {
	if loc == nil {
		loc = time.UTC
	}

	type group struct {
		lines []int
		ne    NewExam
	}
	var (
		res    BulkResult
		order  []string
		groups = make(map[string]*group)
	)
	for _, row := range rows {
		ne, err := parseImportRow(row, loc)
		if err != nil {
			res.add(row.Line, err, "")
			continue
		}
		key := strings.Join([]string{
			ne.Course.String(),
			ne.StartAt.Format(time.RFC3339),
			ne.EndAt.Format(time.RFC3339),
		}, "|")
		if g, ok := groups[key]; ok {
			g.lines = append(g.lines, row.Line)
			g.ne.Venues = append(g.ne.Venues, ne.Venues...)
			continue
		}
		groups[key] = &group{lines: []int{row.Line}, ne: ne}
		order = append(order, key)
	}

	for _, key := range order {
		g := groups[key]
		detail, err := svc.CreateExamAndRelated(ctx, actor, g.ne)
		if err != nil && !core.IsValidation(err) && !core.IsNotFound(err) {
			var conflict *core.ConflictError
			if !errors.As(err, &conflict) {
				svc.log.Error("schedule: importing exam", err, map[string]interface{}{"lines": g.lines})
			}
		}
		for _, line := range g.lines {
			msg := ""
			if err == nil {
				msg = "scheduled exam " + detail.Exam.ID + " for " + g.ne.Course.Code
			}
			res.add(line, err, msg)
		}
	}

	sort.SliceStable(res.Messages, func(i, j int) bool { return res.Messages[i].Line < res.Messages[j].Line })
	return res
}

func parseImportRow(row ImportRow, loc *time.Location) (NewExam, error) {
	ne := NewExam{Course: CourseKey{
		Department: row.Department,
		Code:       row.Code,
		Section:    row.Section,
		Intake:     row.Intake,
	}.Clean()}
	if ne.Course.Code == "" || ne.Course.Section == "" || ne.Course.Intake == "" {
		return NewExam{}, core.NewFieldValidationError("course", "code, section and intake are required")
	}

	date, err := parseIn(importDateLayouts, row.Date, loc)
	if err != nil {
		return NewExam{}, core.NewFieldValidationError("date", "invalid date "+strconv.Quote(row.Date))
	}
	if ne.StartAt, err = onDate(date, row.Start, loc); err != nil {
		return NewExam{}, core.NewFieldValidationError("start", "invalid time "+strconv.Quote(row.Start))
	}
	if ne.EndAt, err = onDate(date, row.End, loc); err != nil {
		return NewExam{}, core.NewFieldValidationError("end", "invalid time "+strconv.Quote(row.End))
	}

	venue := core.CleanString(row.Venue)
	if venue == "" {
		return NewExam{}, core.NewFieldValidationError("venue", "this field is required")
	}
	capacity, err := strconv.Atoi(core.CleanString(row.Capacity))
	if err != nil || capacity <= 0 {
		return NewExam{}, core.NewFieldValidationError("capacity", "must be a positive number")
	}
	ne.Venues = []VenueCapacity{{VenueID: venue, Capacity: capacity}}

	if ne.OpenAt, err = parseDateTime(row.Open, loc); err != nil {
		return NewExam{}, core.NewFieldValidationError("open", "invalid date time "+strconv.Quote(row.Open))
	}
	if ne.ExpireAt, err = parseDateTime(row.Expire, loc); err != nil {
		return NewExam{}, core.NewFieldValidationError("expire", "invalid date time "+strconv.Quote(row.Expire))
	}
	return ne, nil
}

func parseIn(layouts []string, value string, loc *time.Location) (time.Time, error) {
	value = core.CleanString(value)
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func onDate(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := parseIn(importTimeLayouts, clock, loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
}

// parseDateTime reads "<date> <time>" with any of the accepted layouts.
func parseDateTime(value string, loc *time.Location) (time.Time, error) {
	value = core.CleanString(value)
	if t, err := time.ParseInLocation(time.RFC3339, value, loc); err == nil {
		return t, nil
	}
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return time.Time{}, errors.Errorf("missing time in %q", value)
	}
	date, err := parseIn(importDateLayouts, parts[0], loc)
	if err != nil {
		return time.Time{}, err
	}
	return onDate(date, parts[1], loc)
}
