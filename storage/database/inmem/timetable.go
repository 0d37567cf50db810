package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/invigil/core/timetable"
)

type timetableRepository struct {
	base
}

var _ timetable.Repository = (*timetableRepository)(nil) // interface compliance check

func NewTimetableRepository(db *DB) *timetableRepository {
	return &timetableRepository{base: base{db: db}}
}

func (repo *timetableRepository) ReplaceLecturerRows(ctx context.Context, lecturer string, rows []timetable.Row) error {
	return repo.write(func(t *tables) error {
		stored := make([]timetable.Row, len(rows))
		for i, r := range rows {
			r.ID = newID(r.ID)
			r.Lecturer = lecturer
			stored[i] = r
		}
		if len(stored) == 0 {
			delete(t.timetable, lecturer)
			return nil
		}
		t.timetable[lecturer] = stored
		return nil
	})
}

func (repo *timetableRepository) QueryRows(ctx context.Context, filter *timetable.RowFilter) ([]timetable.Row, error) {
	var rows []timetable.Row
	err := repo.read(func(t *tables) error {
		for _, lecRows := range t.timetable {
			for _, r := range lecRows {
				if filter == nil || filter.Matches(r) {
					rows = append(rows, r)
				}
			}
		}
		return nil
	})
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Lecturer != b.Lecturer {
			return a.Lecturer < b.Lecturer
		}
		if a.Day != b.Day {
			return dayRank(a.Day) < dayRank(b.Day)
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.CourseCode+a.Section < b.CourseCode+b.Section
	})
	return rows, err
}

func dayRank(day string) int {
	for i, d := range timetable.DayOrder {
		if d == day {
			return i
		}
	}
	return len(timetable.DayOrder)
}
