package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core/timetable"
)

var timetableColumns = []string{
	"id", "lecturer", "day", "class_type", "start_time", "end_time", "room",
	"course_name", "intake", "course_code", "section", "imported_at",
}

type timetableRow struct {
	ID         string    `db:"id"`
	Lecturer   string    `db:"lecturer"`
	Day        string    `db:"day"`
	ClassType  string    `db:"class_type"`
	Start      string    `db:"start_time"`
	End        string    `db:"end_time"`
	Room       string    `db:"room"`
	CourseName string    `db:"course_name"`
	Intake     string    `db:"intake"`
	CourseCode string    `db:"course_code"`
	Section    string    `db:"section"`
	ImportedAt time.Time `db:"imported_at"`
}

func (r timetableRow) row() timetable.Row {
	return timetable.Row{
		ID:         r.ID,
		Lecturer:   r.Lecturer,
		Day:        r.Day,
		ClassType:  timetable.ClassType(r.ClassType),
		Start:      r.Start,
		End:        r.End,
		Room:       r.Room,
		CourseName: r.CourseName,
		Intake:     r.Intake,
		CourseCode: r.CourseCode,
		Section:    r.Section,
		ImportedAt: r.ImportedAt.UTC(),
	}
}

type timetableRepository struct {
	base
}

var _ timetable.Repository = (*timetableRepository)(nil) // interface compliance check

func NewTimetableRepository(db *sqlx.DB) *timetableRepository {
	return &timetableRepository{base: base{db: db}}
}

func (repo *timetableRepository) ReplaceLecturerRows(ctx context.Context, lecturer string, rows []timetable.Row) error {
	return repo.withinTx(ctx, func(tx *sqlx.Tx) error {
		b := base{db: repo.db, tx: tx}
		if _, err := b.exec(ctx, psql.Delete("timetable_row").Where(sq.Eq{"lecturer": lecturer})); err != nil {
			return errors.Wrap(err, "deleting timetable rows")
		}
		if len(rows) == 0 {
			return nil
		}

		q := psql.Insert("timetable_row").Columns(timetableColumns...)
		for _, r := range rows {
			q = q.Values(
				newID(r.ID), lecturer, r.Day, string(r.ClassType), r.Start, r.End, r.Room,
				r.CourseName, r.Intake, r.CourseCode, r.Section, r.ImportedAt.UTC(),
			)
		}
		_, err := b.exec(ctx, q)
		return errors.Wrap(err, "inserting timetable rows")
	})
}

func (repo *timetableRepository) QueryRows(ctx context.Context, filter *timetable.RowFilter) ([]timetable.Row, error) {
	q := psql.Select(timetableColumns...).From("timetable_row")
	if filter != nil {
		if filter.Lecturer != "" {
			q = q.Where("lower(lecturer) = lower(?)", filter.Lecturer)
		}
		if filter.CourseCode != "" {
			q = q.Where("upper(course_code) = upper(?)", filter.CourseCode)
		}
		if filter.Section != "" {
			q = q.Where("upper(section) = upper(?)", filter.Section)
		}
		if filter.Intake != "" {
			q = q.Where(sq.Eq{"intake": filter.Intake})
		}
	}
	q = q.OrderBy("lecturer").
		OrderByClause("array_position(?::text[], day)", pq.Array(timetable.DayOrder)).
		OrderBy("start_time", "course_code", "section")

	var rows []timetableRow
	if err := repo.sel(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying timetable rows")
	}
	out := make([]timetable.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.row())
	}
	return out, nil
}
