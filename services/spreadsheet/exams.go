// Package spreadsheet reads and writes the xlsx workbooks used for bulk exam imports.
package spreadsheet

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/invigil/core"
	"github.com/trezcool/invigil/core/schedule"
)

// ExamColumns is the header row of an exam import sheet.
var ExamColumns = []string{
	"department", "code", "section", "intake", "date", "start", "end", "venue", "capacity", "open", "expire",
}

var ErrNoSheet = errors.New("workbook has no sheet")

// ReadExamRows returns the non-blank data rows of the first sheet of an xlsx workbook.
// Columns are located by header name, in any order; unknown columns are ignored.
func ReadExamRows(r io.Reader) ([]schedule.ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, core.NewFieldValidationError("file", "not a valid xlsx workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(err, "reading sheet")
	}
	if len(rows) == 0 {
		return nil, core.NewFieldValidationError("file", "sheet is empty")
	}

	index, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	var out []schedule.ImportRow
	for i, cells := range rows[1:] {
		if blank(cells) {
			continue
		}
		cell := func(col string) string {
			pos := index[col]
			if pos >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[pos])
		}
		out = append(out, schedule.ImportRow{
			Line:       i + 2,
			Department: cell("department"),
			Code:       cell("code"),
			Section:    cell("section"),
			Intake:     cell("intake"),
			Date:       cell("date"),
			Start:      cell("start"),
			End:        cell("end"),
			Venue:      cell("venue"),
			Capacity:   cell("capacity"),
			Open:       cell("open"),
			Expire:     cell("expire"),
		})
	}
	return out, nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(ExamColumns))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, seen := index[h]; !seen && h != "" {
			index[h] = i
		}
	}

	var fields []core.FieldError
	for _, col := range ExamColumns {
		if _, ok := index[col]; !ok {
			fields = append(fields, core.FieldError{Field: col, Error: "column is missing"})
		}
	}
	if len(fields) > 0 {
		return nil, core.NewValidationError(errors.New("missing columns"), fields...)
	}
	return index, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
