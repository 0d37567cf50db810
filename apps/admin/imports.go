package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/invigil/core/timetable"
	"github.com/trezcool/invigil/services/spreadsheet"
)

func (cli *commandLine) importExams(ctx context.Context, path, tz string) error {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return errors.Wrapf(err, "loading time zone %q", tz)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening workbook")
	}
	defer f.Close()

	rows, err := spreadsheet.ReadExamRows(f)
	if err != nil {
		return err
	}
	return cli.printJSON(cli.schedule.ImportExams(ctx, cliActor, rows, loc))
}

func (cli *commandLine) importTimetables(ctx context.Context, paths []string) error {
	sources := make([]timetable.Source, 0, len(paths))
	for _, p := range paths {
		text, err := os.ReadFile(p)
		if err != nil {
			return errors.Wrapf(err, "reading %s", p)
		}
		sources = append(sources, timetable.Source{Name: filepath.Base(p), Text: string(text)})
	}
	return cli.printJSON(cli.timetable.ImportMany(ctx, sources))
}
