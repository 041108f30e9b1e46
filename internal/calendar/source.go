package calendar

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Row is one raw calendar entry as supplied by a source, before validation.
type Row struct {
	Date     string
	Time     string
	Currency string
	Impact   string
	Title    string
}

// Source supplies the raw rows for one reference-zone calendar day.
type Source interface {
	Rows(ctx context.Context, day string) ([]Row, error)
}

// untimedMarkers are the feed's time-column values for entries without a clock
// time. Such entries stay out of the alert windows but appear in summaries.
var untimedMarkers = map[string]bool{
	"":          true,
	"all day":   true,
	"day 1":     true,
	"day 2":     true,
	"tentative": true,
	"nan":       true,
}

// CSVSource reads month-named CSV exports of the economic calendar from a
// directory: august_2026.csv covers any day of 2026-08. When the month file is
// absent the most recently modified *.csv in the directory is used instead.
// Expected columns: Date,Time,Currency,Impact,Event with DD/MM/YYYY dates.
type CSVSource struct {
	dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

func (s *CSVSource) Rows(ctx context.Context, day string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return nil, errors.Wrapf(err, "bad day %q", day)
	}

	path, err := s.pickFile(d)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	rows, err := readRows(f, d.Format("02/01/2006"))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return rows, nil
}

func (s *CSVSource) pickFile(d time.Time) (string, error) {
	monthly := filepath.Join(s.dir, fmt.Sprintf("%s_%d.csv", strings.ToLower(d.Month().String()), d.Year()))
	if _, err := os.Stat(monthly); err == nil {
		return monthly, nil
	}

	matches, _ := filepath.Glob(filepath.Join(s.dir, "*.csv"))
	var newest string
	var newestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = m, info.ModTime()
		}
	}
	if newest == "" {
		return "", errors.Errorf("no calendar file for %s in %s", d.Format("2006-01-02"), s.dir)
	}
	return newest, nil
}

// readRows parses the whole file, validating every row's date, and keeps only
// the rows of the requested DD/MM/YYYY day. A bad header or an unparseable
// date fails the whole file so a day is never partially loaded.
func readRows(r io.Reader, wantDate string) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"date", "time", "currency", "impact", "event"} {
		if _, ok := idx[col]; !ok {
			return nil, errors.Errorf("missing column %q", col)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read row")
		}

		date := strings.TrimSpace(rec[idx["date"]])
		if _, err := time.Parse("02/01/2006", date); err != nil {
			return nil, errors.Errorf("bad date %q", date)
		}
		if date != wantDate {
			continue
		}

		rows = append(rows, Row{
			Date:     date,
			Time:     rec[idx["time"]],
			Currency: rec[idx["currency"]],
			Impact:   rec[idx["impact"]],
			Title:    rec[idx["event"]],
		})
	}
	return rows, nil
}
