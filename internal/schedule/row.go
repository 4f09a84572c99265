// Package schedule turns parsed sessions into timestamped controller
// commands and keeps the time-range summaries used for conflict checks.
package schedule

import (
	"fmt"
	"sort"
	"strings"

	"lwaobs/internal/control"
	"lwaobs/pkg/mjd"
)

// Mode selects a timing profile.
type Mode int

const (
	// ModeBuffer sets the hardware up ahead of each observation start.
	ModeBuffer Mode = iota + 1
	// ModeASAP runs the command sequence back to back.
	ModeASAP
)

func (m Mode) String() string {
	switch m {
	case ModeBuffer:
		return "buffer"
	case ModeASAP:
		return "asap"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buffer", "":
		return ModeBuffer, nil
	case "asap":
		return ModeASAP, nil
	default:
		return 0, fmt.Errorf("schedule: unknown mode %q", s)
	}
}

// Row is one scheduled command: the instant it fires (MJD), the session it
// belongs to and the resource identity that session books.
type Row struct {
	At        float64
	SessionID string
	ModeName  string
	Command   control.Command
}

func (r Row) String() string {
	return fmt.Sprintf("%.8f %s %s %s", r.At, mjd.ToTime(r.At).Format("2006-01-02T15:04:05.000"), r.ModeName, r.Command)
}

// Sort orders rows by timestamp, keeping the relative order of rows that
// share a timestamp.
func Sort(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].At < rows[j].At })
}

// Sorted reports whether rows are in non-decreasing timestamp order.
func Sorted(rows []Row) bool {
	return sort.SliceIsSorted(rows, func(i, j int) bool { return rows[i].At < rows[j].At })
}

// Span returns the first and last timestamps of rows.
func Span(rows []Row) (Range, bool) {
	if len(rows) == 0 {
		return Range{}, false
	}
	r := Range{Start: rows[0].At, End: rows[0].At}
	for _, row := range rows[1:] {
		r.Start = min(r.Start, row.At)
		r.End = max(r.End, row.At)
	}
	return r, true
}
