package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"lwaobs/internal/schedule"
	"lwaobs/internal/statestore"
	"lwaobs/pkg/mjd"
)

const stamp = "2006-01-02 15:04:05"

func printSummary(w io.Writer, s schedule.Summary) {
	entries := s.Entries()
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "  (none)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "  MODE\tSESSION\tSTART (UTC)\tEND (UTC)\tSTARTS")
	for _, e := range entries {
		start, end := mjd.ToTime(e.Range.Start), mjd.ToTime(e.Range.End)
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
			e.Mode, e.ModeName, start.Format(stamp), end.Format(stamp), humanize.Time(start))
	}
	_ = tw.Flush()
}

func printSessions(w io.Writer, recs []statestore.SessionRecord) {
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(w, "no sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SESSION\tMODE\tBEAM\tPI\tSTATUS\tLOADED\tUPDATED")
	for _, r := range recs {
		beam := "-"
		if r.Beam > 0 {
			beam = fmt.Sprint(r.Beam)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.SessionID, r.Mode, beam, r.PIName, r.Status,
			r.LoadedAt.UTC().Format(stamp), humanize.Time(r.UpdatedAt))
	}
	_ = tw.Flush()
}

func printPlan(w io.Writer, plan schedule.Plan) {
	s := plan.Session
	span, _ := schedule.Span(plan.Rows)
	first := mjd.ToTime(span.Start)
	_, _ = fmt.Fprintf(w, "session %s (%s), %d observations, %d rows, starts %s, runs %s\n",
		s.ID, s.ModeName(), len(plan.Observations), len(plan.Rows),
		humanize.Time(first), mjd.ToTime(span.End).Sub(first).Round(time.Second))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MJD\tUTC\tOFFSET\tCOMMAND")
	for _, r := range plan.Rows {
		at := mjd.ToTime(r.At)
		off := at.Sub(first).Round(time.Millisecond)
		_, _ = fmt.Fprintf(tw, "%.6f\t%s\t+%s\t%s\n", r.At, at.Format(stamp+".000"), off, r.Command)
	}
	_ = tw.Flush()
}
