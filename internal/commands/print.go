package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/jdholdren/linkcal/internal/linkcal"
	"github.com/jdholdren/linkcal/internal/reconcile"
)

const (
	markEntry   = '*'
	markPending = '!'
)

// Width of a rendered week: seven cells of four columns.
const gridWidth = 7 * 4

// printMonth draws a Monday-first grid of six weeks around a YYYY-MM month.
// Days with an entry get a '*', days with an unsent change a '!'.
func printMonth(w io.Writer, month, today string, entries []linkcal.Entry, pending map[string]*linkcal.Entry) error {
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return fmt.Errorf("%w: month must be YYYY-MM", linkcal.ErrValidation)
	}

	has := make(map[string]bool, len(entries))
	for _, e := range entries {
		has[e.Date] = true
	}

	heading := first.Format("January 2006")
	pad := max((gridWidth-len(heading))/2, 0)
	_, _ = color.New(color.Bold).Fprintf(w, "%s%s\n", strings.Repeat(" ", pad), heading)
	_, _ = color.New(color.Faint).Fprintln(w, " Mo  Tu  We  Th  Fr  Sa  Su")

	// Monday is 0
	offset := (int(first.Weekday()) + 6) % 7
	day := first.AddDate(0, 0, -offset)
	for week := 0; week < 6; week++ {
		for weekday := 0; weekday < 7; weekday++ {
			date := linkcal.DateOf(day)

			mark := ' '
			var attrs []color.Attribute
			switch {
			case day.Month() != first.Month():
				attrs = append(attrs, color.Faint)
			case hasKey(pending, date):
				mark = markPending
				attrs = append(attrs, color.FgYellow, color.Bold)
			case has[date]:
				mark = markEntry
				attrs = append(attrs, color.FgHiWhite, color.Bold)
			}
			if date == today {
				attrs = append(attrs, color.Underline)
			}
			printer := color.New(attrs...)

			_, _ = printer.Fprintf(w, " %2d%c", day.Day(), mark)
			day = day.AddDate(0, 0, 1)
		}
		_, _ = fmt.Fprintln(w)
	}

	return nil
}

func hasKey(m map[string]*linkcal.Entry, k string) bool {
	_, ok := m[k]
	return ok
}

type row struct {
	date  string
	entry *linkcal.Entry
	sync  string
}

// printEntries lists a month's entries along with any unsent deletions.
func printEntries(w io.Writer, month string, entries []linkcal.Entry, pending map[string]*linkcal.Entry) {
	rows := make([]row, 0, len(entries))
	for i := range entries {
		r := row{date: entries[i].Date, entry: &entries[i]}
		if hasKey(pending, r.date) {
			r.sync = "pending"
		}
		rows = append(rows, r)
	}
	for date, e := range pending {
		if e == nil && strings.HasPrefix(date, month+"-") {
			rows = append(rows, row{date: date, sync: "pending delete"})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].date < rows[j].date })

	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "No entries.")
		return
	}

	bold := color.New(color.Bold)
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	tbl.AddRow(bold.Sprint("DATE"), bold.Sprint("TITLE"), bold.Sprint("URL"), bold.Sprint("SYNC"))
	for _, r := range rows {
		if r.entry == nil {
			tbl.AddRow(r.date, "", "", color.YellowString(r.sync))
			continue
		}
		tbl.AddRow(r.date, r.entry.Title, r.entry.URL, color.YellowString(r.sync))
	}

	_, _ = fmt.Fprintln(w, tbl)
}

// printEntry shows a single day.
func printEntry(w io.Writer, e linkcal.Entry, pending bool) {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.Wrap = true
	tbl.AddRow("Date:", e.Date)
	tbl.AddRow("Title:", e.Title)
	tbl.AddRow("URL:", e.URL)
	if e.UpdatedAt != nil {
		tbl.AddRow("Updated:", e.UpdatedAt.Local().Format(time.RFC1123))
	}
	if pending {
		tbl.AddRow("Sync:", color.YellowString("pending"))
	}

	_, _ = fmt.Fprintln(w, tbl)
}

// printStatus shows the calendar in use and how syncing is going.
func printStatus(w io.Writer, calendarID, server string, st reconcile.Status, pending int) {
	pill := color.GreenString(st.Message)
	if !st.OK() {
		pill = color.RedString(st.Message)
	}
	if st.Message == "" {
		pill = string(st.State)
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow("Calendar key:", calendarID)
	tbl.AddRow("Server:", server)
	tbl.AddRow("Cloud:", pill)
	tbl.AddRow("Pending:", fmt.Sprintf("%d", pending))
	if !st.OK() && st.LastError != "" {
		tbl.AddRow("Last error:", st.LastError)
	}

	_, _ = fmt.Fprintln(w, tbl)
}

// Prints the status line after a write, calling out writes left pending.
func printSyncNote(w io.Writer, st reconcile.Status) {
	if st.Message == "" {
		return
	}
	if st.OK() {
		_, _ = fmt.Fprintln(w, color.GreenString(st.Message))
		return
	}
	_, _ = fmt.Fprintf(w, "%s: saved locally, will retry when the cloud is available.\n", color.YellowString(st.Message))
}

// confirm asks a yes/no question, defaulting to no.
func (a *app) confirm(question string) bool {
	_, _ = fmt.Fprintf(a.out, "%s [y/N] ", question)

	answer, err := a.in.ReadString('\n')
	if err != nil && answer == "" {
		_, _ = fmt.Fprintln(a.out)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
