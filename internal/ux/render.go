package ux

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jinzenshi/gongkao/internal/journal"
	"github.com/jinzenshi/gongkao/internal/state"
)

const timeLayout = "2006-01-02 15:04:05"

// RenderSummary prints the inspect view of a session file.
func RenderSummary(w io.Writer, styles Styles, path string, sum state.Summary, backups []state.Backup, now time.Time) {
	fmt.Fprintln(w, styles.Title.Render("Session "+path))
	fmt.Fprintf(w, "  cookies:    %d (%d persistent, %d session, %d expired)\n",
		sum.Cookies, sum.Persistent, sum.Session, sum.Expired)
	if sum.NextExpiry != nil {
		fmt.Fprintf(w, "  expires:    %s (%s)\n", sum.NextExpiry.Local().Format(timeLayout), relative(*sum.NextExpiry, now))
	}
	if len(sum.StorageOrigins) > 0 {
		fmt.Fprintf(w, "  storage:    %d entries in %s\n", sum.StorageEntries, strings.Join(sum.StorageOrigins, ", "))
	}
	if sum.Cookies > 0 && sum.Persistent == 0 && sum.Session == 0 {
		fmt.Fprintln(w, styles.Warn.Render("  every cookie has expired; run gongkao refresh"))
	}
	fmt.Fprintln(w)

	sites := NewTable("Sites", "site", "cookies", "session", "expired", "next expiry")
	for _, s := range sum.Sites {
		next := "-"
		if s.NextExpiry != nil {
			next = s.NextExpiry.Local().Format(timeLayout)
		}
		sites.AddRow(s.Site, strconv.Itoa(s.Cookies), strconv.Itoa(s.Session), strconv.Itoa(s.Expired), next)
	}
	if v := sites.View(styles); v != "" {
		fmt.Fprintln(w, v)
	}

	if len(backups) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No backups."))
		return
	}
	bt := NewTable("Backups", "file", "size", "modified")
	for _, b := range backups {
		bt.AddRow(b.Path, humanSize(b.Size), b.ModTime.Local().Format(timeLayout))
	}
	fmt.Fprint(w, bt.View(styles))
}

// RenderHistory prints recent journal runs.
func RenderHistory(w io.Writer, styles Styles, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("No runs recorded."))
		return
	}
	t := NewTable("Recent runs", "started", "duration", "phase", "verdict", "run", "error")
	for _, r := range runs {
		t.AddRow(
			r.Started.Local().Format(timeLayout),
			r.Duration().Round(time.Second).String(),
			phaseLabel(styles, r.Phase),
			dash(r.Verdict),
			shortID(r.ID),
			dash(truncate(r.Error, 60)),
		)
	}
	fmt.Fprint(w, t.View(styles))
}

func phaseLabel(styles Styles, phase string) string {
	switch phase {
	case "verified":
		return styles.Success.Render(phase)
	case "verify_failed", "timed_out":
		return styles.Warn.Render(phase)
	case "fatal":
		return styles.Error.Render(phase)
	}
	return phase
}

func relative(t, now time.Time) string {
	d := t.Sub(now).Round(time.Minute)
	if d < 0 {
		return (-d).String() + " ago"
	}
	return "in " + d.String()
}

func humanSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f KiB", float64(n)/1024)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
