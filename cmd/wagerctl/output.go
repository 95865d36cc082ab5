package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// printFields renders key/value pairs as a two column table.
func printFields(w io.Writer, rows [][2]string) error {
	table := newTable(w, "Field", "Value")
	for _, r := range rows {
		if err := table.Append([]string{bold(r[0]), r[1]}); err != nil {
			return err
		}
	}
	return table.Render()
}

func statusColor(status string) string {
	switch status {
	case "active", "confirmed", "created":
		return green(status)
	case "waiting", "pending", "skipped":
		return yellow(status)
	case "completed", "joined":
		return cyan(status)
	case "abandoned", "cancelled", "failed":
		return red(status)
	default:
		return status
	}
}

func yesNo(b bool) string {
	if b {
		return green("yes")
	}
	return red("no")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortAddr(a string) string {
	if len(a) <= 12 {
		return orDash(a)
	}
	return a[:6] + "…" + a[len(a)-4:]
}

func ago(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t).Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}
