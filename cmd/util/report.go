package util

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/buger/goterm"
	"github.com/olekukonko/tablewriter"

	"github.com/sidkik/sftpsync/pkg/sync"
)

// PrintReport writes a summary table for a finished run.
func PrintReport(out io.Writer, report sync.Report) {
	title := "Sync summary"
	if report.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(out, title)

	table := NewTable(out, []string{"Result", "Files"})
	table.Append([]string{"Uploaded", strconv.Itoa(report.Uploaded)})
	table.Append([]string{"Skipped", strconv.Itoa(report.Skipped)})
	table.Append([]string{"Deleted", strconv.Itoa(report.Deleted)})
	table.Append([]string{"Errors", colorIf(report.Errors != 0, strconv.Itoa(report.Errors), goterm.RED)})
	table.Append([]string{"Warnings", colorIf(len(report.Warnings) != 0,
		strconv.Itoa(len(report.Warnings)), goterm.YELLOW)})
	table.Render()

	for _, warning := range report.Warnings {
		fmt.Fprintln(out, goterm.Color(fmt.Sprintf("warning: %s: %s", warning.Kind, warning.Path), goterm.YELLOW))
	}
	if report.DeletionAborted {
		fmt.Fprintln(out, goterm.Color("The remote directory couldn't be listed, "+
			"so no remote files were deleted.", goterm.RED))
	}

	fmt.Fprintf(out, "Finished in %s.\n", report.Duration.Round(time.Millisecond))
}

// NewTable returns a borderless, left aligned table.
func NewTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func colorIf(cond bool, msg string, color int) string {
	if !cond {
		return msg
	}
	return goterm.Color(msg, color)
}
