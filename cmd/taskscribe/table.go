package main

import (
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"taskscribe/internal/api"
)

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	if stdoutIsTerminal() {
		t.SetStyle(table.StyleRounded)
	} else {
		t.SetStyle(table.StyleDefault)
		t.Style().Options.DrawBorder = false
		t.Style().Options.SeparateColumns = true
	}
	return t
}

func renderJobsTable(out io.Writer, jobList []api.JobStatus) {
	t := newTable(out)
	t.AppendHeader(table.Row{"JOB", "STATUS", "PROGRESS", "MODE", "DETAIL"})
	for _, job := range jobList {
		t.AppendRow(table.Row{
			shortID(job.JobID),
			job.Status,
			progressCell(job),
			job.ExtractionMode,
			detailCell(job),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "DETAIL", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	t.Render()
}

func renderJobDetail(out io.Writer, job api.JobStatus) {
	t := newTable(out)
	t.AppendHeader(table.Row{"STAGE", "DONE", "ARTIFACT"})
	for _, st := range job.Stages {
		done := ""
		if st.Complete {
			done = "yes"
		}
		t.AppendRow(table.Row{st.Stage, done, st.Artifact})
	}
	t.Render()
}

func shortID(jobID string) string {
	if len(jobID) > 12 {
		return jobID[:12]
	}
	return jobID
}

func progressCell(job api.JobStatus) string {
	done := 0
	for _, st := range job.Stages {
		if st.Complete {
			done++
		}
	}
	var b strings.Builder
	for i := 0; i < len(job.Stages); i++ {
		if i < done {
			b.WriteByte('#')
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func detailCell(job api.JobStatus) string {
	if job.FailureReason != "" {
		return job.FailureReason
	}
	if len(job.Warnings) > 0 {
		return strings.Join(job.Warnings, "; ")
	}
	return ""
}
