package service

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"calpadsrunner/internal/core/domain"
)

// WriteSummary prints the per-job outcome table of report.
func WriteSummary(w io.Writer, report *domain.BatchReport) {
	ok, failed := report.Counts()
	fmt.Fprintln(w, "\n=== Batch Summary ===")
	fmt.Fprintf(w, "Run ID:       %s\n", report.RunID)
	fmt.Fprintf(w, "Run Date:     %s\n", report.RunDate.Format("01.02.2006"))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Unit", "Task", "Artifact", "Outcome", "Attempts", "Error"})
	for i, r := range report.Results {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			r.Job.Unit.Short,
			string(r.Job.Task),
			r.Job.ArtifactName,
			string(r.Outcome),
			fmt.Sprintf("%d", r.Attempts),
			string(r.Kind),
		})
	}
	table.Render()

	fmt.Fprintf(w, "Succeeded:    %d\n", ok)
	fmt.Fprintf(w, "Failed:       %d\n", failed)
	for _, a := range report.Artifacts {
		fmt.Fprintf(w, "Artifact:     %s\n", a)
	}
	if !report.CompletedAt.IsZero() {
		fmt.Fprintf(w, "Completed At: %s\n", report.CompletedAt.Format(time.RFC3339))
	}
}
