package domain

import (
	"fmt"
	"time"
)

// OrgUnit identifies one managed site on the portal.
type OrgUnit struct {
	ID         string `json:"id" yaml:"id"`
	Short      string `json:"short" yaml:"short"`             // short code, e.g. "KCCP"
	Name       string `json:"name" yaml:"name"`               // display name
	NumericKey string `json:"numeric_key" yaml:"lea"`         // e.g. "0121707"
	ContextKey string `json:"context_key" yaml:"context_key"` // value of the portal org-select option
}

// Credentials is the username/password pair used to log in.
type Credentials struct {
	Username string
	Password string
}

// TaskType names the workflow a job drives.
type TaskType string

const (
	TaskUpload          TaskType = "upload"
	TaskExtractRequest  TaskType = "extract-request"
	TaskExtractDownload TaskType = "extract-download"
	TaskReportExport    TaskType = "report-export"
)

// ParseTaskType accepts the canonical names plus a few short aliases.
func ParseTaskType(s string) (TaskType, bool) {
	switch s {
	case "upload":
		return TaskUpload, true
	case "extract-request", "extract", "ods":
		return TaskExtractRequest, true
	case "extract-download", "download":
		return TaskExtractDownload, true
	case "report-export", "report":
		return TaskReportExport, true
	}
	return "", false
}

// Params holds task-specific inputs. Unused fields stay empty.
type Params struct {
	FilePath   string `json:"file_path,omitempty"`
	ReportType string `json:"report_type,omitempty"`
	ReportURL  string `json:"report_url,omitempty"`
	Format     string `json:"format,omitempty"`
}

// WorkflowJob is one (unit, task) pair. It is immutable once built.
type WorkflowJob struct {
	Seq          int       `json:"seq"`
	Task         TaskType  `json:"task"`
	Unit         OrgUnit   `json:"unit"`
	Params       Params    `json:"params"`
	ArtifactName string    `json:"artifact_name,omitempty"`
	RunDate      time.Time `json:"run_date"`
}

// JobRequest is a job as written in a manifest, before the unit is resolved.
type JobRequest struct {
	Task   TaskType
	Unit   string
	Params Params
}

// Outcome is the terminal state of a job.
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
)

// WorkflowResult is the terminal outcome of one WorkflowJob.
type WorkflowResult struct {
	Job        WorkflowJob
	Outcome    Outcome
	Kind       ErrorKind // empty on success
	Stage      Stage     // last stage reached
	Err        error
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the job reached Confirmed.
func (r WorkflowResult) Succeeded() bool {
	return r.Outcome == Succeeded
}

// ErrorMessage returns the error text or "".
func (r WorkflowResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// BatchReport collects the results of one runBatch invocation, in input order.
type BatchReport struct {
	RunID       string
	RunDate     time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Results     []WorkflowResult
	Artifacts   []string
}

// Counts returns the number of succeeded and failed results.
func (b *BatchReport) Counts() (succeeded, failed int) {
	for _, r := range b.Results {
		if r.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Validate checks that the task-specific parameters are present.
// File existence is the caller's concern and is not checked.
func (j WorkflowJob) Validate() error {
	switch j.Task {
	case TaskUpload:
		if j.Params.FilePath == "" || j.Params.ReportType == "" {
			return fmt.Errorf("job %d: upload needs a file and a report type", j.Seq)
		}
	case TaskExtractRequest:
		if j.Params.ReportType == "" {
			return fmt.Errorf("job %d: extract request needs a report type", j.Seq)
		}
	case TaskExtractDownload:
	case TaskReportExport:
		if j.Params.ReportURL == "" {
			return fmt.Errorf("job %d: report export needs a report url", j.Seq)
		}
	default:
		return fmt.Errorf("job %d: unknown task %q", j.Seq, j.Task)
	}
	return nil
}
