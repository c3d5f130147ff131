package domain

import (
	"fmt"
	"time"
)

// dateLayout renders dates as MM.DD.YYYY.
const dateLayout = "01.02.2006"

// ExtractTags holds the fixed suffixes used when naming extract requests.
type ExtractTags struct {
	DateRangeReportType string // report type that takes an explicit date range, "SDEM"
	EffectiveStart      string // "07012020"
	EffectiveEnd        string // "06302021"
	AcademicYear        string // "20202021"
}

// DefaultExtractTags returns the tags the portal workflows were built around.
func DefaultExtractTags() ExtractTags {
	return ExtractTags{
		DateRangeReportType: "SDEM",
		EffectiveStart:      "07012020",
		EffectiveEnd:        "06302021",
		AcademicYear:        "20202021",
	}
}

// UsesDateRange reports whether reportType is requested with a date range.
func (t ExtractTags) UsesDateRange(reportType string) bool {
	return reportType == t.DateRangeReportType
}

// UploadJobName returns "{short} {key} {reportType} {MM.DD.YYYY}".
func UploadJobName(unit OrgUnit, reportType string, date time.Time) string {
	return fmt.Sprintf("%s %s %s %s", unit.Short, unit.NumericKey, reportType, date.Format(dateLayout))
}

// ExtractFileName returns "{reportType}_{short}_{key}_{suffix}".
func ExtractFileName(unit OrgUnit, reportType string, tags ExtractTags) string {
	suffix := tags.AcademicYear
	if tags.UsesDateRange(reportType) {
		suffix = "Startdate_" + tags.EffectiveStart
	}
	return fmt.Sprintf("%s_%s_%s_%s", reportType, unit.Short, unit.NumericKey, suffix)
}

// ExtractShortName is the name typed into the primary extract filename field.
func ExtractShortName(unit OrgUnit, reportType string) string {
	return unit.Short + "_" + reportType
}

// TemplateFileName returns "{short}_{key}_{label}_{MM.DD.YYYY}.xlsx".
func TemplateFileName(unit OrgUnit, label string, date time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s.xlsx", unit.Short, unit.NumericKey, label, date.Format(dateLayout))
}

// NewJob builds a job and derives its artifact name. runDate is fixed once
// per batch so every name in a run carries the same date.
func NewJob(seq int, task TaskType, unit OrgUnit, params Params, runDate time.Time, tags ExtractTags) WorkflowJob {
	job := WorkflowJob{
		Seq:     seq,
		Task:    task,
		Unit:    unit,
		Params:  params,
		RunDate: runDate,
	}
	switch task {
	case TaskUpload:
		job.ArtifactName = UploadJobName(unit, params.ReportType, runDate)
	case TaskExtractRequest:
		job.ArtifactName = ExtractFileName(unit, params.ReportType, tags)
	}
	return job
}
