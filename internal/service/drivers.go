package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"calpadsrunner/internal/core/domain"
	"calpadsrunner/internal/core/ports"
	"calpadsrunner/internal/portal"
)

// Driver runs one task type through the workflow stages.
type Driver interface {
	Task() domain.TaskType
	// Begin binds the driver to a job. The returned Steps carry any state
	// shared between stages, such as the report frame.
	Begin(s *Session, job domain.WorkflowJob) Steps
}

// Steps are the stages a driver specializes. Execute calls them in order and
// stops at the first error.
type Steps interface {
	PageReady(ctx context.Context) error
	FillInputs(ctx context.Context) error
	Submit(ctx context.Context) error
	Confirm(ctx context.Context) error
}

// DefaultDrivers returns one driver per task type.
func DefaultDrivers(tags domain.ExtractTags) map[domain.TaskType]Driver {
	drivers := []Driver{
		UploadDriver{},
		ExtractRequestDriver{Tags: tags},
		ExtractDownloadDriver{},
		ReportExportDriver{DefaultFormat: "CSV"},
	}
	m := make(map[domain.TaskType]Driver, len(drivers))
	for _, d := range drivers {
		m[d.Task()] = d
	}
	return m
}

// UploadDriver submits a data file on the file submission page.
type UploadDriver struct{}

func (UploadDriver) Task() domain.TaskType { return domain.TaskUpload }

func (UploadDriver) Begin(s *Session, job domain.WorkflowJob) Steps {
	return &uploadSteps{s: s, job: job}
}

type uploadSteps struct {
	s   *Session
	job domain.WorkflowJob
}

func (u *uploadSteps) PageReady(ctx context.Context) error {
	t := u.s.timeouts
	if err := u.s.Visit(ctx, u.s.surface.UploadURL(), t.Navigation); err != nil {
		return err
	}
	return u.s.browser.WaitFor(ctx, portal.UploadFileType, t.Default)
}

func (u *uploadSteps) FillInputs(ctx context.Context) error {
	b, t := u.s.browser, u.s.timeouts
	if err := b.Select(ctx, portal.UploadFileType, u.job.Params.ReportType, t.Default); err != nil {
		return err
	}
	if err := b.UploadFile(ctx, portal.UploadFileInput, u.job.Params.FilePath, t.Default); err != nil {
		return err
	}
	if err := b.WaitFor(ctx, portal.UploadJobName, t.Default); err != nil {
		return err
	}
	return b.Type(ctx, portal.UploadJobName, u.job.ArtifactName, t.Default)
}

func (u *uploadSteps) Submit(ctx context.Context) error {
	b, t := u.s.browser, u.s.timeouts
	if err := b.WaitFor(ctx, portal.UploadSubmit, t.Default); err != nil {
		return err
	}
	u.s.logger.Info("Uploading", zap.String("file", u.job.Params.FilePath), zap.Duration("timeout", t.Upload))
	return b.ClickAndWait(ctx, portal.UploadSubmit, t.Upload)
}

func (u *uploadSteps) Confirm(ctx context.Context) error {
	if err := u.s.CheckAuthenticated(ctx); err != nil {
		return err
	}
	rejected, err := u.s.browser.Has(ctx, portal.ValidationErrors)
	if err != nil {
		return err
	}
	if rejected {
		return domain.NewError(domain.KindSubmissionRejected, "upload "+u.job.ArtifactName, nil)
	}
	return nil
}

// ExtractRequestDriver asks the portal to generate an ODS extract.
type ExtractRequestDriver struct {
	Tags domain.ExtractTags
}

func (ExtractRequestDriver) Task() domain.TaskType { return domain.TaskExtractRequest }

func (d ExtractRequestDriver) Begin(s *Session, job domain.WorkflowJob) Steps {
	return &extractRequestSteps{s: s, job: job, tags: d.Tags}
}

type extractRequestSteps struct {
	s    *Session
	job  domain.WorkflowJob
	tags domain.ExtractTags
}

func (e *extractRequestSteps) PageReady(ctx context.Context) error {
	url := e.s.surface.ExtractRequestURL(e.job.Params.ReportType)
	return e.s.Visit(ctx, url, e.s.timeouts.Navigation)
}

func (e *extractRequestSteps) FillInputs(ctx context.Context) error {
	b, t := e.s.browser, e.s.timeouts

	if e.tags.UsesDateRange(e.job.Params.ReportType) {
		if err := b.Click(ctx, portal.ExtractStartDate, t.Default); err != nil {
			return err
		}
		if err := b.Type(ctx, portal.ExtractStartDate, e.tags.EffectiveStart, t.Default); err != nil {
			return err
		}
		if err := b.Click(ctx, portal.ExtractEndDate, t.Default); err != nil {
			return err
		}
		if err := b.Type(ctx, portal.ExtractEndDate, e.tags.EffectiveEnd, t.Default); err != nil {
			return err
		}
	} else {
		if err := b.WaitFor(ctx, portal.ExtractMoveAll, t.Default); err != nil {
			return err
		}
		if err := b.Click(ctx, portal.ExtractMoveAll, t.Default); err != nil {
			return err
		}
	}

	primary, err := b.Has(ctx, portal.ExtractFileName)
	if err != nil {
		return err
	}
	if primary {
		return b.Type(ctx, portal.ExtractFileName, domain.ExtractShortName(e.job.Unit, e.job.Params.ReportType), t.Default)
	}
	e.s.logger.Debug("Primary filename field absent, using fallback", zap.String("report_type", e.job.Params.ReportType))
	return b.Type(ctx, portal.ExtractFileNameAlt, e.job.ArtifactName, t.Default)
}

func (e *extractRequestSteps) Submit(ctx context.Context) error {
	return e.s.browser.ClickAndWait(ctx, portal.ExtractRequestSubmit, e.s.timeouts.Navigation)
}

// Confirm treats the request as accepted once the request form is gone. A
// validation banner means the portal refused it.
func (e *extractRequestSteps) Confirm(ctx context.Context) error {
	if err := e.s.CheckAuthenticated(ctx); err != nil {
		return err
	}
	rejected, err := e.s.browser.Has(ctx, portal.ValidationErrors)
	if err != nil {
		return err
	}
	if rejected {
		return domain.NewError(domain.KindSubmissionRejected, "extract request "+e.job.Params.ReportType, nil)
	}
	return e.s.browser.WaitHidden(ctx, portal.ExtractRequestSubmit, e.s.timeouts.Default)
}

// ExtractDownloadDriver downloads the most recent extract on the listing page.
type ExtractDownloadDriver struct{}

func (ExtractDownloadDriver) Task() domain.TaskType { return domain.TaskExtractDownload }

func (ExtractDownloadDriver) Begin(s *Session, job domain.WorkflowJob) Steps {
	return &extractDownloadSteps{s: s, job: job}
}

type extractDownloadSteps struct {
	s    *Session
	job  domain.WorkflowJob
	href string
}

func (e *extractDownloadSteps) PageReady(ctx context.Context) error {
	t := e.s.timeouts
	if err := e.s.Visit(ctx, e.s.surface.ExtractListURL(), t.Navigation); err != nil {
		return err
	}
	return e.s.browser.WaitFor(ctx, portal.ExtractDownloadLink, t.Default)
}

func (e *extractDownloadSteps) FillInputs(ctx context.Context) error {
	href, err := e.s.browser.Property(ctx, portal.ExtractDownloadLink, "href", e.s.timeouts.Default)
	if err != nil {
		return err
	}
	if href == "" {
		return domain.SelectorTimeout(portal.ExtractDownloadLink, errors.New("link has no href"))
	}
	e.href = href
	return nil
}

func (e *extractDownloadSteps) Submit(ctx context.Context) error {
	nav := e.s.browser.Navigate(ctx, e.href, e.s.timeouts.Download)
	if nav.Status == domain.NavAborted {
		e.s.logger.Info("Download started", zap.String("href", e.href), zap.String("signal", nav.Reason))
	}
	return downloadOutcome(nav)
}

func (e *extractDownloadSteps) Confirm(ctx context.Context) error {
	return e.s.CheckAuthenticated(ctx)
}

// downloadOutcome classifies the navigation that fetches an extract file.
// The browser aborts a navigation whose response is an attachment, so an
// aborted navigation means the download started. Any other failure is real.
func downloadOutcome(nav domain.Navigation) error {
	switch nav.Status {
	case domain.NavLoaded, domain.NavAborted:
		return nil
	default:
		return nav.AsError()
	}
}

// ReportExportDriver exports a scheduled report from the embedded report viewer.
type ReportExportDriver struct {
	DefaultFormat string
}

func (ReportExportDriver) Task() domain.TaskType { return domain.TaskReportExport }

func (d ReportExportDriver) Begin(s *Session, job domain.WorkflowJob) Steps {
	format := job.Params.Format
	if format == "" {
		format = d.DefaultFormat
	}
	return &reportExportSteps{s: s, job: job, format: format}
}

type reportExportSteps struct {
	s      *Session
	job    domain.WorkflowJob
	format string
	frame  ports.Page
}

func (r *reportExportSteps) PageReady(ctx context.Context) error {
	t := r.s.timeouts
	if err := r.s.Visit(ctx, r.s.surface.ReportURL(r.job.Params.ReportURL), t.Report); err != nil {
		return err
	}
	frame, err := r.s.browser.Frame(ctx, portal.ReportFrame, t.Report)
	if err != nil {
		return err
	}
	r.frame = frame
	return frame.WaitFor(ctx, portal.ReportParam, t.Report)
}

func (r *reportExportSteps) FillInputs(ctx context.Context) error {
	t := r.s.timeouts
	if err := r.frame.Select(ctx, portal.ReportParam, portal.ReportParamValue, t.Default); err != nil {
		return err
	}
	// The viewer re-renders its toolbar after the parameter changes, so the
	// view button is pressed once to apply and again to render.
	if err := r.frame.Click(ctx, portal.ReportView, t.Default); err != nil {
		return err
	}
	if err := r.frame.WaitFor(ctx, portal.ReportView, t.Report); err != nil {
		return err
	}
	if err := r.frame.Click(ctx, portal.ReportView, t.Default); err != nil {
		return err
	}
	return r.frame.WaitHidden(ctx, portal.ReportAsyncWait, t.Report)
}

func (r *reportExportSteps) Submit(ctx context.Context) error {
	script := fmt.Sprintf(`() => { $find('ReportViewer1').exportReport(%q); }`, r.format)
	r.s.logger.Info("Exporting report", zap.String("report", r.job.Params.ReportURL), zap.String("format", r.format))
	return r.frame.Evaluate(ctx, script, r.s.timeouts.Default)
}

// Confirm waits for the export download to start. The viewer gives no
// completion signal, so a fixed settle delay stands in for one.
func (r *reportExportSteps) Confirm(ctx context.Context) error {
	return settle(ctx, r.s.timeouts.Settle)
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
