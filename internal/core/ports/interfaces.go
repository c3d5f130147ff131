package ports

import (
	"context"
	"time"

	"calpadsrunner/internal/core/domain"
)

// Page is a DOM scope: the top-level page or an embedded frame.
// Every blocking primitive takes an explicit, finite timeout.
type Page interface {
	// WaitFor blocks until selector matches an element.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// WaitHidden blocks until selector matches nothing visible.
	WaitHidden(ctx context.Context, selector string, timeout time.Duration) error

	// Has reports whether selector currently matches, without waiting.
	Has(ctx context.Context, selector string) (bool, error)

	Click(ctx context.Context, selector string, timeout time.Duration) error
	Type(ctx context.Context, selector, text string, timeout time.Duration) error

	// Select picks the <option> whose value attribute equals value.
	Select(ctx context.Context, selector, value string, timeout time.Duration) error

	// Value returns the current value property of the matched element.
	Value(ctx context.Context, selector string) (string, error)

	// Property returns a DOM property (e.g. a resolved href) of the matched element.
	Property(ctx context.Context, selector, name string, timeout time.Duration) (string, error)

	// Evaluate runs a JavaScript function expression in the scope.
	Evaluate(ctx context.Context, script string, timeout time.Duration) error

	UploadFile(ctx context.Context, selector, path string, timeout time.Duration) error
}

// Browser is one authenticated tab on the portal.
type Browser interface {
	Page

	// Navigate loads url and reports the typed outcome. It never panics on
	// browser-level failures; those come back as NavFailed or NavAborted.
	Navigate(ctx context.Context, url string, timeout time.Duration) domain.Navigation

	// ClickAndWait clicks selector and waits for the resulting navigation.
	ClickAndWait(ctx context.Context, selector string, timeout time.Duration) error

	// Frame returns the content scope of the iframe matched by selector.
	Frame(ctx context.Context, selector string, timeout time.Duration) (Page, error)

	// URL returns the current page URL.
	URL(ctx context.Context) (string, error)

	Close() error
}

// OrgRegistry maps an identifier (short code, name, numeric key) to an OrgUnit.
type OrgRegistry interface {
	// Resolve returns a NotFound domain error when nothing matches.
	Resolve(codeOrName string) (domain.OrgUnit, error)

	// All returns every unit in registry order.
	All() []domain.OrgUnit
}

// RunStore persists batch outcomes.
type RunStore interface {
	SaveReport(ctx context.Context, report *domain.BatchReport) error
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
	Close() error
}

// RunSummary is one row of run history.
type RunSummary struct {
	RunID       string
	StartedAt   time.Time
	CompletedAt time.Time
	Succeeded   int
	Failed      int
}

// Storage defines the contract for the run's on-disk footprint.
type Storage interface {
	// InitRun creates the run directory and the bound download directory.
	InitRun(ctx context.Context, runID string) (downloadDir string, err error)

	// SaveManifest writes the resolved job list for the run.
	SaveManifest(ctx context.Context, runID string, data []byte) error

	// ListArtifacts returns files in the download directory modified at or after since.
	ListArtifacts(ctx context.Context, runID string, since time.Time) ([]string, error)

	// GetRunPath returns the filesystem path for a given run ID.
	GetRunPath(runID string) string
}

// TemplateWriter fills a spreadsheet template with rows and saves it as outPath.
type TemplateWriter interface {
	Write(templatePath string, rows [][]string, outPath string) error
}
