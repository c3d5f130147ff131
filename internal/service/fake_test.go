package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"calpadsrunner/internal/config"
	"calpadsrunner/internal/core/domain"
	"calpadsrunner/internal/core/ports"
	"calpadsrunner/internal/portal"
)

const testBase = "https://portal.test"

var (
	unitA = domain.OrgUnit{ID: "a", Short: "A", Name: "Unit A", NumericKey: "0100001", ContextKey: "101"}
	unitB = domain.OrgUnit{ID: "b", Short: "B", Name: "Unit B", NumericKey: "0100002", ContextKey: "102"}

	testCreds = domain.Credentials{Username: "user", Password: "secret"}
	runDate   = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
)

var errInjected = errors.New("fake: injected timeout")

// fakeDOM is an in-memory DOM scope. Selectors are either present or not;
// there is no page structure beyond that.
type fakeDOM struct {
	present map[string]bool
	options map[string]map[string]bool
	values  map[string]string
	props   map[string]string
	typed   map[string]string
	fail    map[string]int // "op selector" -> number of calls that time out
	calls   []string
}

func newDOM(selectors ...string) *fakeDOM {
	d := &fakeDOM{
		present: map[string]bool{},
		options: map[string]map[string]bool{},
		values:  map[string]string{},
		props:   map[string]string{},
		typed:   map[string]string{},
		fail:    map[string]int{},
	}
	for _, s := range selectors {
		d.present[s] = true
	}
	return d
}

func (d *fakeDOM) record(op, sel string) error {
	key := op + " " + sel
	d.calls = append(d.calls, key)
	if d.fail[key] > 0 {
		d.fail[key]--
		return domain.SelectorTimeout(sel, errInjected)
	}
	return nil
}

func (d *fakeDOM) need(sel string) error {
	if !d.present[sel] {
		return domain.SelectorTimeout(sel, errors.New("fake: not on page"))
	}
	return nil
}

func (d *fakeDOM) called(key string) int {
	n := 0
	for _, c := range d.calls {
		if c == key {
			n++
		}
	}
	return n
}

func (d *fakeDOM) WaitFor(ctx context.Context, sel string, _ time.Duration) error {
	if err := d.record("wait", sel); err != nil {
		return err
	}
	return d.need(sel)
}

func (d *fakeDOM) WaitHidden(ctx context.Context, sel string, _ time.Duration) error {
	return d.record("hidden", sel)
}

func (d *fakeDOM) Has(ctx context.Context, sel string) (bool, error) {
	d.calls = append(d.calls, "has "+sel)
	return d.present[sel], nil
}

func (d *fakeDOM) Click(ctx context.Context, sel string, _ time.Duration) error {
	if err := d.record("click", sel); err != nil {
		return err
	}
	return d.need(sel)
}

func (d *fakeDOM) Type(ctx context.Context, sel, text string, _ time.Duration) error {
	if err := d.record("type", sel); err != nil {
		return err
	}
	if err := d.need(sel); err != nil {
		return err
	}
	d.typed[sel] = text
	return nil
}

func (d *fakeDOM) Select(ctx context.Context, sel, value string, _ time.Duration) error {
	if err := d.record("select", sel); err != nil {
		return err
	}
	if err := d.need(sel); err != nil {
		return err
	}
	if opts, ok := d.options[sel]; ok && !opts[value] {
		return domain.NewError(domain.KindInternal, "select "+value+" in "+sel, errors.New("fake: no such option"))
	}
	d.values[sel] = value
	return nil
}

func (d *fakeDOM) Value(ctx context.Context, sel string) (string, error) {
	if err := d.record("value", sel); err != nil {
		return "", err
	}
	if err := d.need(sel); err != nil {
		return "", err
	}
	return d.values[sel], nil
}

func (d *fakeDOM) Property(ctx context.Context, sel, name string, _ time.Duration) (string, error) {
	if err := d.record("prop", sel); err != nil {
		return "", err
	}
	if err := d.need(sel); err != nil {
		return "", err
	}
	return d.props[sel+"#"+name], nil
}

func (d *fakeDOM) Evaluate(ctx context.Context, script string, _ time.Duration) error {
	d.calls = append(d.calls, "eval "+script)
	return nil
}

func (d *fakeDOM) UploadFile(ctx context.Context, sel, path string, _ time.Duration) error {
	if err := d.record("upload", sel); err != nil {
		return err
	}
	if err := d.need(sel); err != nil {
		return err
	}
	d.typed[sel] = path
	return nil
}

// fakePortal is a ports.Browser over a fakeDOM that understands login,
// session expiry and per-URL navigation outcomes.
type fakePortal struct {
	*fakeDOM
	url       string
	navs      []string
	navOut    map[string]domain.Navigation
	expire    int  // upcoming navigations that land on the login page
	loggedOut bool // every navigation lands on the login page until the next login
	frames    map[string]*fakeDOM
	closed    int
	accepted  domain.Credentials
	onNav     func(url string)
}

var _ ports.Browser = (*fakePortal)(nil)

// newFakePortal returns a portal where every control the drivers use is
// present and the org selector offers unitA and unitB.
func newFakePortal() *fakePortal {
	dom := newDOM(
		portal.LoginReady, portal.LoginUsername, portal.LoginPassword, portal.LoginAgreement,
		portal.OrgSelect,
		portal.UploadFileType, portal.UploadFileInput, portal.UploadJobName, portal.UploadSubmit,
		portal.ExtractStartDate, portal.ExtractEndDate, portal.ExtractMoveAll,
		portal.ExtractFileName, portal.ExtractFileNameAlt, portal.ExtractRequestSubmit,
		portal.ExtractDownloadLink,
		portal.ReportFrame,
	)
	dom.options[portal.OrgSelect] = map[string]bool{unitA.ContextKey: true, unitB.ContextKey: true}
	dom.props[portal.ExtractDownloadLink+"#href"] = testBase + "/Extract/Download/42"

	frame := newDOM(portal.ReportParam, portal.ReportView, portal.ReportAsyncWait)

	return &fakePortal{
		fakeDOM: dom,
		navOut: map[string]domain.Navigation{
			testBase + "/Extract/Download/42": {URL: testBase + "/Extract/Download/42", Status: domain.NavAborted, Reason: "net::ERR_ABORTED"},
		},
		frames:   map[string]*fakeDOM{portal.ReportFrame: frame},
		accepted: testCreds,
	}
}

func (f *fakePortal) Navigate(ctx context.Context, url string, _ time.Duration) domain.Navigation {
	f.navs = append(f.navs, url)
	if f.onNav != nil {
		f.onNav(url)
	}
	if err := ctx.Err(); err != nil {
		return domain.Navigation{URL: url, Status: domain.NavFailed, Err: err}
	}
	if n, ok := f.navOut[url]; ok {
		if n.Status == domain.NavLoaded {
			f.url = url
		}
		return n
	}
	if f.loggedOut {
		f.url = testBase + "/Account/Login?ReturnUrl=%2F"
		return domain.Loaded(url)
	}
	if f.expire > 0 {
		f.expire--
		f.url = testBase + "/Account/Login?ReturnUrl=%2F"
		return domain.Loaded(url)
	}
	f.url = url
	return domain.Loaded(url)
}

func (f *fakePortal) ClickAndWait(ctx context.Context, sel string, _ time.Duration) error {
	if err := f.record("clickwait", sel); err != nil {
		return err
	}
	if err := f.need(sel); err != nil {
		return err
	}
	if sel == portal.LoginSubmit {
		if f.typed[portal.LoginUsername] == f.accepted.Username && f.typed[portal.LoginPassword] == f.accepted.Password {
			f.url = testBase + "/Home"
			f.loggedOut = false
		} else {
			f.url = testBase + "/Account/Login"
		}
	}
	return nil
}

func (f *fakePortal) Frame(ctx context.Context, sel string, _ time.Duration) (ports.Page, error) {
	if err := f.record("frame", sel); err != nil {
		return nil, err
	}
	if err := f.need(sel); err != nil {
		return nil, err
	}
	return f.frames[sel], nil
}

func (f *fakePortal) URL(ctx context.Context) (string, error) {
	return f.url, nil
}

func (f *fakePortal) Close() error {
	f.closed++
	return nil
}

// navCount counts navigations to urls starting with prefix.
func (f *fakePortal) navCount(prefix string) int {
	n := 0
	for _, u := range f.navs {
		if strings.HasPrefix(u, prefix) {
			n++
		}
	}
	return n
}

func testSurface() portal.Surface {
	s := portal.DefaultSurface()
	s.BaseURL = testBase
	return s
}

func testTimeouts() config.Timeouts {
	t := config.DefaultTimeouts()
	t.Settle = 0
	return t
}

func openSession(t *testing.T, fp *fakePortal) *Session {
	t.Helper()
	s, err := Open(context.Background(), fp, testCreds, SessionOptions{
		Surface:     testSurface(),
		Timeouts:    testTimeouts(),
		DownloadDir: t.TempDir(),
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return s
}

func testLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}
