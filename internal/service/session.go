package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"calpadsrunner/internal/config"
	"calpadsrunner/internal/core/domain"
	"calpadsrunner/internal/core/ports"
	"calpadsrunner/internal/portal"
)

// Session is one authenticated tab on the portal plus the state the
// workflows depend on: auth state and the selected org unit. A Session is
// not safe for concurrent use; run one batch per Session.
type Session struct {
	ID          string
	browser     ports.Browser
	surface     portal.Surface
	timeouts    config.Timeouts
	creds       domain.Credentials
	downloadDir string
	logger      *zap.Logger

	state    domain.AuthState
	selected *domain.OrgUnit
	closed   bool
}

// SessionOptions configures Open.
type SessionOptions struct {
	Surface     portal.Surface
	Timeouts    config.Timeouts
	DownloadDir string
	Logger      *zap.Logger
}

// Open logs in on b. On LoginFailure the browser is closed and no session is
// returned; nothing else can run without one.
func Open(ctx context.Context, b ports.Browser, creds domain.Credentials, opts SessionOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		ID:          uuid.NewString(),
		browser:     b,
		surface:     opts.Surface,
		timeouts:    opts.Timeouts,
		creds:       creds,
		downloadDir: opts.DownloadDir,
		state:       domain.Unauthenticated,
	}
	s.logger = logger.With(zap.String("session", s.ID))

	if err := s.login(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) login(ctx context.Context) error {
	t := s.timeouts
	fail := func(op string, err error) error {
		s.state = domain.Unauthenticated
		s.logger.Error("Login failed", zap.String("step", op), zap.Error(err))
		return domain.NewError(domain.KindLoginFailure, op, err)
	}

	s.logger.Info("Logging in", zap.String("portal", s.surface.Root()))
	if err := s.browser.Navigate(ctx, s.surface.Root(), t.Navigation).AsError(); err != nil {
		return fail("open portal", err)
	}
	if err := s.browser.WaitFor(ctx, portal.LoginReady, t.Login); err != nil {
		return fail("wait for login form", err)
	}
	if err := s.browser.Type(ctx, portal.LoginUsername, s.creds.Username, t.Default); err != nil {
		return fail("fill username", err)
	}
	if err := s.browser.Type(ctx, portal.LoginPassword, s.creds.Password, t.Default); err != nil {
		return fail("fill password", err)
	}
	if err := s.browser.Click(ctx, portal.LoginAgreement, t.Default); err != nil {
		return fail("accept terms", err)
	}
	if err := s.browser.ClickAndWait(ctx, portal.LoginSubmit, t.Login); err != nil {
		return fail("submit", err)
	}

	url, err := s.browser.URL(ctx)
	if err != nil {
		return fail("read url", err)
	}
	if s.surface.IsLoginPage(url) {
		return fail("submit", errors.New("credentials rejected"))
	}

	s.state = domain.Authenticated
	s.selected = nil
	s.logger.Info("Logged in")
	return nil
}

// Reauthenticate logs in again on the same browser after the portal
// expired the session.
func (s *Session) Reauthenticate(ctx context.Context) error {
	s.state = domain.Expired
	s.logger.Warn("Session expired, logging in again")
	return s.login(ctx)
}

// Visit navigates to url and fails with SessionExpired if the portal bounced
// the request to its login page.
func (s *Session) Visit(ctx context.Context, url string, timeout time.Duration) error {
	if err := s.browser.Navigate(ctx, url, timeout).AsError(); err != nil {
		return err
	}
	return s.CheckAuthenticated(ctx)
}

// CheckAuthenticated inspects the current URL for the login redirect.
func (s *Session) CheckAuthenticated(ctx context.Context) error {
	url, err := s.browser.URL(ctx)
	if err != nil {
		return domain.NewError(domain.KindInternal, "read url", err)
	}
	if s.surface.IsLoginPage(url) {
		s.state = domain.Expired
		s.selected = nil
		return domain.NewError(domain.KindSessionExpired, "redirected to login", nil)
	}
	return nil
}

// Reset returns to the portal root. Scope is re-established by the next
// EnsureScope call.
func (s *Session) Reset(ctx context.Context) error {
	return s.Visit(ctx, s.surface.Root(), s.timeouts.Navigation)
}

// Close releases the browser. Safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.state = domain.Unauthenticated
	s.selected = nil
	return s.browser.Close()
}

func (s *Session) Browser() ports.Browser    { return s.browser }
func (s *Session) Surface() portal.Surface   { return s.surface }
func (s *Session) Timeouts() config.Timeouts { return s.timeouts }
func (s *Session) State() domain.AuthState   { return s.state }
func (s *Session) DownloadDir() string       { return s.downloadDir }
func (s *Session) Logger() *zap.Logger       { return s.logger }

// Selected returns the unit the scope control was last confirmed to hold.
func (s *Session) Selected() (domain.OrgUnit, bool) {
	if s.selected == nil {
		return domain.OrgUnit{}, false
	}
	return *s.selected, true
}
