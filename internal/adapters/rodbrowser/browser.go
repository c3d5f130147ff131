// Package rodbrowser drives Chrome through the DevTools protocol with go-rod.
package rodbrowser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"calpadsrunner/internal/core/domain"
	"calpadsrunner/internal/core/ports"
)

// abortedReason is Chrome's error text for a navigation that turned into a download.
const abortedReason = "net::ERR_ABORTED"

// Options configures Launch.
type Options struct {
	Headless    bool
	Bin         string // Chrome binary; empty lets the launcher find or fetch one
	DebuggerURL string // attach to a running Chrome instead of launching
	DownloadDir string // absolute path downloads are written to
}

// Browser implements ports.Browser over one rod page.
type Browser struct {
	scope
	browser  *rod.Browser
	launcher *launcher.Launcher
}

var _ ports.Browser = (*Browser)(nil)

// Launch starts (or attaches to) Chrome, opens a blank tab and binds the
// download directory.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	var l *launcher.Launcher
	controlURL := opts.DebuggerURL
	if controlURL == "" {
		l = launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	b := &Browser{browser: browser, launcher: l}
	if opts.DownloadDir != "" {
		err := proto.BrowserSetDownloadBehavior{
			Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllow,
			DownloadPath:  opts.DownloadDir,
			EventsEnabled: true,
		}.Call(browser)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("set download dir: %w", err)
		}
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	b.page = page
	return b, nil
}

// Close closes the tab and the browser, and removes a launched Chrome's profile.
func (b *Browser) Close() error {
	var err error
	if b.page != nil {
		_ = b.page.Close()
	}
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
	return err
}

// Navigate loads url and waits for the load event.
func (b *Browser) Navigate(ctx context.Context, url string, timeout time.Duration) domain.Navigation {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := b.page.Context(tctx)

	if err := p.Navigate(url); err != nil {
		return classifyNavigation(url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return domain.Navigation{URL: url, Status: domain.NavFailed, Reason: "wait load", Err: err}
	}
	return domain.Loaded(url)
}

func classifyNavigation(url string, err error) domain.Navigation {
	var navErr *rod.NavigationError
	if errors.As(err, &navErr) {
		status := domain.NavFailed
		if strings.Contains(navErr.Reason, abortedReason) {
			status = domain.NavAborted
		}
		return domain.Navigation{URL: url, Status: status, Reason: navErr.Reason, Err: err}
	}
	return domain.Navigation{URL: url, Status: domain.NavFailed, Reason: err.Error(), Err: err}
}

// ClickAndWait clicks selector and waits until the triggered navigation settles.
func (b *Browser) ClickAndWait(ctx context.Context, selector string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := b.page.Context(tctx)

	el, err := p.Element(selector)
	if err != nil {
		return waitError(ctx, selector, err)
	}
	wait := p.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return domain.NewError(domain.KindInternal, "click "+selector, err)
	}
	wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := tctx.Err(); err != nil {
		return domain.NavigationFailed("after click "+selector, err)
	}
	return nil
}

// Frame returns the document inside the iframe matched by selector.
func (b *Browser) Frame(ctx context.Context, selector string, timeout time.Duration) (ports.Page, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := b.page.Context(tctx).Element(selector)
	if err != nil {
		return nil, waitError(ctx, selector, err)
	}
	frame, err := el.Frame()
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "frame "+selector, err)
	}
	return &scope{page: frame}, nil
}

// URL returns the current page URL.
func (b *Browser) URL(ctx context.Context) (string, error) {
	info, err := b.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}
