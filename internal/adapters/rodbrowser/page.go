package rodbrowser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"calpadsrunner/internal/core/domain"
)

// scope implements ports.Page for a top-level page or a frame.
type scope struct {
	page *rod.Page
}

// element waits up to timeout for selector and returns it bound to a
// context the caller must cancel.
func (s *scope) element(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, context.CancelFunc, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	el, err := s.page.Context(tctx).Element(selector)
	if err != nil {
		cancel()
		return nil, nil, waitError(ctx, selector, err)
	}
	return el, cancel, nil
}

// waitError keeps a caller cancellation distinct from the control never appearing.
func waitError(parent context.Context, selector string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return domain.SelectorTimeout(selector, err)
}

func (s *scope) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	_, cancel, err := s.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	cancel()
	return nil
}

func (s *scope) WaitHidden(ctx context.Context, selector string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	has, el, err := s.page.Context(tctx).Has(selector)
	if err != nil {
		return domain.NewError(domain.KindInternal, "query "+selector, err)
	}
	if !has {
		return nil
	}
	if err := el.WaitInvisible(); err != nil {
		return waitError(ctx, selector+" (hidden)", err)
	}
	return nil
}

func (s *scope) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return false, domain.NewError(domain.KindInternal, "query "+selector, err)
	}
	return has, nil
}

func (s *scope) Click(ctx context.Context, selector string, timeout time.Duration) error {
	el, cancel, err := s.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return domain.NewError(domain.KindInternal, "click "+selector, err)
	}
	return nil
}

func (s *scope) Type(ctx context.Context, selector, text string, timeout time.Duration) error {
	el, cancel, err := s.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	if err := el.Input(text); err != nil {
		return domain.NewError(domain.KindInternal, "type "+selector, err)
	}
	return nil
}

func (s *scope) Select(ctx context.Context, selector, value string, timeout time.Duration) error {
	el, cancel, err := s.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	option := fmt.Sprintf(`option[value=%q]`, value)
	if err := el.Select([]string{option}, true, rod.SelectorTypeCSSSector); err != nil {
		return domain.NewError(domain.KindInternal, "select "+value+" in "+selector, err)
	}
	return nil
}

func (s *scope) Value(ctx context.Context, selector string) (string, error) {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return "", domain.NewError(domain.KindInternal, "query "+selector, err)
	}
	if !has {
		return "", domain.SelectorTimeout(selector, nil)
	}
	v, err := el.Property("value")
	if err != nil {
		return "", domain.NewError(domain.KindInternal, "value of "+selector, err)
	}
	return v.Str(), nil
}

func (s *scope) Property(ctx context.Context, selector, name string, timeout time.Duration) (string, error) {
	el, cancel, err := s.element(ctx, selector, timeout)
	if err != nil {
		return "", err
	}
	defer cancel()
	v, err := el.Property(name)
	if err != nil {
		return "", domain.NewError(domain.KindInternal, name+" of "+selector, err)
	}
	return v.Str(), nil
}

func (s *scope) Evaluate(ctx context.Context, script string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := s.page.Context(tctx).Eval(script); err != nil {
		return domain.NewError(domain.KindInternal, "evaluate", err)
	}
	return nil
}

func (s *scope) UploadFile(ctx context.Context, selector, path string, timeout time.Duration) error {
	el, cancel, err := s.element(ctx, selector, timeout)
	if err != nil {
		return err
	}
	defer cancel()
	if err := el.SetFiles([]string{path}); err != nil {
		return domain.NewError(domain.KindInternal, "attach "+path, err)
	}
	return nil
}
