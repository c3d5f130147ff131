package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"calpadsrunner/internal/core/domain"
	"calpadsrunner/internal/portal"
)

// EnsureScope makes unit the active organization on the portal. It is
// idempotent: when the org selector already shows unit, nothing is clicked
// or navigated.
//
// Some portal pages have no org selector. If the selector is missing even on
// the portal root, EnsureScope returns nil and leaves Selected unchanged;
// scope-sensitive workflows must confirm success from page content. A
// selector that is present but refuses the value is a ScopeSelection error.
func (s *Session) EnsureScope(ctx context.Context, unit domain.OrgUnit) error {
	b := s.browser
	log := s.logger.With(zap.String("unit", unit.Short))

	present, err := b.Has(ctx, portal.OrgSelect)
	if err != nil {
		return err
	}
	if !present {
		log.Debug("Org selector not on page, returning to portal root")
		if err := s.Visit(ctx, s.surface.Root(), s.timeouts.Navigation); err != nil {
			return err
		}
		if err := b.WaitFor(ctx, portal.OrgSelect, s.timeouts.Scope); err != nil {
			if domain.IsKind(err, domain.KindSelectorTimeout) {
				log.Debug("Org selector absent, scope left unchanged")
				return nil
			}
			return err
		}
	}

	current, err := b.Value(ctx, portal.OrgSelect)
	if err != nil {
		return scopeError(unit, err)
	}
	if current == unit.ContextKey {
		s.setSelected(unit)
		return nil
	}

	log.Info("Selecting organization", zap.String("from", current), zap.String("to", unit.ContextKey))
	if err := b.Select(ctx, portal.OrgSelect, unit.ContextKey, s.timeouts.Scope); err != nil {
		return scopeError(unit, err)
	}
	current, err = b.Value(ctx, portal.OrgSelect)
	if err != nil {
		return scopeError(unit, err)
	}
	if current != unit.ContextKey {
		return scopeError(unit, fmt.Errorf("selector shows %q after selecting %q", current, unit.ContextKey))
	}
	s.setSelected(unit)
	return nil
}

func (s *Session) setSelected(unit domain.OrgUnit) {
	u := unit
	s.selected = &u
}

func scopeError(unit domain.OrgUnit, err error) error {
	return domain.NewError(domain.KindScopeSelection, "select org "+unit.Short, err)
}
