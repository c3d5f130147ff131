package service

import (
	"context"
	"errors"

	"calpadsrunner/internal/core/domain"
)

// Execute drives job from Idle to Confirmed with driver. It returns the last
// stage reached and, on failure, an error annotated with the stage it failed
// in.
func Execute(ctx context.Context, s *Session, driver Driver, job domain.WorkflowJob) (domain.Stage, error) {
	stage := domain.StageIdle

	if err := s.EnsureScope(ctx, job.Unit); err != nil {
		return stage, atStage(err, stage)
	}
	stage = domain.StageScopeEnsured

	steps := driver.Begin(s, job)
	transitions := []struct {
		run  func(context.Context) error
		next domain.Stage
	}{
		{steps.PageReady, domain.StagePageReady},
		{steps.FillInputs, domain.StageInputsFilled},
		{steps.Submit, domain.StageSubmitted},
		{steps.Confirm, domain.StageConfirmed},
	}
	for _, tr := range transitions {
		if err := ctx.Err(); err != nil {
			return stage, err
		}
		if err := tr.run(ctx); err != nil {
			return stage, atStage(err, stage)
		}
		stage = tr.next
	}
	return stage, nil
}

// atStage records on err the stage the job had reached. Unclassified errors
// other than cancellation are wrapped as internal so the stage is kept.
func atStage(err error, stage domain.Stage) error {
	var de *domain.Error
	if errors.As(err, &de) {
		if de.Stage == "" {
			de.Stage = stage
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.Error{Kind: domain.KindInternal, Stage: stage, Err: err}
}
