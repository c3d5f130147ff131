package rodbrowser

import (
	"context"
	"errors"
	"testing"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"

	"calpadsrunner/internal/core/domain"
)

func TestClassifyNavigation(t *testing.T) {
	url := "https://portal.test/Extract/Download/1"

	aborted := classifyNavigation(url, &rod.NavigationError{Reason: "net::ERR_ABORTED"})
	assert.Equal(t, domain.NavAborted, aborted.Status)
	assert.Equal(t, "net::ERR_ABORTED", aborted.Reason)

	reset := classifyNavigation(url, &rod.NavigationError{Reason: "net::ERR_CONNECTION_RESET"})
	assert.Equal(t, domain.NavFailed, reset.Status)
	assert.Equal(t, domain.KindNavigation, domain.KindOf(reset.AsError()))

	timeout := classifyNavigation(url, context.DeadlineExceeded)
	assert.Equal(t, domain.NavFailed, timeout.Status)
	assert.True(t, errors.Is(timeout.AsError(), context.DeadlineExceeded))
}

func TestWaitError(t *testing.T) {
	err := waitError(context.Background(), "#missing", context.DeadlineExceeded)
	assert.Equal(t, domain.KindSelectorTimeout, domain.KindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, waitError(ctx, "#missing", context.Canceled), context.Canceled)
}
