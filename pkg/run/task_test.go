package run

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ir-scraper/pkg/models"
	"ir-scraper/pkg/utils"
)

func taskCompany() models.Company {
	return models.Company{ID: 1, Name: "Acme Corp", Symbol: "ACME", IRURL: "https://ir.acme.test/"}
}

func TestRetryingTask_SucceedsFirstAttempt(t *testing.T) {
	attempts := 0
	task := NewRetryingTask(taskCompany(), func(ctx context.Context) (*CrawlResult, error) {
		attempts++
		return &CrawlResult{Found: 3, Saved: 2}, nil
	}, 3, time.Millisecond, nil, testLogger())

	result, failure := task.Run(context.Background())
	require.Nil(t, failure)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.Found)
	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, 1, attempts)
}

func TestRetryingTask_RecoversAfterTransientError(t *testing.T) {
	attempts := 0
	task := NewRetryingTask(taskCompany(), func(ctx context.Context) (*CrawlResult, error) {
		attempts++
		if attempts < 3 {
			return nil, fmt.Errorf("%w: connection reset", utils.ErrFetch)
		}
		return &CrawlResult{Found: 1, Saved: 1}, nil
	}, 3, time.Millisecond, nil, testLogger())

	result, failure := task.Run(context.Background())
	require.Nil(t, failure)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Found)
	assert.Equal(t, 3, attempts)
}

func TestRetryingTask_ExhaustsRetries(t *testing.T) {
	attempts := 0
	task := NewRetryingTask(taskCompany(), func(ctx context.Context) (*CrawlResult, error) {
		attempts++
		return nil, fmt.Errorf("%w: still broken", utils.ErrFetch)
	}, 3, time.Millisecond, nil, testLogger())

	result, failure := task.Run(context.Background())
	assert.Nil(t, result)
	assert.Equal(t, 3, attempts)
	require.NotNil(t, failure)
	assert.Equal(t, "Acme Corp (ACME)", failure.Company)
	assert.Contains(t, failure.Error, "still broken", "failure should carry the last error")
}

func TestRetryingTask_TerminalErrorShortCircuits(t *testing.T) {
	attempts := 0
	task := NewRetryingTask(taskCompany(), func(ctx context.Context) (*CrawlResult, error) {
		attempts++
		return nil, fmt.Errorf("%w: robots.txt", utils.ErrPolicyDisallowed)
	}, 5, time.Millisecond, nil, testLogger())

	_, failure := task.Run(context.Background())
	assert.Equal(t, 1, attempts, "terminal errors must not be retried")
	require.NotNil(t, failure)
}

func TestRetryingTask_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	task := NewRetryingTask(taskCompany(), func(ctx context.Context) (*CrawlResult, error) {
		attempts++
		cancel()
		return nil, fmt.Errorf("%w: timed out", utils.ErrFetch)
	}, 5, 10*time.Second, nil, testLogger())

	result, failure := task.Run(ctx)
	assert.Nil(t, result)
	assert.Equal(t, 1, attempts)
	require.NotNil(t, failure)
	assert.Contains(t, failure.Error, context.Canceled.Error())
}
