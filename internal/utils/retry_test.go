package utils

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-engine/internal/logging"
)

func TestRetryStopsAfterSuccess(t *testing.T) {
	calls := 0
	err := Retry(logging.NewNop(), "test op", 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryExhaustsWithLabelledError(t *testing.T) {
	calls := 0
	err := Retry(logging.NewNop(), "push send", 3, time.Millisecond, func() error {
		calls++
		return fmt.Errorf("gateway down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "push send failed after 3 attempts")
	assert.Contains(t, err.Error(), "gateway down")
}
