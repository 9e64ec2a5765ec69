package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncTaskSynced()
		IncTaskRetry()
		IncTaskFailed("transport")
		IncRemoteRequest("create_card", "ok")
		IncDrain()
		SetQueuePending(3)
	})
}
