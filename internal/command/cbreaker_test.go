package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, b.TryAcquire())
		b.OnFailure()
	}

	assert.False(t, b.TryAcquire(), "breaker must be open after the third consecutive failure")
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b := NewMicroBreaker(3, time.Minute)

	b.OnFailure()
	b.OnFailure()
	assert.True(t, b.TryAcquire())

	// a success resets the streak
	b.OnSuccess()
	b.OnFailure()
	b.OnFailure()
	assert.True(t, b.TryAcquire())
}

func TestBreakerAdmitsSingleProbeAfterOpenWindow(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)

	b.OnFailure()
	assert.False(t, b.TryAcquire())

	time.Sleep(15 * time.Millisecond)

	assert.True(t, b.TryAcquire(), "one probe is admitted after the open window")
	assert.False(t, b.TryAcquire(), "a second caller must wait for the probe's verdict")
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)

	b.OnFailure()
	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.TryAcquire())
	b.OnSuccess()

	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := NewMicroBreaker(1, 10*time.Millisecond)

	b.OnFailure()
	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.TryAcquire())
	b.OnFailure()

	assert.False(t, b.TryAcquire(), "failed probe reopens the breaker")
}
