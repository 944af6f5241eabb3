package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 1*time.Minute, RetryDelay(1))
	assert.Equal(t, 5*time.Minute, RetryDelay(2))
	assert.Equal(t, 30*time.Minute, RetryDelay(3))

	// Past the table the delay flattens out.
	assert.Equal(t, 60*time.Minute, RetryDelay(4))
	assert.Equal(t, 60*time.Minute, RetryDelay(17))

	// Out-of-range input clamps to the first slot.
	assert.Equal(t, 1*time.Minute, RetryDelay(0))
	assert.Equal(t, 1*time.Minute, RetryDelay(-3))
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(200))
	assert.True(t, IsSuccess(204))
	assert.True(t, IsSuccess(299))

	assert.False(t, IsSuccess(0)) // transport error, no response
	assert.False(t, IsSuccess(199))
	assert.False(t, IsSuccess(301))
	assert.False(t, IsSuccess(404))
	assert.False(t, IsSuccess(500))
}
