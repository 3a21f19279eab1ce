package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildQueueURLAppendsColorWhenAbsent(t *testing.T) {
	got := BuildQueueURL("prod-compilation-queue", "blue", "")
	assert.Equal(t, "prod-compilation-queue-blue.fifo", got)
}

func TestBuildQueueURLRespectsExplicitColorSuffix(t *testing.T) {
	got := BuildQueueURL("prod-compilation-queue-green", "blue", "")
	assert.Equal(t, "prod-compilation-queue-green.fifo", got)
}

func TestBuildQueueURLFallsBackToDefaultWhenNameEmpty(t *testing.T) {
	got := BuildQueueURL("", "green", "https://sqs.example/prod-compilation-queue-green")
	assert.Equal(t, "https://sqs.example/prod-compilation-queue-green.fifo", got)
}

func TestBuildQueueURLIsIdempotentOnFifoSuffix(t *testing.T) {
	got := BuildQueueURL("prod-compilation-queue-blue.fifo", "blue", "")
	assert.Equal(t, "prod-compilation-queue-blue.fifo", got)
}
