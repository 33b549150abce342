package rudp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRTTEstimatorPrefillAndMean(t *testing.T) {
	assert := assert.New(t)

	r := newRTTEstimator(4, 100*time.Millisecond)
	assert.Equal(100*time.Millisecond, r.value())
}

func TestRTTEstimatorFoldsNewSamples(t *testing.T) {
	assert := assert.New(t)

	r := newRTTEstimator(2, 100*time.Millisecond)
	r.addPoint(200 * time.Millisecond)
	// one slot still holds the prefilled 100ms
	assert.Equal(150*time.Millisecond, r.value())

	r.addPoint(200 * time.Millisecond)
	assert.Equal(200*time.Millisecond, r.value())
}

func TestRTTEstimatorWrapsCircularly(t *testing.T) {
	assert := assert.New(t)

	r := newRTTEstimator(2, 0)
	r.addPoint(10 * time.Millisecond)
	r.addPoint(20 * time.Millisecond)
	r.addPoint(30 * time.Millisecond) // overwrites the first slot

	assert.Equal(25*time.Millisecond, r.value())
}
