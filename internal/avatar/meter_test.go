package avatar

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/pion/opus"
	"github.com/stretchr/testify/assert"
)

func pcmFrom(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestMeanAbs(t *testing.T) {
	assert.Zero(t, meanAbs(nil))
	assert.Zero(t, meanAbs(pcmFrom(0, 0, 0, 0)))

	// Full-scale signal normalizes to ~1.
	assert.InDelta(t, 1.0, meanAbs(pcmFrom(math.MaxInt16, math.MaxInt16)), 0.001)

	// Sign is discarded; mixed polarity averages the magnitudes.
	half := int16(math.MaxInt16 / 2)
	assert.InDelta(t, 0.5, meanAbs(pcmFrom(half, -half)), 0.001)
}

func TestDecodedBytes(t *testing.T) {
	// One 20ms wideband frame: 320 samples upsampled x3, S16LE.
	assert.Equal(t, 1920, decodedBytes(opus.BandwidthWideband, false))
	assert.Equal(t, 3840, decodedBytes(opus.BandwidthWideband, true))
	assert.Equal(t, 960, decodedBytes(opus.BandwidthNarrowband, false))
	assert.Zero(t, decodedBytes(opus.Bandwidth(0), false))
}

func TestLevelReadsOnlyTheDecodedRegion(t *testing.T) {
	// A loud mono frame occupies the front of the buffer; averaging the whole
	// buffer would dilute it below the onset threshold.
	buf := make([]byte, pcmBufSize)
	frame := decodedBytes(opus.BandwidthWideband, false)
	for i := 0; i < frame/2; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(math.MaxInt16/8)))
	}

	assert.Greater(t, meanAbs(buf[:frame]), speechThreshold)
	assert.Less(t, meanAbs(buf), speechThreshold)
}

func TestLevelMeterDefaultsToSilence(t *testing.T) {
	m := NewLevelMeter()
	assert.Zero(t, m.Level())
}
