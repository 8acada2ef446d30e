package avatar

import (
	"context"
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/pion/opus"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// LevelSource reports the current inbound audio energy, normalized to 0..1.
type LevelSource interface {
	Level() float64
}

// pcmBuf fits one 40ms stereo frame at 48kHz.
const pcmBufSize = 1920 * 2 * 2

// LevelMeter decodes the avatar's inbound Opus audio and keeps a running
// mean-absolute-amplitude reading. It is the Go analogue of a Web-Audio
// analyser node: the onset detector polls Level() instead of subscribing to
// frames.
type LevelMeter struct {
	level atomic.Uint64
}

func NewLevelMeter() *LevelMeter { return &LevelMeter{} }

// Start consumes the remote audio track until ctx is done or the track ends.
func (m *LevelMeter) Start(ctx context.Context, track *webrtc.TrackRemote) {
	go m.loop(ctx, track)
}

func (m *LevelMeter) loop(ctx context.Context, track *webrtc.TrackRemote) {
	decoder := opus.NewDecoder()
	pcm := make([]byte, pcmBufSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Info().Err(err).Str("module", "avatar").Msg("level meter track ended")
			m.level.Store(0)
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		bandwidth, isStereo, err := decoder.Decode(pkt.Payload, pcm)
		if err != nil {
			// Decode hiccups are expected around packet loss.
			continue
		}
		// Average only the bytes this frame actually produced; the zero tail
		// of the buffer would drag the reading down otherwise.
		n := decodedBytes(bandwidth, isStereo)
		if n <= 0 || n > len(pcm) {
			n = len(pcm)
		}
		m.level.Store(math.Float64bits(meanAbs(pcm[:n])))
	}
}

// decodedBytes reports how much of the output buffer one frame fills: 20ms of
// samples at the SILK rate, upsampled x3, two bytes per sample.
func decodedBytes(bandwidth opus.Bandwidth, isStereo bool) int {
	n := bandwidth.SampleRate() / 50 * 3 * 2
	if isStereo {
		n *= 2
	}
	return n
}

// Level returns the last measured energy.
func (m *LevelMeter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// meanAbs averages the absolute value of S16LE samples, normalized to 0..1.
func meanAbs(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		sum += math.Abs(float64(s))
	}
	return sum / float64(n) / math.MaxInt16
}
