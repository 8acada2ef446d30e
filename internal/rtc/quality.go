package rtc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/domain"
)

const defaultSampleInterval = 3 * time.Second

// Quality classification thresholds.
const (
	poorLossPercent = 8.0
	poorRTT         = 500 * time.Millisecond
	fairLossPercent = 3.0
	fairRTT         = 250 * time.Millisecond
)

// QualityMonitor samples peer connection statistics on an interval and
// classifies them into a coarse good/fair/poor level. Entering the poor tier
// attaches a warning id once per episode so repeated polls don't spam the UI.
type QualityMonitor struct {
	pc       *webrtc.PeerConnection
	interval time.Duration

	warnID        string
	warnedEpisode bool

	lastReceived uint32
	lastLost     int32
}

func NewQualityMonitor(pc *webrtc.PeerConnection, interval time.Duration) *QualityMonitor {
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	return &QualityMonitor{
		pc:       pc,
		interval: interval,
		warnID:   uuid.NewString(),
	}
}

// Run samples until ctx is done.
func (m *QualityMonitor) Run(ctx context.Context, emit func(domain.QualityReport)) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.pc.ConnectionState() != webrtc.PeerConnectionStateConnected {
				continue
			}
			report := m.sample()
			log.Debug().
				Str("module", "rtc").
				Str("quality", report.Level.String()).
				Float64("loss_pct", report.LossPercent).
				Dur("rtt", report.RTT).
				Msg("quality sample")
			emit(report)
		}
	}
}

// sample reads packet loss deltas and the selected candidate pair RTT.
func (m *QualityMonitor) sample() domain.QualityReport {
	var (
		received uint32
		lost     int32
		rtt      time.Duration
	)

	for _, s := range m.pc.GetStats() {
		switch st := s.(type) {
		case webrtc.InboundRTPStreamStats:
			received += st.PacketsReceived
			lost += st.PacketsLost
		case webrtc.ICECandidatePairStats:
			if st.State == webrtc.StatsICECandidatePairStateSucceeded {
				rtt = time.Duration(st.CurrentRoundTripTime * float64(time.Second))
			}
		}
	}

	deltaReceived := received - m.lastReceived
	deltaLost := lost - m.lastLost
	m.lastReceived = received
	m.lastLost = lost

	lossPct := lossPercent(deltaReceived, deltaLost)
	level := classify(lossPct, rtt)

	return m.annotate(domain.QualityReport{Level: level, LossPercent: lossPct, RTT: rtt})
}

// annotate attaches the warning id on the first poor sample of an episode;
// recovery arms it again.
func (m *QualityMonitor) annotate(report domain.QualityReport) domain.QualityReport {
	if report.Level == domain.QualityPoor {
		if !m.warnedEpisode {
			m.warnedEpisode = true
			report.WarnID = m.warnID
		}
	} else {
		m.warnedEpisode = false
	}
	return report
}

func lossPercent(received uint32, lost int32) float64 {
	if lost < 0 {
		lost = 0
	}
	total := float64(received) + float64(lost)
	if total == 0 {
		return 0
	}
	return float64(lost) / total * 100
}

func classify(lossPct float64, rtt time.Duration) domain.Quality {
	switch {
	case lossPct > poorLossPercent || rtt > poorRTT:
		return domain.QualityPoor
	case lossPct > fairLossPercent || rtt > fairRTT:
		return domain.QualityFair
	default:
		return domain.QualityGood
	}
}
