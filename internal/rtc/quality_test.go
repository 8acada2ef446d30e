package rtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hirelink/interviewcore/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		lossPct float64
		rtt     time.Duration
		want    domain.Quality
	}{
		{"clean link", 0, 50 * time.Millisecond, domain.QualityGood},
		{"moderate loss", 5, 50 * time.Millisecond, domain.QualityFair},
		{"moderate rtt", 0, 300 * time.Millisecond, domain.QualityFair},
		{"heavy loss", 12, 50 * time.Millisecond, domain.QualityPoor},
		{"heavy rtt", 0, 800 * time.Millisecond, domain.QualityPoor},
		{"boundary loss", 3, 0, domain.QualityGood},
		{"both degraded", 9, 600 * time.Millisecond, domain.QualityPoor},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.lossPct, tc.rtt))
		})
	}
}

func TestLossPercent(t *testing.T) {
	assert.Equal(t, 0.0, lossPercent(0, 0))
	assert.Equal(t, 0.0, lossPercent(100, 0))
	assert.InDelta(t, 50.0, lossPercent(50, 50), 0.01)
	// Negative lost counters (pion reports int32) clamp to zero.
	assert.Equal(t, 0.0, lossPercent(10, -5))
}

func TestPoorWarningDedupedPerEpisode(t *testing.T) {
	m := NewQualityMonitor(nil, time.Second)

	first := m.annotate(domain.QualityReport{Level: domain.QualityPoor})
	assert.NotEmpty(t, first.WarnID)

	// Repeated poor samples in the same episode carry no new warning.
	second := m.annotate(domain.QualityReport{Level: domain.QualityPoor})
	assert.Empty(t, second.WarnID)

	// Recovery then degrading again warns once more, with the same stable id.
	recovered := m.annotate(domain.QualityReport{Level: domain.QualityGood})
	assert.Empty(t, recovered.WarnID)

	third := m.annotate(domain.QualityReport{Level: domain.QualityPoor})
	assert.Equal(t, first.WarnID, third.WarnID)
}
