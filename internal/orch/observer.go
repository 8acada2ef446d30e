package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
	"github.com/hirelink/interviewcore/internal/media"
)

// LogObserver is the headless view layer: every observer event becomes a log
// line. An embedding UI replaces it with its own implementation.
type LogObserver struct{}

var _ core.SessionObserver = LogObserver{}

func (LogObserver) OnStateChanged(state domain.ConnectionState) {
	log.Info().Str("module", "view").Str("state", state.String()).Msg("session state")
}

func (LogObserver) OnLocalStream(stream *media.Stream) {
	log.Info().Str("module", "view").Str("stream", stream.ID()).Msg("local stream ready")
}

func (LogObserver) OnRemoteStream(stream *media.RemoteStream) {
	log.Info().Str("module", "view").Int("tracks", stream.Len()).Msg("remote stream")
}

func (LogObserver) OnRemoteStreamCleared() {
	log.Info().Str("module", "view").Msg("remote stream cleared")
}

func (LogObserver) OnQuality(report domain.QualityReport) {
	log.Info().
		Str("module", "view").
		Str("level", report.Level.String()).
		Float64("loss_pct", report.LossPercent).
		Dur("rtt", report.RTT).
		Msg("quality sample")
}

func (LogObserver) OnNotice(n core.Notice) {
	ev := log.Info()
	switch n.Level {
	case core.NoticeWarn:
		ev = log.Warn()
	case core.NoticeError:
		ev = log.Error()
	}
	ev.Str("module", "view").Str("id", n.ID).Msg(n.Text)
}

func (LogObserver) OnChatMessage(msg domain.ChatMessage) {
	log.Info().Str("module", "view").Str("from", string(msg.From)).Msg(msg.Body)
}

func (LogObserver) OnRecordingStateChanged(active bool) {
	log.Info().Str("module", "view").Bool("active", active).Msg("recording state")
}

func (LogObserver) OnCaption(text string) {
	log.Info().Str("module", "view").Str("caption", text).Msg("caption revealed")
}
