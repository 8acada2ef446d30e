package domain

import (
	"encoding/json"
	"os"
	"time"
)

// MediaDeviceSelection is the preferred camera/microphone pair written by the
// upstream device-test step. Read once at session setup; zero values mean
// default devices.
type MediaDeviceSelection struct {
	VideoDeviceID string `json:"video_device_id,omitempty"`
	AudioDeviceID string `json:"audio_device_id,omitempty"`
}

// LoadDeviceSelection reads the persisted selection record. A missing file is
// not an error: acquisition falls back to default devices.
func LoadDeviceSelection(path string) (MediaDeviceSelection, error) {
	var sel MediaDeviceSelection
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sel, nil
		}
		return sel, err
	}
	if err := json.Unmarshal(data, &sel); err != nil {
		return MediaDeviceSelection{}, err
	}
	return sel, nil
}

// AvatarUtterance is one AI response: the caption text is known immediately,
// the estimated duration paces turn-taking because the provider sends no
// explicit "utterance finished" signal.
type AvatarUtterance struct {
	Text              string
	EstimatedDuration time.Duration
}

const (
	minSpeechDuration = 2 * time.Second
	perCharDuration   = 80 * time.Millisecond
)

// EstimateSpeechDuration returns max(2s, len(text)*80ms).
func EstimateSpeechDuration(text string) time.Duration {
	d := time.Duration(len(text)) * perCharDuration
	if d < minSpeechDuration {
		return minSpeechDuration
	}
	return d
}

func NewAvatarUtterance(text string) AvatarUtterance {
	return AvatarUtterance{Text: text, EstimatedDuration: EstimateSpeechDuration(text)}
}

// Quality is the coarse connection quality classification for UI feedback.
type Quality int

const (
	QualityGood Quality = iota
	QualityFair
	QualityPoor
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	case QualityPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// QualityReport is one sample from the connection quality monitor.
type QualityReport struct {
	Level       Quality       `json:"level"`
	LossPercent float64       `json:"loss_percent"`
	RTT         time.Duration `json:"rtt"`
	// WarnID is set once per degradation episode so the UI can dedupe
	// the warning toast across repeated polls.
	WarnID string `json:"warn_id,omitempty"`
}
