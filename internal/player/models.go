package player

import "strings"

// SessionID uniquely identifies a playback session (one loaded video).
type SessionID string

// QualityID identifies a particular rendition of a video (e.g. "720p", "1080p").
type QualityID string

// QualityAuto is the synthetic rendition identifier that delegates to the
// highest-quality manifest entry. It never carries a playback URL of its own.
const QualityAuto QualityID = "auto"

// qualityMaster is the manifest's internal aggregation key. It is excluded
// from user-facing rendition lists but remains resolvable as the default
// highest-quality URL.
const qualityMaster QualityID = "master"

// RenditionURLs holds the per-protocol playback URLs of a rendition.
// At least one of the two is expected to be set.
type RenditionURLs struct {
	Segmented     string `json:"segmented"`
	ManifestBased string `json:"manifestBased"`
}

// Rendition is one encoded quality variant of a video.
type Rendition struct {
	ID      QualityID     `json:"id"`
	Bitrate int64         `json:"bitrate"` // bits/sec, 0 when unknown
	URLs    RenditionURLs `json:"urls"`
}

// URL returns the preferred playback URL: segmented streaming first,
// manifest-based as fallback. Empty when the rendition has no URL.
func (r Rendition) URL() string {
	if r.URLs.Segmented != "" {
		return r.URLs.Segmented
	}
	return r.URLs.ManifestBased
}

// ManifestQuality is one rendition entry as declared by the manifest.
type ManifestQuality struct {
	Resolution string        `json:"resolution"`
	Bitrate    int64         `json:"bitrate"`
	URLs       RenditionURLs `json:"urls"`
}

// Manifest is the read-only input from the video-metadata service.
type Manifest struct {
	Qualities map[QualityID]ManifestQuality `json:"qualities"`
	Thumbnail string                        `json:"thumbnail"`
	Subtitles []string                      `json:"subtitles"`
	Format    string                        `json:"format"`
}

// ViewType classifies the loaded media for the UI.
type ViewType string

const (
	ViewTypeVideo   ViewType = "video"
	ViewTypeAudio   ViewType = "audio"
	ViewTypeUnknown ViewType = "unknown"
)

var audioFormats = map[string]bool{
	"mp3": true, "aac": true, "flac": true, "ogg": true, "opus": true, "wav": true,
}

var videoFormats = map[string]bool{
	"mp4": true, "webm": true, "mkv": true, "mov": true, "hls": true, "dash": true, "ts": true,
}

// ViewTypeForFormat derives the view type from the manifest's container format.
func ViewTypeForFormat(format string) ViewType {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	switch {
	case audioFormats[f]:
		return ViewTypeAudio
	case videoFormats[f]:
		return ViewTypeVideo
	default:
		return ViewTypeUnknown
	}
}

// SessionState is the externally observable state of a playback session.
// The rest of the UI only ever reads it; all mutation goes through Session.
type SessionState struct {
	SelectedQuality    QualityID   `json:"selectedQuality"`
	SourceURL          string      `json:"sourceUrl"`
	PlaybackRate       float64     `json:"playbackRate"`
	ViewType           ViewType    `json:"viewType"`
	AvailableQualities []QualityID `json:"availableQualities"`

	// NoPlayableSource is the one terminal, user-visible failure: the
	// manifest declared zero renditions and nothing was discovered.
	NoPlayableSource bool `json:"noPlayableSource"`
}

// SwitchPhase tracks where a quality switch currently is. Settled is
// transient bookkeeping: the machine returns to Idle immediately after
// the switch's effects are applied.
type SwitchPhase int

const (
	PhaseIdle SwitchPhase = iota
	PhaseSwitchRequested
	PhaseAwaitingEngineSwitch
	PhaseAwaitingSourceReload
	PhaseSettled
)

// String returns a human-readable label for the switch phase.
func (p SwitchPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSwitchRequested:
		return "switch_requested"
	case PhaseAwaitingEngineSwitch:
		return "awaiting_engine_switch"
	case PhaseAwaitingSourceReload:
		return "awaiting_source_reload"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}
