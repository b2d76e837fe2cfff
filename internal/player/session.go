package player

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"playback-controller/internal/platform/metrics"
)

// Default tuning for a session's background work.
const (
	DefaultReconcileInterval = time.Second
	DefaultReconcileMaxPolls = 30
	DefaultRestoreTimeout    = 5 * time.Second
)

// maxPlaybackRate bounds user-requested playback rates.
const maxPlaybackRate = 4.0

// ErrInvalidRate is returned for playback rates outside (0, 4].
var ErrInvalidRate = errors.New("invalid playback rate")

// SessionOptions tunes a session's reconciler and switch behavior.
// Zero values select the defaults.
type SessionOptions struct {
	// ReconcileInterval is the delay between reconciler polls of the
	// engine's discovered rendition list.
	ReconcileInterval time.Duration

	// ReconcileMaxPolls bounds the reconciler: it stops permanently after
	// this many polls even if the engine never reports renditions.
	ReconcileMaxPolls int

	// RestoreTimeout bounds the wait for the engine's metadata-ready event
	// after a source reload. On expiry the position restore is skipped
	// with a warning; playback continues from the engine's default start.
	RestoreTimeout time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = DefaultReconcileInterval
	}
	if o.ReconcileMaxPolls <= 0 {
		o.ReconcileMaxPolls = DefaultReconcileMaxPolls
	}
	if o.RestoreTimeout <= 0 {
		o.RestoreTimeout = DefaultRestoreTimeout
	}
	return o
}

// Session owns the playback state for one loaded video: the immutable
// catalog, the engine adapter, the reconciler, and the switch state machine.
// All mutation of SessionState goes through Session methods; the reconciler
// and the switch controller write disjoint fields.
type Session struct {
	id      SessionID
	log     *slog.Logger
	metrics *metrics.Metrics
	opts    SessionOptions

	adapter *StateAdapter
	catalog *Catalog

	mu           sync.Mutex
	state        SessionState
	discovered   []Rendition
	phase        SwitchPhase
	switchToken  uint64
	restoreTimer *time.Timer
	closed       bool

	closeCh       chan struct{}
	reconcileDone chan struct{}
}

// NewSession builds the catalog from the manifest, points the engine at the
// initial ("auto") source, and starts the reconciler. Metrics may be nil to
// disable metric recording (e.g. in tests).
//
// A manifest with zero renditions yields a session in the "no playable
// source" state rather than an error; the reconciler still runs, and
// engine-discovered renditions may rescue such a session later.
func NewSession(id SessionID, m Manifest, eng Engine, opts SessionOptions, log *slog.Logger, met *metrics.Metrics) *Session {
	s := &Session{
		id:            id,
		log:           log.With(slog.String("session_id", string(id))),
		metrics:       met,
		opts:          opts.withDefaults(),
		adapter:       NewStateAdapter(eng),
		catalog:       BuildCatalog(m),
		phase:         PhaseIdle,
		closeCh:       make(chan struct{}),
		reconcileDone: make(chan struct{}),
	}

	rate := eng.PlaybackRate()
	if rate <= 0 {
		rate = 1.0
	}

	s.state = SessionState{
		SelectedQuality:    QualityAuto,
		PlaybackRate:       rate,
		ViewType:           ViewTypeForFormat(m.Format),
		AvailableQualities: s.catalog.IDs(),
	}

	if url, ok := s.catalog.Resolve(QualityAuto); ok {
		s.adapter.SetSource(url)
		s.state.SourceURL = url
	} else {
		s.state.NoPlayableSource = true
		s.log.Warn("manifest declared no playable renditions")
	}

	go s.reconcileLoop()

	return s
}

// ID returns the session identifier.
func (s *Session) ID() SessionID { return s.id }

// State returns a copy of the observable session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() SessionState {
	st := s.state
	st.AvailableQualities = make([]QualityID, len(s.state.AvailableQualities))
	copy(st.AvailableQualities, s.state.AvailableQualities)
	return st
}

// AvailableQualities returns the current working quality list.
func (s *Session) AvailableQualities() []QualityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QualityID, len(s.state.AvailableQualities))
	copy(out, s.state.AvailableQualities)
	return out
}

// RequestPlaybackRateChange applies a user-requested playback rate.
func (s *Session) RequestPlaybackRateChange(rate float64) error {
	if rate <= 0 || rate > maxPlaybackRate {
		return ErrInvalidRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	s.adapter.SetPlaybackRate(rate)
	s.state.PlaybackRate = rate
	s.log.Debug("playback rate changed", slog.Float64("rate", rate))
	return nil
}

// Close tears the session down: stops the reconciler, cancels any pending
// restore callback and timeout timer. Idempotent and safe to call while a
// switch is in flight.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.restoreTimer != nil {
		s.restoreTimer.Stop()
		s.restoreTimer = nil
	}
	// Invalidate any in-flight switch so late callbacks no-op.
	s.switchToken++
	close(s.closeCh)
	s.mu.Unlock()

	s.adapter.CancelRestore()
	<-s.reconcileDone
	s.log.Debug("session closed")
}
