package player

import (
	"errors"
	"log/slog"

	"playback-controller/internal/platform/metrics"
)

// ErrSessionNotFound is returned for operations on a session that was never
// created or has been torn down.
var ErrSessionNotFound = errors.New("session not found")

// EngineFactory constructs the streaming engine for a new session. The
// service treats every concrete engine as a pluggable adapter behind the
// Engine interface.
type EngineFactory func(id SessionID) Engine

// Service applies playback-session business logic and delegates registry
// bookkeeping to Repository.
type Service struct {
	repo    Repository
	engines EngineFactory
	opts    SessionOptions
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewService returns a Service that stores sessions in repo and builds each
// session's engine with the given factory. Metrics may be nil to disable
// metric recording.
func NewService(repo Repository, engines EngineFactory, opts SessionOptions, log *slog.Logger, met *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		engines: engines,
		opts:    opts,
		log:     log,
		metrics: met,
	}
}

// LoadManifest creates a session for the given manifest, replacing (and
// closing) any session previously registered under the same ID. A manifest
// with zero renditions still produces a session; its state reports no
// playable source.
func (s *Service) LoadManifest(id SessionID, m Manifest) SessionState {
	sess := NewSession(id, m, s.engines(id), s.opts, s.log, s.metrics)

	if replaced := s.repo.PutSession(sess); replaced != nil {
		replaced.Close()
		s.log.Info("session replaced by new manifest", slog.String("session_id", string(id)))
	}

	return sess.State()
}

// State returns the observable state of the given session.
func (s *Service) State(id SessionID) (SessionState, error) {
	sess, ok := s.repo.GetSession(id)
	if !ok {
		return SessionState{}, ErrSessionNotFound
	}
	return sess.State(), nil
}

// Qualities returns the session's working quality list.
func (s *Service) Qualities(id SessionID) ([]QualityID, error) {
	sess, ok := s.repo.GetSession(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.AvailableQualities(), nil
}

// ChangeQuality executes a quality switch and returns the resulting state.
// Unknown identifiers are not an error; resolution falls back to the
// highest-quality catalog entry.
func (s *Service) ChangeQuality(id SessionID, quality QualityID) (SessionState, error) {
	sess, ok := s.repo.GetSession(id)
	if !ok {
		return SessionState{}, ErrSessionNotFound
	}
	sess.RequestQualityChange(quality)
	return sess.State(), nil
}

// ChangeRate applies a playback-rate change and returns the resulting state.
func (s *Service) ChangeRate(id SessionID, rate float64) (SessionState, error) {
	sess, ok := s.repo.GetSession(id)
	if !ok {
		return SessionState{}, ErrSessionNotFound
	}
	if err := sess.RequestPlaybackRateChange(rate); err != nil {
		return SessionState{}, err
	}
	return sess.State(), nil
}

// EndSession tears a session down and removes it from the registry.
// Ending a non-existent session is a no-op for idempotency.
func (s *Service) EndSession(id SessionID) {
	sess, ok := s.repo.RemoveSession(id)
	if !ok {
		return
	}
	sess.Close()
	if s.metrics != nil {
		s.metrics.IncSessionsEnded()
	}
}
