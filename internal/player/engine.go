package player

import "sync"

// Engine is the surface the controller needs from an embedded streaming
// engine. Concrete engines (browser media element bridges, native players,
// the in-process clock engine) plug in behind this interface; the controller
// never depends on any engine's internal object graph.
type Engine interface {
	// CurrentTime returns the playback position in seconds.
	CurrentTime() float64
	// Paused reports whether playback is currently paused.
	Paused() bool
	// PlaybackRate returns the current rate (1.0 = normal speed).
	PlaybackRate() float64
	// SetPlaybackRate changes the playback rate. Fire-and-forget.
	SetPlaybackRate(rate float64)
	// SetCurrentTime seeks to the given position. Fire-and-forget.
	SetCurrentTime(seconds float64)
	// SetSource replaces the media source. The engine resets its position
	// and re-parses rendition metadata asynchronously.
	SetSource(url string)
	// Play starts or resumes playback.
	Play()

	// DiscoveredRenditions returns the engine's current best-known
	// rendition list parsed from the stream container. It may be empty for
	// a long indeterminate period after a source is set and is not
	// guaranteed stable between calls.
	DiscoveredRenditions() []Rendition

	// SelectRendition attempts an in-engine switch to a discovered
	// rendition without replacing the source. Reports whether a matching
	// engine-native rendition was found and selected.
	SelectRendition(id QualityID) bool

	// OnMetadataReady registers fn to run once, on the next metadata-ready
	// event. Delivery is at-most-once per registration; the returned
	// cancel deregisters fn if it has not fired yet. fn must not be
	// invoked synchronously from inside OnMetadataReady.
	OnMetadataReady(fn func()) (cancel func())
}

// StateAdapter wraps an Engine and enforces the pending-restore discipline:
// at most one restore callback may be outstanding at a time. Registering a
// new one, or setting a new source, cancels the previous registration so a
// stale restore can never be applied to a newer source.
type StateAdapter struct {
	eng Engine

	mu      sync.Mutex
	pending *restoreHandle
}

type restoreHandle struct {
	cancel func()
	fired  bool
}

// NewStateAdapter returns an adapter over the given engine.
func NewStateAdapter(eng Engine) *StateAdapter {
	return &StateAdapter{eng: eng}
}

// CurrentTime returns the engine's playback position in seconds.
func (a *StateAdapter) CurrentTime() float64 { return a.eng.CurrentTime() }

// Paused reports whether the engine is paused.
func (a *StateAdapter) Paused() bool { return a.eng.Paused() }

// PlaybackRate returns the engine's current playback rate.
func (a *StateAdapter) PlaybackRate() float64 { return a.eng.PlaybackRate() }

// SetPlaybackRate sets the engine's playback rate.
func (a *StateAdapter) SetPlaybackRate(rate float64) { a.eng.SetPlaybackRate(rate) }

// SetCurrentTime seeks the engine to the given position.
func (a *StateAdapter) SetCurrentTime(seconds float64) { a.eng.SetCurrentTime(seconds) }

// Play starts or resumes engine playback.
func (a *StateAdapter) Play() { a.eng.Play() }

// DiscoveredRenditions returns the engine's current discovered list.
func (a *StateAdapter) DiscoveredRenditions() []Rendition { return a.eng.DiscoveredRenditions() }

// SelectRendition attempts an in-engine rendition switch.
func (a *StateAdapter) SelectRendition(id QualityID) bool { return a.eng.SelectRendition(id) }

// SetSource replaces the engine's media source. Any pending restore callback
// registered for the previous source is cancelled first.
func (a *StateAdapter) SetSource(url string) {
	a.CancelRestore()
	a.eng.SetSource(url)
}

// RegisterRestore registers fn to run once on the engine's next
// metadata-ready event, replacing (and cancelling) any previously registered
// restore that has not fired yet.
func (a *StateAdapter) RegisterRestore(fn func()) {
	a.mu.Lock()
	a.cancelPendingLocked()
	h := &restoreHandle{}
	a.pending = h
	a.mu.Unlock()

	cancel := a.eng.OnMetadataReady(func() {
		a.mu.Lock()
		if a.pending != h || h.fired {
			a.mu.Unlock()
			return
		}
		h.fired = true
		a.pending = nil
		a.mu.Unlock()
		fn()
	})

	a.mu.Lock()
	if a.pending == h {
		h.cancel = cancel
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	// Replaced (or fired) between registration and here; make sure the
	// engine-side listener is gone.
	cancel()
}

// CancelRestore drops the pending restore callback, if any.
func (a *StateAdapter) CancelRestore() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelPendingLocked()
}

// HasPendingRestore reports whether a restore callback is outstanding.
func (a *StateAdapter) HasPendingRestore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

func (a *StateAdapter) cancelPendingLocked() {
	if a.pending == nil {
		return
	}
	if a.pending.cancel != nil {
		a.pending.cancel()
	}
	a.pending = nil
}
