// Package engine provides an in-process reference implementation of the
// player.Engine interface. The Clock engine simulates playback against the
// wall clock: position advances in real time (scaled by rate) while playing,
// metadata-ready fires a configurable delay after each source set, and the
// discovered rendition list populates asynchronously the way a real streaming
// engine parses container metadata.
package engine

import (
	"sync"
	"time"

	"playback-controller/internal/player"
)

// Default asynchronous latencies of the simulated engine.
const (
	DefaultMetadataDelay  = 50 * time.Millisecond
	DefaultDiscoveryDelay = 250 * time.Millisecond
)

// Options configures a Clock engine.
type Options struct {
	// MetadataDelay is how long after SetSource the metadata-ready event
	// fires.
	MetadataDelay time.Duration

	// DiscoveryDelay is how long after SetSource the engine "discovers"
	// the Renditions list. Before that, DiscoveredRenditions is empty.
	DiscoveryDelay time.Duration

	// Renditions is the list the engine reports once discovery completes.
	Renditions []player.Rendition
}

// Clock is a wall-clock playback simulation implementing player.Engine.
type Clock struct {
	opts Options

	mu         sync.Mutex
	source     string
	paused     bool
	rate       float64
	base       float64   // position at the last anchor point
	anchor     time.Time // when base was captured (meaningful while playing)
	generation int       // bumped per SetSource so stale timers no-op

	discovered []player.Rendition
	selected   player.QualityID

	listeners    map[int]func()
	nextListener int
}

// NewClock returns a paused Clock engine with no source loaded.
func NewClock(opts Options) *Clock {
	if opts.MetadataDelay <= 0 {
		opts.MetadataDelay = DefaultMetadataDelay
	}
	if opts.DiscoveryDelay <= 0 {
		opts.DiscoveryDelay = DefaultDiscoveryDelay
	}
	return &Clock{
		opts:      opts,
		paused:    true,
		rate:      1.0,
		listeners: make(map[int]func()),
	}
}

// CurrentTime implements player.Engine.
func (c *Clock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

// Paused implements player.Engine.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// PlaybackRate implements player.Engine.
func (c *Clock) PlaybackRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetPlaybackRate implements player.Engine.
func (c *Clock) SetPlaybackRate(rate float64) {
	if rate <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchorLocked()
	c.rate = rate
}

// SetCurrentTime implements player.Engine.
func (c *Clock) SetCurrentTime(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = seconds
	c.anchor = time.Now()
}

// Play implements player.Engine.
func (c *Clock) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	c.anchor = time.Now()
}

// Pause stops the clock. Not part of player.Engine; the surrounding UI
// pauses the engine directly.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.base = c.positionLocked()
	c.paused = true
}

// SetSource implements player.Engine. The position resets, playback pauses
// until metadata is ready, the discovered list empties, and the metadata and
// discovery timers restart.
func (c *Clock) SetSource(url string) {
	c.mu.Lock()
	c.source = url
	c.base = 0
	c.anchor = time.Now()
	c.paused = true
	c.discovered = nil
	c.selected = ""
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	time.AfterFunc(c.opts.MetadataDelay, func() { c.fireMetadata(gen) })
	time.AfterFunc(c.opts.DiscoveryDelay, func() { c.completeDiscovery(gen) })
}

// Source returns the currently loaded URL. Not part of player.Engine.
func (c *Clock) Source() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// DiscoveredRenditions implements player.Engine.
func (c *Clock) DiscoveredRenditions() []player.Rendition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]player.Rendition, len(c.discovered))
	copy(out, c.discovered)
	return out
}

// SelectRendition implements player.Engine.
func (c *Clock) SelectRendition(id player.QualityID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.discovered {
		if r.ID == id {
			c.selected = id
			return true
		}
	}
	return false
}

// SelectedRendition returns the last in-engine selection. Not part of
// player.Engine.
func (c *Clock) SelectedRendition() player.QualityID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// OnMetadataReady implements player.Engine. Each registration fires at most
// once, on the next metadata-ready event.
func (c *Clock) OnMetadataReady(fn func()) (cancel func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Clock) fireMetadata(gen int) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listeners = make(map[int]func())
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (c *Clock) completeDiscovery(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.discovered = make([]player.Rendition, len(c.opts.Renditions))
	copy(c.discovered, c.opts.Renditions)
}

// positionLocked computes the current position. Caller holds c.mu.
func (c *Clock) positionLocked() float64 {
	if c.paused {
		return c.base
	}
	return c.base + time.Since(c.anchor).Seconds()*c.rate
}

// reanchorLocked folds elapsed time into base so a rate change does not
// retroactively rescale it. Caller holds c.mu.
func (c *Clock) reanchorLocked() {
	c.base = c.positionLocked()
	c.anchor = time.Now()
}
