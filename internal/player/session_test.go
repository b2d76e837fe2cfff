package player

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeEngine is a scriptable Engine for controller tests. Metadata-ready is
// fired manually so the reload path can be driven deterministically.
type fakeEngine struct {
	mu          sync.Mutex
	currentTime float64
	paused      bool
	rate        float64
	source      string

	setSourceCalls int
	setTimeCalls   []float64
	setRateCalls   []float64
	playCalls      int

	discovered []Rendition
	selectable map[QualityID]bool
	selected   QualityID

	listeners    map[int]func()
	nextListener int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		rate:       1.0,
		selectable: make(map[QualityID]bool),
		listeners:  make(map[int]func()),
	}
}

func (f *fakeEngine) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentTime
}

func (f *fakeEngine) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeEngine) PlaybackRate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *fakeEngine) SetPlaybackRate(rate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
	f.setRateCalls = append(f.setRateCalls, rate)
}

func (f *fakeEngine) SetCurrentTime(seconds float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentTime = seconds
	f.setTimeCalls = append(f.setTimeCalls, seconds)
}

func (f *fakeEngine) SetSource(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = url
	f.setSourceCalls++
}

func (f *fakeEngine) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	f.playCalls++
}

func (f *fakeEngine) DiscoveredRenditions() []Rendition {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Rendition, len(f.discovered))
	copy(out, f.discovered)
	return out
}

func (f *fakeEngine) SelectRendition(id QualityID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectable[id] {
		f.selected = id
		return true
	}
	return false
}

func (f *fakeEngine) OnMetadataReady(fn func()) func() {
	f.mu.Lock()
	id := f.nextListener
	f.nextListener++
	f.listeners[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

// fireMetadata delivers the metadata-ready event to all registrations and
// clears them (one-shot semantics).
func (f *fakeEngine) fireMetadata() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.listeners = make(map[int]func())
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeEngine) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeEngine) sourceSets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setSourceCalls
}

func (f *fakeEngine) timeSets() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.setTimeCalls))
	copy(out, f.setTimeCalls)
	return out
}

func (f *fakeEngine) setState(currentTime float64, paused bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentTime = currentTime
	f.paused = paused
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testManifest() Manifest {
	return Manifest{
		Format: "mp4",
		Qualities: map[QualityID]ManifestQuality{
			"master": {URLs: RenditionURLs{ManifestBased: "http://cdn/master.m3u8"}},
			"1080p":  {Bitrate: 5_000_000, URLs: RenditionURLs{Segmented: "http://cdn/1080.m3u8"}},
			"720p":   {Bitrate: 2_500_000, URLs: RenditionURLs{Segmented: "http://cdn/720.m3u8"}},
		},
	}
}

// testOptions keeps background work effectively inert unless a test opts in.
func testOptions() SessionOptions {
	return SessionOptions{
		ReconcileInterval: time.Hour,
		ReconcileMaxPolls: 1,
		RestoreTimeout:    time.Hour,
	}
}

func newTestSession(t *testing.T, m Manifest, eng Engine, opts SessionOptions) *Session {
	t.Helper()
	s := NewSession("v1", m, eng, opts, testLogger(), nil)
	t.Cleanup(s.Close)
	return s
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", d, msg)
}

func TestNewSession_initial_state(t *testing.T) {
	eng := newFakeEngine()
	s := newTestSession(t, testManifest(), eng, testOptions())

	st := s.State()
	if st.SelectedQuality != QualityAuto {
		t.Errorf("selected quality: got %q want auto", st.SelectedQuality)
	}
	// "auto" resolves to the master entry when the manifest declares one.
	if st.SourceURL != "http://cdn/master.m3u8" {
		t.Errorf("source url: got %q", st.SourceURL)
	}
	if st.ViewType != ViewTypeVideo {
		t.Errorf("view type: got %q want video", st.ViewType)
	}
	if st.NoPlayableSource {
		t.Error("should have a playable source")
	}
	want := []QualityID{"auto", "1080p", "720p"}
	if len(st.AvailableQualities) != len(want) {
		t.Fatalf("available qualities: got %v want %v", st.AvailableQualities, want)
	}
	for i, id := range want {
		if st.AvailableQualities[i] != id {
			t.Errorf("available[%d]: got %q want %q", i, st.AvailableQualities[i], id)
		}
	}
	if eng.sourceSets() != 1 {
		t.Errorf("expected exactly one initial SetSource, got %d", eng.sourceSets())
	}
}

func TestNewSession_empty_manifest(t *testing.T) {
	eng := newFakeEngine()
	s := newTestSession(t, Manifest{Format: "mp4"}, eng, testOptions())

	st := s.State()
	if !st.NoPlayableSource {
		t.Error("expected no playable source for empty manifest")
	}
	if st.SourceURL != "" {
		t.Errorf("source url should be empty, got %q", st.SourceURL)
	}
	if eng.sourceSets() != 0 {
		t.Errorf("SetSource should not be called with nothing to play, got %d calls", eng.sourceSets())
	}
}

func TestSession_RequestQualityChange_same_id_noop(t *testing.T) {
	eng := newFakeEngine()
	s := newTestSession(t, testManifest(), eng, testOptions())

	before := s.State()
	s.RequestQualityChange(QualityAuto)
	after := s.State()

	if after.SelectedQuality != before.SelectedQuality || after.SourceURL != before.SourceURL {
		t.Error("requesting the selected quality must not change state")
	}
	if eng.sourceSets() != 1 {
		t.Errorf("requesting the selected quality must not reload the source, got %d sets", eng.sourceSets())
	}
}

func TestSession_RequestQualityChange_engine_native(t *testing.T) {
	eng := newFakeEngine()
	eng.selectable["720p"] = true
	s := newTestSession(t, testManifest(), eng, testOptions())
	eng.setState(42.3, false)

	s.RequestQualityChange("720p")

	st := s.State()
	if st.SelectedQuality != "720p" {
		t.Errorf("selected quality: got %q want 720p", st.SelectedQuality)
	}
	if eng.sourceSets() != 1 {
		t.Errorf("engine-native switch must not reload the source, got %d sets", eng.sourceSets())
	}
	if eng.selected != "720p" {
		t.Errorf("engine selection: got %q want 720p", eng.selected)
	}
	if eng.listenerCount() != 0 {
		t.Error("engine-native switch must not leave a pending restore")
	}
}

func TestSession_RequestQualityChange_source_reload(t *testing.T) {
	eng := newFakeEngine()
	s := newTestSession(t, testManifest(), eng, testOptions())
	eng.setState(42.3, false)

	s.RequestQualityChange("720p")

	if eng.sourceSets() != 2 {
		t.Fatalf("expected source reload, got %d sets", eng.sourceSets())
	}
	if eng.source != "http://cdn/720.m3u8" {
		t.Errorf("source: got %q", eng.source)
	}
	if got := s.State().SelectedQuality; got != "720p" {
		t.Errorf("selected quality: got %q want 720p", got)
	}
	if len(eng.timeSets()) != 0 {
		t.Fatal("restore must wait for metadata-ready")
	}

	eng.fireMetadata()

	times := eng.timeSets()
	if len(times) != 1 || times[0] != 42.3 {
		t.Errorf("expected position restored to 42.3, got %v", times)
	}
	if eng.playCalls != 1 {
		t.Errorf("expected playback resumed once, got %d plays", eng.playCalls)
	}
}

func TestSession_RequestQualityChange_reload_stays_paused(t *testing.T) {
	eng := newFakeEngine()
	s := newTestSession(t, testManifest(), eng, testOptions())
	eng.setState(10.0, true)

	s.RequestQualityChange("1080p")
	eng.fireMetadata()

	if eng.playCalls != 0 {
		t.Errorf("paused playback must stay paused after restore, got %d plays", eng.playCalls)
	}
	times := eng.timeSets()
	if len(times) != 1 || times[0] != 10.0 {
		t.Errorf("expected position restored to 10.0, got %v", times)
	}
}

func TestSession_RequestQualityChange_auto_always_reloads(t *testing.T) {
	eng := newFakeEngine()
	eng.selectable["720p"] = true
	eng.selectable["auto"] = true // engines have no native meaning for auto; must not be consulted
	s := newTestSession(t, testManifest(), eng, testOptions())

	s.RequestQualityChange("720p") // native
	s.RequestQualityChange(QualityAuto)

	if eng.selected == QualityAuto {
		t.Error("SelectRendition must never be attempted for auto")
	}
	if eng.sourceSets() != 2 {
		t.Errorf("auto must take the source replacement path, got %d sets", eng.sourceSets())
	}
	if eng.source != "http://cdn/master.m3u8" {
		t.Errorf("auto should resolve to the master URL, got %q", eng.source)
	}
}

func TestSession_RequestQualityChange_unknown_falls_back(t *testing.T) {
	eng := newFakeEngine()
	s := newTestSession(t, testManifest(), eng, testOptions())

	s.RequestQualityChange("4k")

	if eng.sourceSets() != 2 {
		t.Fatalf("expected fallback reload, got %d sets", eng.sourceSets())
	}
	if eng.source != "http://cdn/master.m3u8" {
		t.Errorf("unknown identifier should fall back to the highest-quality URL, got %q", eng.source)
	}
	st := s.State()
	if st.SelectedQuality != "4k" {
		t.Errorf("selected quality: got %q want 4k", st.SelectedQuality)
	}
	if st.NoPlayableSource {
		t.Error("fallback resolution must never surface an error")
	}
}

func TestSession_two_requests_one_restore(t *testing.T) {
	eng := newFakeEngine()
	s := newTestSession(t, testManifest(), eng, testOptions())
	eng.setState(10.0, false)

	s.RequestQualityChange("720p")
	eng.setState(20.0, false)
	s.RequestQualityChange("1080p")

	if n := eng.listenerCount(); n != 1 {
		t.Fatalf("at most one restore may be pending, got %d", n)
	}

	eng.fireMetadata()

	times := eng.timeSets()
	if len(times) != 1 || times[0] != 20.0 {
		t.Errorf("only the second request's restore may apply, got %v", times)
	}
	if eng.source != "http://cdn/1080.m3u8" {
		t.Errorf("source: got %q want the 1080p URL", eng.source)
	}
	if got := s.State().SelectedQuality; got != "1080p" {
		t.Errorf("selected quality: got %q want 1080p", got)
	}
}

func TestSession_restore_timeout(t *testing.T) {
	eng := newFakeEngine()
	opts := testOptions()
	opts.RestoreTimeout = 20 * time.Millisecond
	s := newTestSession(t, testManifest(), eng, opts)
	eng.setState(42.3, false)

	s.RequestQualityChange("720p")

	waitFor(t, time.Second, func() bool { return eng.listenerCount() == 0 },
		"pending restore should be dropped after the timeout")

	// The event arriving late must be a no-op.
	eng.fireMetadata()
	if len(eng.timeSets()) != 0 {
		t.Errorf("restore must not apply after timing out, got %v", eng.timeSets())
	}
	if got := s.State().SelectedQuality; got != "720p" {
		t.Errorf("switch still settles on timeout: got %q want 720p", got)
	}
}

func TestSession_RequestPlaybackRateChange(t *testing.T) {
	eng := newFakeEngine()
	s := newTestSession(t, testManifest(), eng, testOptions())

	if err := s.RequestPlaybackRateChange(1.5); err != nil {
		t.Fatalf("RequestPlaybackRateChange: %v", err)
	}
	if got := s.State().PlaybackRate; got != 1.5 {
		t.Errorf("playback rate: got %v want 1.5", got)
	}
	if eng.PlaybackRate() != 1.5 {
		t.Errorf("engine rate: got %v want 1.5", eng.PlaybackRate())
	}

	for _, bad := range []float64{0, -1, 4.5} {
		if err := s.RequestPlaybackRateChange(bad); err != ErrInvalidRate {
			t.Errorf("rate %v: expected ErrInvalidRate, got %v", bad, err)
		}
	}
	if got := s.State().PlaybackRate; got != 1.5 {
		t.Errorf("invalid rate must not change state: got %v", got)
	}
}

func TestSession_rate_reapplied_after_reload(t *testing.T) {
	eng := newFakeEngine()
	s := newTestSession(t, testManifest(), eng, testOptions())
	if err := s.RequestPlaybackRateChange(2.0); err != nil {
		t.Fatalf("RequestPlaybackRateChange: %v", err)
	}
	eng.setState(5.0, false)

	s.RequestQualityChange("720p")
	eng.fireMetadata()

	if eng.PlaybackRate() != 2.0 {
		t.Errorf("rate must survive a source reload: got %v", eng.PlaybackRate())
	}
}

func TestSession_Close_cancels_pending_work(t *testing.T) {
	eng := newFakeEngine()
	s := NewSession("v1", testManifest(), eng, testOptions(), testLogger(), nil)
	eng.setState(42.3, false)

	s.RequestQualityChange("720p")
	s.Close()

	if eng.listenerCount() != 0 {
		t.Error("Close must deregister the pending restore")
	}
	eng.fireMetadata()
	if len(eng.timeSets()) != 0 {
		t.Errorf("no restore may run after Close, got %v", eng.timeSets())
	}

	// Idempotent, and operations after Close are no-ops.
	s.Close()
	s.RequestQualityChange("1080p")
	if eng.sourceSets() != 2 {
		t.Errorf("no switch may run after Close, got %d sets", eng.sourceSets())
	}
}
