package player

import (
	"log/slog"
	"time"
)

// RequestQualityChange executes a quality switch to the given identifier.
//
// The preferred path is an in-engine rendition switch (gapless, the engine
// preserves position itself). When the engine has no matching native
// rendition, or the target is "auto", the controller falls back to a full
// source replacement and restores the captured position and paused state on
// the engine's next metadata-ready event.
//
// Requesting the identifier that is already selected is a no-op. A new
// request while a previous reload is still awaiting its restore cancels the
// stale restore; only the most recent request's target is applied.
func (s *Session) RequestQualityChange(target QualityID) {
	s.mu.Lock()

	if s.closed || target == s.state.SelectedQuality {
		s.mu.Unlock()
		return
	}

	s.phase = PhaseSwitchRequested
	s.switchToken++
	token := s.switchToken

	// Capture continuity state before anything disruptive happens.
	pos := s.adapter.CurrentTime()
	paused := s.adapter.Paused()

	s.log.Info("quality switch requested",
		slog.String("target", string(target)),
		slog.Float64("position", pos),
		slog.Bool("paused", paused),
	)

	// "auto" has no engine-native meaning; it always takes the source
	// replacement path.
	if target != QualityAuto {
		s.phase = PhaseAwaitingEngineSwitch
		if s.adapter.SelectRendition(target) {
			s.state.SelectedQuality = target
			s.settleLocked("engine")
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.IncSwitchesNative()
			}
			return
		}
	}

	s.reloadSourceLocked(target, token, pos, paused)
	s.mu.Unlock()
}

// reloadSourceLocked runs the source replacement path of a switch: resolve
// the target to a URL, swap the source, and arm a one-shot restore plus its
// timeout. Caller holds s.mu.
func (s *Session) reloadSourceLocked(target QualityID, token uint64, pos float64, paused bool) {
	s.phase = PhaseAwaitingSourceReload

	url, ok := s.resolveLocked(target)
	if !ok {
		// Nothing resolvable anywhere; terminal until a new manifest.
		s.state.SelectedQuality = target
		s.state.NoPlayableSource = true
		s.settleLocked("unplayable")
		return
	}

	s.state.SelectedQuality = target
	s.state.SourceURL = url
	s.state.NoPlayableSource = false

	// SetSource cancels any restore still pending from a previous switch.
	s.adapter.SetSource(url)

	if s.restoreTimer != nil {
		s.restoreTimer.Stop()
	}
	s.restoreTimer = time.AfterFunc(s.opts.RestoreTimeout, func() {
		s.restoreTimedOut(token)
	})

	s.adapter.RegisterRestore(func() {
		s.applyRestore(token, pos, paused)
	})

	if s.metrics != nil {
		s.metrics.IncSwitchesReload()
	}
}

// applyRestore runs on the engine's metadata-ready event after a source
// reload. It is a no-op if a newer switch (or teardown) has superseded the
// registration.
func (s *Session) applyRestore(token uint64, pos float64, paused bool) {
	s.mu.Lock()
	if s.closed || token != s.switchToken {
		s.mu.Unlock()
		return
	}

	if s.restoreTimer != nil {
		s.restoreTimer.Stop()
		s.restoreTimer = nil
	}

	rate := s.state.PlaybackRate

	s.adapter.SetCurrentTime(pos)
	s.adapter.SetPlaybackRate(rate)
	if !paused {
		s.adapter.Play()
	}

	s.log.Debug("position restored after source reload",
		slog.Float64("position", pos),
		slog.Bool("resumed", !paused),
	)
	s.settleLocked("reload")
	s.mu.Unlock()
}

// restoreTimedOut fires when metadata-ready never arrived within budget.
// Position restore is best-effort: log a warning, drop the registration,
// and settle anyway.
func (s *Session) restoreTimedOut(token uint64) {
	s.mu.Lock()
	if s.closed || token != s.switchToken {
		s.mu.Unlock()
		return
	}
	s.restoreTimer = nil
	// Invalidate the in-flight switch so a metadata event racing the
	// timeout cannot apply the abandoned restore.
	s.switchToken++
	s.adapter.CancelRestore()

	s.log.Warn("restore timed out, playback continues from engine default position",
		slog.String("quality", string(s.state.SelectedQuality)),
	)
	s.settleLocked("restore_timeout")
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncRestoreTimeouts()
	}
}

// settleLocked completes a switch. Settled is transient bookkeeping: the
// machine returns to Idle immediately. Caller holds s.mu.
func (s *Session) settleLocked(path string) {
	s.phase = PhaseSettled
	s.log.Info("quality switch settled",
		slog.String("quality", string(s.state.SelectedQuality)),
		slog.String("path", path),
		slog.String("phase", s.phase.String()),
	)
	s.phase = PhaseIdle
}

// resolveLocked maps an identifier to a URL across catalog and discovered
// renditions. Order: exact catalog match, exact discovered match, catalog
// "auto" rule, highest-bitrate discovered rendition (rescues a session whose
// manifest declared nothing). ok is false only when no list has a URL at
// all. Caller holds s.mu.
func (s *Session) resolveLocked(id QualityID) (string, bool) {
	if id != QualityAuto {
		if r, found := s.catalog.Lookup(id); found && r.URL() != "" {
			return r.URL(), true
		}
		for _, r := range s.discovered {
			if r.ID == id && r.URL() != "" {
				return r.URL(), true
			}
		}
	}

	if url, ok := s.catalog.Resolve(QualityAuto); ok {
		return url, ok
	}

	var best Rendition
	for _, r := range s.discovered {
		if r.URL() == "" {
			continue
		}
		if best.URL() == "" || r.Bitrate > best.Bitrate {
			best = r
		}
	}
	if best.URL() != "" {
		return best.URL(), true
	}
	return "", false
}
