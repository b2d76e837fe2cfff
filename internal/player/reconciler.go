package player

import (
	"log/slog"
	"regexp"
	"time"
)

// The engine reports whatever identifiers it parsed out of the container;
// only resolution-like labels are worth showing in a quality menu.
var (
	resolutionLabelPattern = regexp.MustCompile(`^\d{3,4}[pP]$`)
	dimensionsPattern      = regexp.MustCompile(`^\d+[xX]\d+$`)
)

// ValidQualityID reports whether an identifier is acceptable in the working
// quality list: a resolution-like label ("720p"), the literal "auto", or an
// explicit width×height pair ("1920x1080").
func ValidQualityID(id QualityID) bool {
	if id == QualityAuto {
		return true
	}
	s := string(id)
	return resolutionLabelPattern.MatchString(s) || dimensionsPattern.MatchString(s)
}

// reconcileLoop polls the engine's discovered rendition list on a bounded
// timer. It stops permanently once a merge succeeds, the poll budget is
// exhausted, or the session closes. The engine parses container-level
// rendition metadata asynchronously with variable latency; the working list
// must not block on it and degrades to the catalog's identifiers, which are
// always available synchronously.
func (s *Session) reconcileLoop() {
	defer close(s.reconcileDone)

	ticker := time.NewTicker(s.opts.ReconcileInterval)
	defer ticker.Stop()

	for polls := 0; polls < s.opts.ReconcileMaxPolls; polls++ {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			if s.reconcileOnce() {
				return
			}
		}
	}

	// Budget exhausted: the working list stays the catalog's identifiers.
	s.log.Debug("reconciler budget exhausted, keeping catalog qualities",
		slog.Int("polls", s.opts.ReconcileMaxPolls),
	)
}

// reconcileOnce reads the discovered list and, if it contains at least one
// valid entry, replaces the working quality list with ["auto", ...discovered]
// and reports true to stop polling.
func (s *Session) reconcileOnce() bool {
	discovered := s.adapter.DiscoveredRenditions()
	if len(discovered) == 0 {
		return false
	}

	seen := make(map[QualityID]bool, len(discovered))
	valid := make([]Rendition, 0, len(discovered))
	for _, r := range discovered {
		if r.ID == QualityAuto || seen[r.ID] || !ValidQualityID(r.ID) {
			continue
		}
		seen[r.ID] = true
		valid = append(valid, r)
	}
	if len(valid) == 0 {
		return false
	}

	ids := make([]QualityID, 0, len(valid)+1)
	ids = append(ids, QualityAuto)
	for _, r := range valid {
		ids = append(ids, r.ID)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.discovered = valid
	s.state.AvailableQualities = ids

	// A manifest that declared nothing can be rescued once the engine
	// discovers playable renditions on its own.
	rescued := false
	if s.state.NoPlayableSource {
		if url, ok := s.resolveLocked(QualityAuto); ok {
			s.state.SourceURL = url
			s.state.NoPlayableSource = false
			s.adapter.SetSource(url)
			rescued = true
		}
	}
	s.mu.Unlock()

	s.log.Info("discovered renditions merged",
		slog.Int("count", len(valid)),
		slog.Bool("rescued", rescued),
	)
	if s.metrics != nil {
		s.metrics.IncReconcilerMerges()
	}
	return true
}
