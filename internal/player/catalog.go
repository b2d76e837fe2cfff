package player

import (
	"sort"
	"strconv"
	"strings"
)

// Catalog is the immutable, manifest-declared rendition list for one session.
// It is built exactly once per manifest load and never mutated afterwards.
type Catalog struct {
	// renditions are the user-facing entries ordered by numeric resolution
	// descending. The "auto" sentinel is not stored here; it is prepended
	// by IDs and handled by Resolve.
	renditions []Rendition

	// master is the manifest's aggregation entry, if declared. Excluded
	// from user-facing lists but used as the default highest-quality URL.
	master *Rendition
}

// BuildCatalog derives a Catalog from the manifest's declared qualities.
// Pure function of its input: the manifest is read-only and the returned
// catalog holds copies of its data.
func BuildCatalog(m Manifest) *Catalog {
	c := &Catalog{}

	for id, q := range m.Qualities {
		r := Rendition{ID: id, Bitrate: q.Bitrate, URLs: q.URLs}
		if id == qualityMaster {
			master := r
			c.master = &master
			continue
		}
		if id == QualityAuto {
			// "auto" never carries its own URL; a manifest that declares
			// one is malformed and the entry is dropped.
			continue
		}
		c.renditions = append(c.renditions, r)
	}

	sort.Slice(c.renditions, func(i, j int) bool {
		ri, rj := c.renditions[i], c.renditions[j]
		hi, hj := resolutionRank(ri.ID), resolutionRank(rj.ID)
		if hi != hj {
			return hi > hj
		}
		if ri.Bitrate != rj.Bitrate {
			return ri.Bitrate > rj.Bitrate
		}
		return ri.ID < rj.ID
	})

	return c
}

// Empty reports whether the manifest declared no playable renditions at all.
func (c *Catalog) Empty() bool {
	return len(c.renditions) == 0 && c.master == nil
}

// Renditions returns a copy of the user-facing renditions, highest first.
func (c *Catalog) Renditions() []Rendition {
	out := make([]Rendition, len(c.renditions))
	copy(out, c.renditions)
	return out
}

// IDs returns the user-facing identifier list: "auto" first, then the
// declared renditions by numeric resolution descending.
func (c *Catalog) IDs() []QualityID {
	ids := make([]QualityID, 0, len(c.renditions)+1)
	ids = append(ids, QualityAuto)
	for _, r := range c.renditions {
		ids = append(ids, r.ID)
	}
	return ids
}

// Lookup returns the declared rendition with the given identifier.
func (c *Catalog) Lookup(id QualityID) (Rendition, bool) {
	for _, r := range c.renditions {
		if r.ID == id {
			return r, true
		}
	}
	return Rendition{}, false
}

// Resolve maps an identifier to a concrete playback URL. The rule is total
// and deterministic for a fixed catalog:
//  1. "auto" resolves to the master entry if declared, else the highest
//     numeric-resolution rendition.
//  2. An exact identifier match resolves to that rendition's URL.
//  3. Any other identifier falls back to rule 1.
//
// ok is false only when the catalog is empty ("no playable source").
func (c *Catalog) Resolve(id QualityID) (url string, ok bool) {
	if id != QualityAuto {
		if r, found := c.Lookup(id); found && r.URL() != "" {
			return r.URL(), true
		}
	}
	return c.resolveAuto()
}

func (c *Catalog) resolveAuto() (string, bool) {
	if c.master != nil && c.master.URL() != "" {
		return c.master.URL(), true
	}
	for _, r := range c.renditions {
		if r.URL() != "" {
			return r.URL(), true
		}
	}
	return "", false
}

// resolutionRank extracts the numeric height from a quality identifier for
// ordering: "1080p" -> 1080, "1920x1080" -> 1080. Unparseable labels rank 0.
func resolutionRank(id QualityID) int {
	s := strings.ToLower(string(id))
	if i := strings.IndexByte(s, 'x'); i > 0 {
		if h, err := strconv.Atoi(s[i+1:]); err == nil {
			return h
		}
	}
	digits := s
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			digits = s[:i]
			break
		}
	}
	if n, err := strconv.Atoi(digits); err == nil {
		return n
	}
	return 0
}
