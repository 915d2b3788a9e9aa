// Package filter selects the patch records to download.
//
// Selection is a pure function of catalog data and configuration: platform
// inclusion first (cheapest, highest elimination rate), then release
// exclusion, then description exclusion. All patterns are compiled once at
// startup; a record failing any stage is dropped silently, with aggregate
// drop counts kept for diagnostics.
package filter

import (
	"fmt"
	"regexp"

	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/catalog"
)

// Config holds the raw filter patterns, as supplied by configuration.
type Config struct {
	// Platforms selects platforms to include. A pattern that equals a
	// platform code selects that code; otherwise it is matched as a
	// regular expression against the platform name.
	Platforms []string

	// IgnoredReleases drops records whose release matches any pattern.
	IgnoredReleases []string

	// IgnoredDescriptionWords drops records whose description matches any
	// pattern. Case-sensitive, unanchored.
	IgnoredDescriptionWords []string
}

// DropStats counts records dropped per stage by a Selector.
type DropStats struct {
	Platform    int
	Release     int
	Description int
}

// Total returns the records dropped across all stages.
func (d DropStats) Total() int {
	return d.Platform + d.Release + d.Description
}

type platformMatcher struct {
	code string
	name *regexp.Regexp
}

// Selector applies compiled filter rules to patch records.
type Selector struct {
	platforms []platformMatcher
	releases  []*regexp.Regexp
	words     []*regexp.Regexp

	dropped DropStats
}

// Compile compiles the configured patterns into a Selector.
func Compile(cfg Config) (*Selector, error) {
	s := &Selector{}

	for _, pattern := range cfg.Platforms {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("filter: invalid platform pattern %q: %w", pattern, err)
		}
		s.platforms = append(s.platforms, platformMatcher{code: pattern, name: re})
	}
	for _, pattern := range cfg.IgnoredReleases {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("filter: invalid release pattern %q: %w", pattern, err)
		}
		s.releases = append(s.releases, re)
	}
	for _, pattern := range cfg.IgnoredDescriptionWords {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("filter: invalid description pattern %q: %w", pattern, err)
		}
		s.words = append(s.words, re)
	}

	return s, nil
}

// Select returns the records that pass all filter stages, preserving input
// order. Idempotent: selecting an already-selected set is a no-op.
func (s *Selector) Select(records []catalog.PatchRecord) []catalog.PatchRecord {
	out := make([]catalog.PatchRecord, 0, len(records))

	for _, r := range records {
		if !s.MatchPlatform(r.Platform) {
			s.dropped.Platform++
			continue
		}
		if s.excludedRelease(r.Release) {
			s.dropped.Release++
			continue
		}
		if s.excludedDescription(r.Description) {
			s.dropped.Description++
			continue
		}
		out = append(out, r)
	}

	return out
}

// MatchPlatform reports whether the platform passes the inclusion rules.
func (s *Selector) MatchPlatform(p catalog.Platform) bool {
	for _, m := range s.platforms {
		if m.code == p.Code || m.name.MatchString(p.Name) {
			return true
		}
	}
	return false
}

// Platforms returns the subset of all that passes the inclusion rules.
func (s *Selector) Platforms(all []catalog.Platform) []catalog.Platform {
	out := make([]catalog.Platform, 0, len(all))
	for _, p := range all {
		if s.MatchPlatform(p) {
			out = append(out, p)
		}
	}
	return out
}

// Dropped returns the per-stage drop counts accumulated so far.
func (s *Selector) Dropped() DropStats {
	return s.dropped
}

func (s *Selector) excludedRelease(release string) bool {
	for _, re := range s.releases {
		if re.MatchString(release) {
			return true
		}
	}
	return false
}

func (s *Selector) excludedDescription(description string) bool {
	for _, re := range s.words {
		if re.MatchString(description) {
			return true
		}
	}
	return false
}
