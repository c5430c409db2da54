// Package dedup collapses repeated and near-duplicate signals so that six
// tracking links from one sender count as one piece of evidence, not six.
package dedup

import (
	"fmt"
	"sort"

	"github.com/inboxguard/inboxguard/internal/core"
)

// Options controls grouping behavior.
type Options struct {
	// MaxPerGroup is how many representatives survive from each group.
	MaxPerGroup int
	// MaxSampleURLs bounds how many underlying URLs a merged URL signal keeps.
	MaxSampleURLs int
}

// DefaultOptions matches the documented defaults.
func DefaultOptions() Options {
	return Options{MaxPerGroup: 1, MaxSampleURLs: 10}
}

// Deduplicate collapses duplicate signals. Non-URL signals group on
// type:severity, URL signals on type alone. Within a multi-member group only
// the highest-scoring signals survive, annotated with the group size. The
// operation is idempotent: a signal that already carries a duplicate_count is
// treated as merged and passes through untouched.
func Deduplicate(signals []core.Signal, opts Options) []core.Signal {
	if opts.MaxPerGroup <= 0 {
		opts.MaxPerGroup = 1
	}
	if opts.MaxSampleURLs <= 0 {
		opts.MaxSampleURLs = 10
	}
	if len(signals) <= 1 {
		return append([]core.Signal(nil), signals...)
	}

	type group struct {
		key     string
		members []core.Signal
	}
	order := make([]string, 0, len(signals))
	groups := make(map[string]*group)

	for _, s := range signals {
		key := groupKey(s)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, s)
	}

	out := make([]core.Signal, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if len(g.members) == 1 || allMerged(g.members) {
			out = append(out, g.members...)
			continue
		}
		out = append(out, merge(g.members, opts)...)
	}
	return out
}

func groupKey(s core.Signal) string {
	if core.IsURLSignal(s.Type) {
		return "url:" + string(s.Type)
	}
	return string(s.Type) + ":" + string(s.Severity)
}

// allMerged reports whether every member already carries a duplicate_count,
// which marks the output of a previous deduplication pass.
func allMerged(members []core.Signal) bool {
	for _, s := range members {
		if s.Meta("duplicate_count") == nil {
			return false
		}
	}
	return true
}

func merge(members []core.Signal, opts Options) []core.Signal {
	sorted := append([]core.Signal(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	keep := opts.MaxPerGroup
	if keep > len(sorted) {
		keep = len(sorted)
	}

	out := make([]core.Signal, 0, keep)
	for _, rep := range sorted[:keep] {
		merged := rep.Clone()
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]any)
		}
		merged.Metadata["duplicate_count"] = len(members)
		merged.Detail = fmt.Sprintf("%s (×%d)", merged.Detail, len(members))

		if core.IsURLSignal(rep.Type) {
			urls := collectURLs(members, opts.MaxSampleURLs)
			merged.Metadata["urls"] = urls
			merged.Metadata["total_urls"] = len(members)
			merged.Metadata["has_more"] = len(members) > len(urls)
		}
		out = append(out, merged)
	}
	return out
}

func collectURLs(members []core.Signal, limit int) []string {
	urls := make([]string, 0, limit)
	for _, s := range members {
		if len(urls) >= limit {
			break
		}
		if u, ok := s.Meta("url").(string); ok && u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
