package feeds

import (
	"context"
	"strings"

	"github.com/inboxguard/inboxguard/internal/core"
)

// StaticFeed answers lookups from an in-memory table. It backs tests and the
// CLI's offline mode.
type StaticFeed struct {
	name        string
	reliability float64
	verdicts    map[string]core.FeedVerdict
}

// NewStaticFeed builds a feed over a fixed indicator table. Keys are
// normalized the same way lookups are.
func NewStaticFeed(name string, reliability float64, verdicts map[string]core.FeedVerdict) *StaticFeed {
	normalized := make(map[string]core.FeedVerdict, len(verdicts))
	for k, v := range verdicts {
		normalized[normalize(k)] = v
	}
	return &StaticFeed{name: name, reliability: reliability, verdicts: normalized}
}

// Name identifies the feed in verdicts and logs.
func (f *StaticFeed) Name() string { return f.name }

// Reliability is the feed's static consensus weight.
func (f *StaticFeed) Reliability() float64 { return f.reliability }

// Lookup answers from the table. Unknown indicators are clean.
func (f *StaticFeed) Lookup(ctx context.Context, indicator string) (*core.FeedVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v, ok := f.verdicts[normalize(indicator)]; ok {
		out := v
		return &out, nil
	}
	return &core.FeedVerdict{Verdict: "clean", Score: 0}, nil
}

func normalize(indicator string) string {
	s := strings.ToLower(strings.TrimSpace(indicator))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	return strings.TrimSuffix(s, "/")
}
