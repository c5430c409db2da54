package dedup

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxguard/inboxguard/internal/core"
)

func trackingSignal(url string) core.Signal {
	return core.NewSignal(core.SignalTrackingURL, core.SeverityInfo, 5,
		"email tracking link", map[string]any{"url": url})
}

func TestDeduplicateNewsletterScenario(t *testing.T) {
	// A newsletter with six tracking links and a passing SPF check produces
	// seven signals; after deduplication the tracking links collapse into one
	// representative.
	signals := []core.Signal{
		core.NewSignal(core.SignalSPFPass, core.SeverityInfo, 0, "SPF pass", nil),
	}
	for i := 0; i < 6; i++ {
		signals = append(signals, trackingSignal(fmt.Sprintf("https://click.e.mail.quora.com/t/%d", i)))
	}
	require.Len(t, signals, 7)

	out := Deduplicate(signals, DefaultOptions())
	require.Len(t, out, 2)

	var merged *core.Signal
	for i := range out {
		if out[i].Type == core.SignalTrackingURL {
			merged = &out[i]
		}
	}
	require.NotNil(t, merged)
	assert.Equal(t, 6, merged.Meta("duplicate_count"))
	assert.Contains(t, merged.Detail, "×6")

	urls, ok := merged.Meta("urls").([]string)
	require.True(t, ok)
	assert.Len(t, urls, 6)
	assert.Equal(t, false, merged.Meta("has_more"))
}

func TestDeduplicateIdempotent(t *testing.T) {
	signals := []core.Signal{
		core.NewSignal(core.SignalSPFFail, core.SeverityWarning, 20, "SPF fail", nil),
		core.NewSignal(core.SignalSPFFail, core.SeverityWarning, 20, "SPF fail", nil),
		trackingSignal("https://links.mailchimp.com/a"),
		trackingSignal("https://links.mailchimp.com/b"),
		trackingSignal("https://links.mailchimp.com/c"),
	}

	once := Deduplicate(signals, DefaultOptions())
	twice := Deduplicate(once, DefaultOptions())
	assert.Equal(t, once, twice)
}

func TestDeduplicateIdempotentRandomized(t *testing.T) {
	// Fixed seed keeps the generated inputs reproducible across runs.
	rng := rand.New(rand.NewSource(7))
	types := []core.SignalType{
		core.SignalTrackingURL,
		core.SignalShortenerURL,
		core.SignalSPFFail,
		core.SignalUrgencyLanguage,
		core.SignalDisplayNameSpoof,
	}
	severities := []core.Severity{core.SeverityInfo, core.SeverityWarning, core.SeverityCritical}

	for round := 0; round < 100; round++ {
		n := rng.Intn(16)
		signals := make([]core.Signal, 0, n)
		for i := 0; i < n; i++ {
			typ := types[rng.Intn(len(types))]
			var meta map[string]any
			if core.IsURLSignal(typ) {
				meta = map[string]any{"url": fmt.Sprintf("https://example.test/%d", rng.Intn(6))}
			}
			signals = append(signals, core.NewSignal(typ,
				severities[rng.Intn(len(severities))], rng.Intn(101), "generated evidence", meta))
		}

		once := Deduplicate(signals, DefaultOptions())
		twice := Deduplicate(once, DefaultOptions())
		require.Equal(t, once, twice, "round %d with %d signals", round, n)
	}
}

func TestDeduplicateKeepsDistinctSeverities(t *testing.T) {
	// Same type at different severities is different evidence.
	signals := []core.Signal{
		core.NewSignal(core.SignalDisplayNameSpoof, core.SeverityWarning, 25, "brand over foreign domain", nil),
		core.NewSignal(core.SignalDisplayNameSpoof, core.SeverityCritical, 40, "executive on freemail", nil),
	}
	out := Deduplicate(signals, DefaultOptions())
	assert.Len(t, out, 2)
}

func TestDeduplicateKeepsHighestScore(t *testing.T) {
	signals := []core.Signal{
		core.NewSignal(core.SignalUrgencyLanguage, core.SeverityWarning, 10, "two phrases", nil),
		core.NewSignal(core.SignalUrgencyLanguage, core.SeverityWarning, 15, "four phrases", nil),
	}
	out := Deduplicate(signals, DefaultOptions())
	require.Len(t, out, 1)
	assert.Equal(t, 15, out[0].Score)
	assert.Equal(t, 2, out[0].Meta("duplicate_count"))
}

func TestDeduplicateSampleURLBound(t *testing.T) {
	var signals []core.Signal
	for i := 0; i < 14; i++ {
		signals = append(signals, trackingSignal(fmt.Sprintf("https://click.sendgrid.net/%d", i)))
	}

	out := Deduplicate(signals, DefaultOptions())
	require.Len(t, out, 1)

	urls, ok := out[0].Meta("urls").([]string)
	require.True(t, ok)
	assert.Len(t, urls, 10)
	assert.Equal(t, 14, out[0].Meta("total_urls"))
	assert.Equal(t, true, out[0].Meta("has_more"))
}

func TestDeduplicateEmptyAndSingle(t *testing.T) {
	assert.Empty(t, Deduplicate(nil, DefaultOptions()))

	single := []core.Signal{trackingSignal("https://clicks.hubspot.com/x")}
	out := Deduplicate(single, DefaultOptions())
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Meta("duplicate_count"))
}
