package urlintel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inboxguard/inboxguard/internal/core"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(nil, DefaultObfuscationConfig())

	tests := []struct {
		name      string
		url       string
		wantType  core.URLType
		wantTrust core.TrustLevel
		wantScore int
	}{
		{
			name:      "plain safe URL",
			url:       "https://example.com/docs",
			wantType:  core.URLSafe,
			wantTrust: core.TrustHigh,
			wantScore: 0,
		},
		{
			name:      "lookalike domain",
			url:       "https://paypa1.com/login",
			wantType:  core.URLMalicious,
			wantTrust: core.TrustLow,
			wantScore: 40,
		},
		{
			name:      "obfuscated credential prefix",
			url:       "https://paypal.com@evil.example/login",
			wantType:  core.URLMalicious,
			wantTrust: core.TrustLow,
			wantScore: 30,
		},
		{
			name:      "shortener",
			url:       "https://bit.ly/3xYzAbC",
			wantType:  core.URLShortener,
			wantTrust: core.TrustMedium,
			wantScore: 15,
		},
		{
			name:      "known tracking host",
			url:       "https://click.sendgrid.net/track/abc",
			wantType:  core.URLTracking,
			wantTrust: core.TrustMedium,
			wantScore: 10,
		},
		{
			name:      "redirect parameter",
			url:       "https://example.com/out?url=https://elsewhere.example/",
			wantType:  core.URLRedirect,
			wantTrust: core.TrustMedium,
			wantScore: 10,
		},
		{
			name:      "high-risk TLD only",
			url:       "https://random-site.xyz/page",
			wantType:  core.URLMalicious,
			wantTrust: core.TrustMedium,
			wantScore: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.url, nil)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantTrust, got.TrustLevel)
			assert.Equal(t, tt.wantScore, got.Score)
		})
	}
}

func TestClassifyTenantTrackingIsHighTrust(t *testing.T) {
	c := NewClassifier(nil, DefaultObfuscationConfig())
	tenantTracking := []string{"track.corp.example"}

	got := c.Classify("https://track.corp.example/open/1", tenantTracking)
	assert.Equal(t, core.URLTracking, got.Type)
	assert.Equal(t, core.TrustHigh, got.TrustLevel)
	assert.Equal(t, 0, got.EffectiveScore())
}

func TestClassifyTrustMultiplier(t *testing.T) {
	c := NewClassifier(nil, DefaultObfuscationConfig())

	medium := c.Classify("https://click.sendgrid.net/t", nil)
	assert.Equal(t, 5, medium.EffectiveScore())

	low := c.Classify("https://paypa1.com/login", nil)
	assert.Equal(t, 40, low.EffectiveScore())
}

func TestClassifyUnparseable(t *testing.T) {
	c := NewClassifier(nil, DefaultObfuscationConfig())
	got := c.Classify("http://%zz%zz", nil)
	assert.Equal(t, core.URLSafe, got.Type)
	assert.Equal(t, 0, got.EffectiveScore())
	assert.Equal(t, true, got.Metadata["parse_error"])
}

func TestExtractURLs(t *testing.T) {
	text := `Click https://example.com/a then http://example.com/b
Also https://example.com/a again.`
	urls := ExtractURLs(text)
	assert.Equal(t, []string{"https://example.com/a", "http://example.com/b"}, urls)

	assert.Nil(t, ExtractURLs("no links here"))
}
