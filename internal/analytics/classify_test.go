package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceClassifier_Classify(t *testing.T) {
	c := NewSourceClassifier(
		[]string{"www.example.com"},
		[]string{"google", "bing", "duckduckgo"},
		[]string{"twitter", "t", "linkedin", "lnkd", "reddit"},
	)

	tests := []struct {
		referer string
		want    Source
	}{
		{"", Source{SourceDirect, SourceDirect}},
		{"   ", Source{SourceDirect, SourceDirect}},
		{"not a url", Source{SourceDirect, SourceDirect}},
		{"https://example.com/about", Source{SourceDirect, SourceDirect}},
		{"https://www.example.com/", Source{SourceDirect, SourceDirect}},
		{"https://www.google.com/search?q=go", Source{SourceSearch, "google"}},
		{"https://www.google.co.uk/", Source{SourceSearch, "google"}},
		{"https://duckduckgo.com/", Source{SourceSearch, "duckduckgo"}},
		{"https://t.co/abc", Source{SourceSocial, "t"}},
		{"https://www.linkedin.com/feed/", Source{SourceSocial, "linkedin"}},
		{"https://old.reddit.com/r/golang", Source{SourceSocial, "reddit"}},
		{"https://dev.to/someone/post", Source{SourceReferral, "dev.to"}},
		{"https://blog.golang.org/", Source{SourceReferral, "golang.org"}},
		{"http://192.168.1.10:3000/", Source{SourceReferral, "192.168.1.10"}},
	}

	for _, tt := range tests {
		t.Run(tt.referer, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.referer))
		})
	}
}

func TestAgentParser_Parse(t *testing.T) {
	p := NewAgentParser(8)

	tests := []struct {
		name        string
		raw         string
		wantDevice  string
		wantBrowser string
	}{
		{"chrome desktop", chromeWindows, DeviceDesktop, "Chrome"},
		{"safari iphone", safariIPhone, DeviceMobile, "Safari"},
		{
			"ipad",
			"Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
			DeviceTablet, "Safari",
		},
		{
			"android tablet",
			"Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			DeviceTablet, "Chrome",
		},
		{
			"firefox linux",
			"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			DeviceDesktop, "Firefox",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := p.Parse(tt.raw)
			assert.Equal(t, tt.wantDevice, agent.Device)
			assert.Equal(t, tt.wantBrowser, agent.Browser)
			assert.NotEmpty(t, agent.OS)
		})
	}
}

func TestAgentParser_EmptyIsUnknown(t *testing.T) {
	p := NewAgentParser(0)
	assert.Equal(t, Agent{Device: Unknown, Browser: Unknown, OS: Unknown}, p.Parse(""))
}

func TestAgentParser_CachesResults(t *testing.T) {
	p := NewAgentParser(2)

	first := p.Parse(chromeWindows)
	assert.Equal(t, 1, p.cache.Len())

	second := p.Parse(chromeWindows)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.cache.Len())
}
