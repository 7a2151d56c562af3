package analytics

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mssola/useragent"
)

// Unknown is the bucket for agents that cannot be classified
const Unknown = "Unknown"

// Device buckets
const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
)

// Agent is the classification of one user agent string
type Agent struct {
	Device  string
	Browser string
	OS      string
}

// AgentParser classifies user agent strings. Results are memoised since a
// handful of agents account for most traffic.
type AgentParser struct {
	cache *lru.LRU[string, Agent]
}

func NewAgentParser(cacheSize int) *AgentParser {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &AgentParser{
		cache: lru.NewLRU[string, Agent](cacheSize, nil, time.Hour),
	}
}

// Parse never fails; unparseable parts come back as Unknown
func (p *AgentParser) Parse(raw string) Agent {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Agent{Device: Unknown, Browser: Unknown, OS: Unknown}
	}

	if agent, ok := p.cache.Get(raw); ok {
		return agent
	}

	agent := classify(raw)
	p.cache.Add(raw, agent)
	return agent
}

func classify(raw string) Agent {
	ua := useragent.New(raw)

	agent := Agent{Device: Unknown, Browser: Unknown, OS: Unknown}

	if name, _ := ua.Browser(); name != "" {
		agent.Browser = name
	}
	if os := ua.OSInfo().Name; os != "" {
		agent.OS = os
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") ||
		(strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")):
		agent.Device = DeviceTablet
	case ua.Mobile():
		agent.Device = DeviceMobile
	case ua.OS() != "":
		agent.Device = DeviceDesktop
	}

	return agent
}
