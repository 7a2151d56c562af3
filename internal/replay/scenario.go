// Package replay drives trackers through scripted headless tabs
package replay

import (
	"errors"
	"fmt"
	"time"

	"Mansoor88-6/site-analytics/internal/models"

	"github.com/ilyakaznacheev/cleanenv"
)

// Step actions
const (
	ActionWait        = "wait"
	ActionPush        = "push"
	ActionReplace     = "replace"
	ActionBack        = "back"
	ActionForward     = "forward"
	ActionHide        = "hide"
	ActionShow        = "show"
	ActionReload      = "reload"
	ActionInteraction = "interaction"
	ActionClose       = "close"
)

var ErrNoTabs = errors.New("scenario has no tabs")

// Scenario is a set of tabs replayed concurrently against one server
type Scenario struct {
	Server  string        `yaml:"server" env:"REPLAY_SERVER" env-default:"http://localhost:8080"`
	Timeout time.Duration `yaml:"timeout" env:"REPLAY_TIMEOUT" env-default:"5s"`

	// Realtime makes wait steps sleep. Otherwise they only advance the
	// tab's clock.
	Realtime bool  `yaml:"realtime" env:"REPLAY_REALTIME"`
	Tabs     []Tab `yaml:"tabs"`
}

// Tab is one visitor tab
type Tab struct {
	StartPath string `yaml:"start_path"`
	Referrer  string `yaml:"referrer"`
	UserAgent string `yaml:"user_agent"`
	Steps     []Step `yaml:"steps"`
}

// Step is one scripted action
type Step struct {
	Action   string         `yaml:"action"`
	Path     string         `yaml:"path"`
	Duration time.Duration  `yaml:"duration"`
	Type     string         `yaml:"type"`
	Element  string         `yaml:"element"`
	Value    string         `yaml:"value"`
	Metadata map[string]any `yaml:"metadata"`
}

// LoadScenario reads a scenario file, with environment overrides for the
// top-level settings
func LoadScenario(path string) (*Scenario, error) {
	var s Scenario
	if err := cleanenv.ReadConfig(path, &s); err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks every step before anything is sent
func (s *Scenario) Validate() error {
	if len(s.Tabs) == 0 {
		return ErrNoTabs
	}
	for i := range s.Tabs {
		tab := &s.Tabs[i]
		if tab.StartPath == "" {
			tab.StartPath = "/"
		}
		for j, step := range tab.Steps {
			if err := step.validate(); err != nil {
				return fmt.Errorf("tab %d step %d: %w", i, j, err)
			}
		}
	}
	return nil
}

func (s Step) validate() error {
	switch s.Action {
	case ActionWait:
		if s.Duration <= 0 {
			return errors.New("wait needs a positive duration")
		}
	case ActionPush, ActionReplace:
		if s.Path == "" {
			return fmt.Errorf("%s needs a path", s.Action)
		}
	case ActionInteraction:
		if models.ParseInteractionType(s.Type) != models.InteractionType(s.Type) {
			return fmt.Errorf("unknown interaction type %q", s.Type)
		}
	case ActionBack, ActionForward, ActionHide, ActionShow, ActionReload, ActionClose:
	default:
		return fmt.Errorf("unknown action %q", s.Action)
	}
	return nil
}
