package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mahaj/chat-session/pkg/chatclient"
	"github.com/mahaj/chat-session/pkg/typing"
)

const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

// Client tunes the chat client's reconnect and typing timers.
type Client struct {
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Reconnect   Reconnect     `yaml:"reconnect"`
	Typing      Typing        `yaml:"typing"`
}

type Reconnect struct {
	Strategy    string        `yaml:"strategy"`
	Delay       time.Duration `yaml:"delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      float64       `yaml:"jitter"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type Typing struct {
	Quiet  time.Duration `yaml:"quiet"`
	Expiry time.Duration `yaml:"expiry"`
}

func DefaultClient() Client {
	return Client{
		DialTimeout: 10 * time.Second,
		Reconnect: Reconnect{
			Strategy: StrategyFixed,
			Delay:    chatclient.DefaultReconnectDelay,
		},
		Typing: Typing{
			Quiet:  typing.DefaultQuiet,
			Expiry: typing.DefaultExpiry,
		},
	}
}

// LoadClient reads path over the defaults. A missing file is not an error.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Client) Validate() error {
	switch c.Reconnect.Strategy {
	case StrategyFixed, StrategyExponential:
	default:
		return fmt.Errorf("unknown reconnect strategy %q", c.Reconnect.Strategy)
	}
	if c.Reconnect.Delay <= 0 {
		return fmt.Errorf("reconnect.delay must be positive")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts cannot be negative")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter >= 1 {
		return fmt.Errorf("reconnect.jitter must be in [0, 1)")
	}
	if c.Typing.Quiet <= 0 || c.Typing.Expiry <= 0 {
		return fmt.Errorf("typing timeouts must be positive")
	}
	return nil
}

func (r Reconnect) Backoff() chatclient.Backoff {
	if r.Strategy == StrategyExponential {
		return chatclient.ExponentialBackoff{
			Initial:     r.Delay,
			Max:         r.MaxDelay,
			Multiplier:  r.Multiplier,
			Jitter:      r.Jitter,
			MaxAttempts: r.MaxAttempts,
		}
	}
	return chatclient.FixedBackoff{Delay: r.Delay, MaxAttempts: r.MaxAttempts}
}
