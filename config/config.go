// Package config declares the YAML-tagged configuration structs for the
// offer-matching core, unmarshaled with gopkg.in/yaml.v2, matching
// peloton-peloton's master/config.go AppConfig/MasterConfig tag style.
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/ranxxerox/marathon/admission"
	"github.com/ranxxerox/marathon/offermanager"
)

// AppConfig is the top-level configuration for a process wiring up the
// Offer Matcher Manager, its rate limiter, and its admission filter.
type AppConfig struct {
	Logging LoggingConfig    `yaml:"logging"`
	Manager ManagerConfig    `yaml:"manager"`
	Limiter LimiterConfig    `yaml:"limiter"`
	Filter  admission.Config `yaml:"filter"`
	Feed    FeedConfig       `yaml:"feed"`
}

// LoggingConfig controls logrus's output, mirroring peloton-peloton's
// log.Configuration field on AppConfig.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ManagerConfig wraps offermanager.Config under the "manager" key.
type ManagerConfig struct {
	MaxTasksPerOffer int `yaml:"maxTasksPerOffer"`
	MailboxSize      int `yaml:"mailboxSize"`
}

// ToOfferManagerConfig converts to the type offermanager.New expects.
func (c ManagerConfig) ToOfferManagerConfig() offermanager.Config {
	return offermanager.Config{
		MaxTasksPerOffer: c.MaxTasksPerOffer,
		MailboxSize:      c.MailboxSize,
	}
}

// FeedConfig configures the offer feed's hold time.
type FeedConfig struct {
	HoldTime time.Duration `yaml:"holdTime"`
}

// LimiterConfig configures the launch rate limiter per application,
// keyed by application id, matching spec.md §5's per-(appId, version)
// backoff state.
type LimiterConfig struct {
	Apps map[string]AppLimiterConfig `yaml:"apps"`
}

// AppLimiterConfig is one application's backoff parameters.
type AppLimiterConfig struct {
	Backoff        time.Duration `yaml:"backoff"`
	BackoffFactor  float64       `yaml:"backoffFactor"`
	MaxLaunchDelay time.Duration `yaml:"maxLaunchDelay"`
}

// Load reads and unmarshals a YAML config file at path.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config file")
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrap(err, "unmarshaling config")
	}
	return cfg, nil
}
