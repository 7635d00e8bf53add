package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/inferkit/inferkit/diag"
	"github.com/inferkit/inferkit/llm"
	"github.com/inferkit/inferkit/llm/ollama"
	"github.com/inferkit/inferkit/resilience"
)

// Config is the full service configuration.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Guard   llm.GuardConfig `yaml:"guard" mapstructure:"guard"`
	Ollama  ollama.Config   `yaml:"ollama" mapstructure:"ollama"`
	Diag    diag.Config     `yaml:"diag" mapstructure:"diag"`
	Metrics MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// MetricsConfig configures OTLP metric export.
type MetricsConfig struct {
	Disabled bool          `yaml:"disabled" mapstructure:"disabled"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults fills every unset field with its default.
//
// A fully zero retry section gets the full default policy; a partially set
// one only has its invalid zeros filled, so max_retries: 0 and a zero jitter
// remain expressible.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()

	if c.Guard.Retry == (resilience.RetryPolicy{}) {
		c.Guard.Retry = resilience.DefaultRetryPolicy()
	} else {
		if c.Guard.Retry.InitialDelay == 0 {
			c.Guard.Retry.InitialDelay = time.Second
		}
		if c.Guard.Retry.MaxDelay == 0 {
			c.Guard.Retry.MaxDelay = 30 * time.Second
		}
		if c.Guard.Retry.Multiplier == 0 {
			c.Guard.Retry.Multiplier = 2.0
		}
	}

	if c.Guard.Breaker.Threshold == 0 {
		c.Guard.Breaker.Threshold = 5
	}
	if c.Guard.Breaker.ResetTimeout == 0 {
		c.Guard.Breaker.ResetTimeout = 60 * time.Second
	}
	if c.Guard.Breaker.HalfOpenMaxCalls == 0 {
		c.Guard.Breaker.HalfOpenMaxCalls = 1
	}

	if c.Guard.Limiter.RequestsPerMinute == 0 {
		c.Guard.Limiter.RequestsPerMinute = 60
	}
	if c.Guard.Limiter.Burst == 0 {
		c.Guard.Limiter.Burst = c.Guard.Limiter.RequestsPerMinute / 6
		if c.Guard.Limiter.Burst < 1 {
			c.Guard.Limiter.Burst = 1
		}
	}

	if c.Guard.Cache.MaxEntries == 0 {
		c.Guard.Cache.MaxEntries = 100
	}
	// ttl: 0 (unset) gets the one-hour default; a negative ttl means
	// entries never expire.
	if c.Guard.Cache.TTL == 0 {
		c.Guard.Cache.TTL = time.Hour
	} else if c.Guard.Cache.TTL < 0 {
		c.Guard.Cache.TTL = 0
	}

	c.Diag.ApplyDefaults()

	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = "localhost:4318"
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 15 * time.Second
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Guard.Retry.Validate(); err != nil {
		return fmt.Errorf("config.guard.retry: %w", err)
	}
	if c.Guard.Limiter.RequestsPerMinute < 0 {
		return fmt.Errorf("config.guard.limiter.requests_per_minute must be non-negative (got: %g)", c.Guard.Limiter.RequestsPerMinute)
	}
	if c.Guard.Limiter.Burst < 0 {
		return fmt.Errorf("config.guard.limiter.burst must be non-negative (got: %g)", c.Guard.Limiter.Burst)
	}
	if c.Guard.Breaker.ResetTimeout < 0 {
		return fmt.Errorf("config.guard.breaker.reset_timeout must be non-negative (got: %s)", c.Guard.Breaker.ResetTimeout)
	}
	if err := c.Diag.Validate(); err != nil {
		return fmt.Errorf("config.diag: %w", err)
	}
	return nil
}

var (
	structValidator *validator.Validate
	validatorOnce   sync.Once
)

// validateStruct runs struct tag validation, reporting field names from
// mapstructure tags so error messages match the config file keys.
func validateStruct(s any) error {
	validatorOnce.Do(func() {
		structValidator = validator.New(validator.WithRequiredStructEnabled())
		structValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "-" || name == "" {
				return strings.ToLower(fld.Name)
			}
			return name
		})
	})

	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("config.%s is required", e.Field()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("config.%s must be one of [%s] (got: %v)", e.Field(), e.Param(), e.Value()))
		default:
			messages = append(messages, fmt.Sprintf("config.%s failed %s validation", e.Field(), e.Tag()))
		}
	}
	return fmt.Errorf("%s", strings.Join(messages, "; "))
}
