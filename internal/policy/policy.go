// Package policy holds per-client overrides of the guard's server defaults.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/ratelimit"
)

// Config is a client's policy, stored in the client_policies table.
// All pointer fields use nil to mean "use server default".
type Config struct {
	RateLimit   *RateLimit  `json:"rate_limit,omitempty" validate:"omitempty"`
	PostLimits  *PostLimits `json:"post_limits,omitempty" validate:"omitempty"`
	AllowedTags []string    `json:"allowed_tags,omitempty" validate:"omitempty,max=20,dive,alphanum,max=16"`
	ChatEnabled *bool       `json:"chat_enabled,omitempty"`
}

// RateLimit overrides the request window for a client.
type RateLimit struct {
	MaxRequests   *int `json:"max_requests,omitempty" validate:"omitempty,min=1,max=100000"`
	WindowSeconds *int `json:"window_seconds,omitempty" validate:"omitempty,min=1,max=86400"`
}

// PostLimits overrides forum post length bounds for a client.
type PostLimits struct {
	TitleMin *int `json:"title_min,omitempty" validate:"omitempty,min=1"`
	TitleMax *int `json:"title_max,omitempty" validate:"omitempty,min=1"`
	BodyMin  *int `json:"body_min,omitempty" validate:"omitempty,min=1"`
	BodyMax  *int `json:"body_max,omitempty" validate:"omitempty,min=1"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrInvertedBounds is returned when a minimum exceeds its maximum.
var ErrInvertedBounds = errors.New("minimum exceeds maximum")

// Validate checks field ranges and that the effective post bounds are ordered.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("Validate: %w", err)
	}
	lim := c.EffectivePostLimits(contentguard.DefaultPostLimits())
	if lim.TitleMin > lim.TitleMax {
		return fmt.Errorf("Validate: title: %w", ErrInvertedBounds)
	}
	if lim.BodyMin > lim.BodyMax {
		return fmt.Errorf("Validate: body: %w", ErrInvertedBounds)
	}
	return nil
}

// EffectiveRateLimit applies the client's overrides to the server default.
func (c *Config) EffectiveRateLimit(serverDefault ratelimit.Config) ratelimit.Config {
	if c == nil || c.RateLimit == nil {
		return serverDefault
	}
	out := serverDefault
	if c.RateLimit.MaxRequests != nil {
		out.MaxRequests = *c.RateLimit.MaxRequests
	}
	if c.RateLimit.WindowSeconds != nil {
		out.Window = time.Duration(*c.RateLimit.WindowSeconds) * time.Second
	}
	return out
}

// EffectivePostLimits applies the client's overrides to the server default.
func (c *Config) EffectivePostLimits(serverDefault contentguard.PostLimits) contentguard.PostLimits {
	if c == nil || c.PostLimits == nil {
		return serverDefault
	}
	out := serverDefault
	override(&out.TitleMin, c.PostLimits.TitleMin)
	override(&out.TitleMax, c.PostLimits.TitleMax)
	override(&out.BodyMin, c.PostLimits.BodyMin)
	override(&out.BodyMax, c.PostLimits.BodyMax)
	return out
}

// IsChatEnabled defaults to true.
func (c *Config) IsChatEnabled() bool {
	if c == nil || c.ChatEnabled == nil {
		return true
	}
	return *c.ChatEnabled
}

// Tags returns the sanitize allowlist; nil means strip every tag.
func (c *Config) Tags() []string {
	if c == nil {
		return nil
	}
	return c.AllowedTags
}

func override(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
