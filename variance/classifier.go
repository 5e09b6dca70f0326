package variance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// THRESHOLD CONFIG - Organization-level severity boundaries
// =============================================================================

// Profile selects the tier table the classifier uses.
type Profile string

const (
	// ProfileStandard is normal/warning/critical at WarningPercent/CriticalPercent.
	ProfileStandard Profile = "standard"

	// ProfileDetailed is low/medium/high/critical at 5/15/30 percent,
	// used by ad-hoc analysis.
	ProfileDetailed Profile = "detailed"
)

var (
	DefaultWarningPercent   = decimal.NewFromInt(10)
	DefaultCriticalPercent  = decimal.NewFromInt(15)
	DefaultFavorablePercent = decimal.NewFromInt(-5)
)

// ThresholdConfig holds the boundaries for one organization.
// A zero field means "unset" and takes the default.
type ThresholdConfig struct {
	Profile          Profile         `json:"profile"`
	WarningPercent   decimal.Decimal `json:"warning_percent"`
	CriticalPercent  decimal.Decimal `json:"critical_percent"`
	FavorablePercent decimal.Decimal `json:"favorable_percent"`
}

// DefaultThresholds returns the standard 10/15 profile.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		Profile:          ProfileStandard,
		WarningPercent:   DefaultWarningPercent,
		CriticalPercent:  DefaultCriticalPercent,
		FavorablePercent: DefaultFavorablePercent,
	}
}

// DetailedThresholds returns the four-tier profile.
func DetailedThresholds() ThresholdConfig {
	cfg := DefaultThresholds()
	cfg.Profile = ProfileDetailed
	return cfg
}

// WithDefaults fills unset fields.
func (c ThresholdConfig) WithDefaults() ThresholdConfig {
	if c.Profile == "" {
		c.Profile = ProfileStandard
	}
	if c.WarningPercent.IsZero() {
		c.WarningPercent = DefaultWarningPercent
	}
	if c.CriticalPercent.IsZero() {
		c.CriticalPercent = DefaultCriticalPercent
	}
	if c.FavorablePercent.IsZero() {
		c.FavorablePercent = DefaultFavorablePercent
	}
	return c
}

// Validate rejects configurations the classifier cannot order.
// Call on a config that already had WithDefaults applied.
func (c ThresholdConfig) Validate() error {
	switch c.Profile {
	case ProfileStandard, ProfileDetailed:
	default:
		return &ConfigError{Field: "profile", Reason: "unknown profile " + string(c.Profile)}
	}
	if c.WarningPercent.IsNegative() {
		return &ConfigError{Field: "warning_percent", Reason: "must not be negative"}
	}
	if c.CriticalPercent.IsNegative() {
		return &ConfigError{Field: "critical_percent", Reason: "must not be negative"}
	}
	if !c.WarningPercent.LessThan(c.CriticalPercent) {
		return &ConfigError{
			Field:  "warning_percent",
			Reason: "must be less than critical_percent (" + c.WarningPercent.String() + " >= " + c.CriticalPercent.String() + ")",
		}
	}
	return nil
}

// =============================================================================
// TIERS - Ordered severity boundaries, highest first
// =============================================================================

// Tier assigns Severity when |percent| is strictly greater than Above.
type Tier struct {
	Severity Severity
	Above    decimal.Decimal
}

var detailedTiers = []Tier{
	{Severity: SeverityCritical, Above: decimal.NewFromInt(30)},
	{Severity: SeverityHigh, Above: decimal.NewFromInt(15)},
	{Severity: SeverityMedium, Above: decimal.NewFromInt(5)},
}

// Tiers returns the tier table for the config's profile, highest first.
func (c ThresholdConfig) Tiers() []Tier {
	if c.Profile == ProfileDetailed {
		out := make([]Tier, len(detailedTiers))
		copy(out, detailedTiers)
		return out
	}
	return []Tier{
		{Severity: SeverityCritical, Above: c.CriticalPercent},
		{Severity: SeverityWarning, Above: c.WarningPercent},
	}
}

// Floor is the severity given when no tier matches.
func (c ThresholdConfig) Floor() Severity {
	if c.Profile == ProfileDetailed {
		return SeverityLow
	}
	return SeverityNormal
}

// CriticalBoundary is the percent above which a variance is critical.
func (c ThresholdConfig) CriticalBoundary() decimal.Decimal {
	return c.Tiers()[0].Above
}

// Severities lists every tier of the profile from lowest to highest.
func (c ThresholdConfig) Severities() []Severity {
	tiers := c.Tiers()
	out := []Severity{c.Floor()}
	for i := len(tiers) - 1; i >= 0; i-- {
		out = append(out, tiers[i].Severity)
	}
	return out
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classifier maps a variance percent to a severity tier.
type Classifier struct {
	tiers []Tier
	floor Severity
}

// NewClassifier builds a classifier for cfg. cfg is expected to be valid.
func NewClassifier(cfg ThresholdConfig) Classifier {
	return Classifier{tiers: cfg.Tiers(), floor: cfg.Floor()}
}

// Classify applies strictly-greater-than at each boundary: a percent equal
// to a threshold falls into the lower tier.
func (c Classifier) Classify(variancePercent decimal.Decimal) Severity {
	abs := variancePercent.Abs()
	for _, t := range c.tiers {
		if abs.GreaterThan(t.Above) {
			return t.Severity
		}
	}
	return c.floor
}
