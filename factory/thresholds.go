/*
Package factory provides JSON/YAML to Go conversion for variance inputs.

PURPOSE:
  Converts threshold definitions and budget/actual item payloads into
  variance types. Organizations can keep thresholds in YAML alongside other
  finance configuration, and the API/CLI accept items as JSON, without any
  float ever touching a money amount.

THRESHOLD SCHEMA (JSON or YAML):
  {
    "profile": "standard",        // or "detailed"
    "warning_percent": 10,
    "critical_percent": 15,
    "favorable_percent": -5
  }

  profile: detailed
  critical_percent: 20

KEY FEATURES:
  - Amounts accepted as JSON numbers or strings ("1,234.50", "(200)")
  - Non-finite and unparsable amounts rejected with variance.AmountError
  - Omitted threshold fields take defaults; inverted thresholds are rejected

USAGE:
  f := factory.New()
  cfg, err := f.ParseThresholds(data)   // JSON or YAML
  budgets, err := f.ParseBudgets(data, "2025-03")
  actuals, err := f.ParseActuals(data, "2025-03")

SEE ALSO:
  - variance/classifier.go: ThresholdConfig
  - ingest/: Source-system specific adapters
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/variance-engine/variance"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// Amount is a decimal as it appears in a payload: a JSON number, a JSON
// string or a YAML scalar. Conversion happens in ToDecimal.
type Amount string

// UnmarshalJSON keeps the literal text of numbers so no precision is lost.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*a = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
	default:
		*a = Amount(b)
	}
	return nil
}

// ToDecimal converts the amount, naming itemID and field in errors.
func (a Amount) ToDecimal(itemID, field string) (decimal.Decimal, error) {
	return variance.AmountFromString(itemID, field, string(a))
}

// ThresholdsJSON is the payload representation of a ThresholdConfig.
type ThresholdsJSON struct {
	Profile          string `json:"profile,omitempty" yaml:"profile,omitempty"`
	WarningPercent   Amount `json:"warning_percent,omitempty" yaml:"warning_percent,omitempty"`
	CriticalPercent  Amount `json:"critical_percent,omitempty" yaml:"critical_percent,omitempty"`
	FavorablePercent Amount `json:"favorable_percent,omitempty" yaml:"favorable_percent,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory converts payloads to variance types.
type Factory struct{}

func New() *Factory {
	return &Factory{}
}

// ParseThresholds accepts JSON (leading '{') or YAML.
func (f *Factory) ParseThresholds(data []byte) (variance.ThresholdConfig, error) {
	var tj ThresholdsJSON
	trimmed := bytes.TrimSpace(data)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &tj); err != nil {
			return variance.ThresholdConfig{}, fmt.Errorf("failed to parse thresholds JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &tj); err != nil {
			return variance.ThresholdConfig{}, fmt.Errorf("failed to parse thresholds YAML: %w", err)
		}
	}

	return f.ThresholdsFromJSON(tj)
}

// ThresholdsFromJSON converts, applies defaults and validates.
func (f *Factory) ThresholdsFromJSON(tj ThresholdsJSON) (variance.ThresholdConfig, error) {
	warning, err := tj.WarningPercent.ToDecimal("thresholds", "warning_percent")
	if err != nil {
		return variance.ThresholdConfig{}, err
	}
	critical, err := tj.CriticalPercent.ToDecimal("thresholds", "critical_percent")
	if err != nil {
		return variance.ThresholdConfig{}, err
	}
	favorable, err := tj.FavorablePercent.ToDecimal("thresholds", "favorable_percent")
	if err != nil {
		return variance.ThresholdConfig{}, err
	}

	cfg := variance.ThresholdConfig{
		Profile:          variance.Profile(strings.ToLower(strings.TrimSpace(tj.Profile))),
		WarningPercent:   warning,
		CriticalPercent:  critical,
		FavorablePercent: favorable,
	}.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return variance.ThresholdConfig{}, err
	}
	return cfg, nil
}

// ThresholdsToJSON converts a ThresholdConfig back to its payload form.
func (f *Factory) ThresholdsToJSON(cfg variance.ThresholdConfig) ThresholdsJSON {
	return ThresholdsJSON{
		Profile:          string(cfg.Profile),
		WarningPercent:   Amount(cfg.WarningPercent.String()),
		CriticalPercent:  Amount(cfg.CriticalPercent.String()),
		FavorablePercent: Amount(cfg.FavorablePercent.String()),
	}
}

// ThresholdsYAML renders cfg as YAML.
func (f *Factory) ThresholdsYAML(cfg variance.ThresholdConfig) ([]byte, error) {
	return yaml.Marshal(f.ThresholdsToJSON(cfg))
}
