/*
errors.go - Centralized error types for the variance engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers translate these into user-facing responses; the engine never
  swallows a fatal condition or returns a partial result with an error.

ERROR CATEGORIES:
  1. Input validation - malformed amounts, bad periods, broken hierarchies
  2. Configuration - inverted or negative thresholds
  3. Collaborator - missing runs in a result store

NOT ERRORS (documented policy):
  - Unmatched budget items: actual is treated as zero
  - Zero budget: variance percent is defined as zero
  - Empty input: an empty, valid result

USAGE:
  if errors.Is(err, variance.ErrHierarchy) {
      var he *variance.HierarchyError
      errors.As(err, &he)
      log.Printf("bad parent on %s", he.ItemID)
  }

SEE ALSO:
  - engine.go: Returns these errors from Analyze
  - api/handlers.go: Maps them to HTTP status codes
*/
package variance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for NaN, infinite or unparsable amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidPeriod is returned when a period is malformed (end before start,
	// or a label that is not YYYY-MM).
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrHierarchy is returned for unknown parents, cross-period parents and cycles.
	ErrHierarchy = errors.New("invalid account hierarchy")

	// ErrDuplicateItem is returned when two budget items share an ID.
	ErrDuplicateItem = errors.New("duplicate budget item id")

	// ErrMissingID is returned when a budget item has no identifier.
	ErrMissingID = errors.New("missing budget item id")

	// ErrInvalidThresholds is returned when warning >= critical or a threshold is negative.
	ErrInvalidThresholds = errors.New("invalid threshold configuration")

	// ErrRunNotFound is returned by result stores when no run matches.
	ErrRunNotFound = errors.New("analysis run not found")

	// ErrDuplicateRun is returned when a run ID is written twice.
	ErrDuplicateRun = errors.New("analysis run already stored")

	// ErrCacheMiss is returned by caches when a key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AmountError identifies the item and field carrying a bad amount.
type AmountError struct {
	ItemID string
	Field  string
	Value  string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("invalid amount on item %q field %s: %s", e.ItemID, e.Field, e.Value)
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// ItemError is a generic per-item validation failure.
type ItemError struct {
	ItemID string
	Field  string
	Reason string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %q field %s: %s", e.ItemID, e.Field, e.Reason)
}

func (e *ItemError) Unwrap() error { return e.Err }

// HierarchyError describes a broken parent reference.
type HierarchyError struct {
	ItemID   string
	ParentID string
	Reason   string // "unknown_parent", "cross_period", "cycle"
	Path     []string
}

func (e *HierarchyError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("hierarchy %s at item %q (parent %q): path %v", e.Reason, e.ItemID, e.ParentID, e.Path)
	}
	return fmt.Sprintf("hierarchy %s at item %q (parent %q)", e.Reason, e.ItemID, e.ParentID)
}

func (e *HierarchyError) Unwrap() error { return ErrHierarchy }

// ConfigError describes an unusable ThresholdConfig.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("threshold config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidThresholds }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidationError returns true if the error is due to malformed input items.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrHierarchy) ||
		errors.Is(err, ErrDuplicateItem) ||
		errors.Is(err, ErrMissingID)
}

// IsConfigError returns true if the error is due to the threshold configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidThresholds)
}

// IsClientError returns true if the caller supplied the bad data.
func IsClientError(err error) bool {
	return IsValidationError(err) || IsConfigError(err)
}
