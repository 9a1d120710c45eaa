package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidName     = errors.New("invalid name")
	ErrAmountTooLarge  = errors.New("amount exceeds maximum allowed")
	ErrAmountTooSmall  = errors.New("amount below minimum allowed")
	ErrInvalidIDFormat = errors.New("invalid ID format")
)

const (
	MaxNameLength = 255

	DefaultPageSize = 50
	MaxPageSize     = 1000
)

var (
	// MinAmount is one cent; facility and payment amounts below it are noise.
	MinAmount = decimal.New(1, -2)
	// MaxFacilityAmount caps any single amount at one trillion.
	MaxFacilityAmount = decimal.New(1, 12)

	idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// ValidateName checks committee names.
func ValidateName(name string) error {
	switch n := len(strings.TrimSpace(name)); {
	case n == 0:
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	case n > MaxNameLength:
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, MaxNameLength)
	}
	return nil
}

// ValidateAmount checks a caller supplied money amount.
func ValidateAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return ErrInvalidAmount
	case amount.LessThan(MinAmount):
		return fmt.Errorf("%w: minimum amount is %s", ErrAmountTooSmall, MinAmount)
	case amount.GreaterThan(MaxFacilityAmount):
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxFacilityAmount)
	}
	return nil
}

// ValidateID checks identifiers supplied by callers, such as customer and
// deposit account ids.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidIDFormat, id)
	}
	return nil
}

// ClampPage bounds list paging: a non-positive limit becomes
// DefaultPageSize, limits above MaxPageSize are capped and negative offsets
// start at zero.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
