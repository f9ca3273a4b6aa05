package model

import "fmt"

// ValidationError reports a rejected request before any state was mutated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func ValidateRange(min, max float64) error {
	if min < MinAllowedTemp || min > MaxAllowedTemp {
		return &ValidationError{Field: "min", Message: fmt.Sprintf("minimum temperature must be between %.0f and %.0f", MinAllowedTemp, MaxAllowedTemp)}
	}
	if max < MinAllowedTemp || max > MaxAllowedTemp {
		return &ValidationError{Field: "max", Message: fmt.Sprintf("maximum temperature must be between %.0f and %.0f", MinAllowedTemp, MaxAllowedTemp)}
	}
	if min >= max {
		return &ValidationError{Field: "range", Message: "minimum temperature must be less than maximum"}
	}
	return nil
}
