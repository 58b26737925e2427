package step

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStep marks a recoverable, step-local failure such as an unusable page.
	// It aborts the remaining steps of the stub it was raised on.
	ErrStep = errors.New("step failure")
	// ErrCancelled marks a step abandoned after its timeout expired or its
	// context was cancelled.
	ErrCancelled = errors.New("processing cancelled")
	// ErrInvalidSheet marks a sheet flagged as holding no usable content.
	ErrInvalidSheet = errors.New("invalid sheet")
	// ErrLoad marks a sheet that could not be materialized.
	ErrLoad = errors.New("sheet load failure")
)

// Wrap builds an error message that includes step context while tagging it
// with marker for classification via errors.Is. A nil marker defaults to
// ErrStep.
func Wrap(marker error, stepName, operation, message string, err error) error {
	detail := buildDetail(stepName, operation, message)
	if marker == nil {
		marker = ErrStep
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Failure builds an ErrStep error for runner implementations.
func Failure(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStep, fmt.Sprintf(format, args...))
}

func buildDetail(stepName, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{stepName, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "processing failure"
	}
	return strings.Join(parts, ": ")
}
