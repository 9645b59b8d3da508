package contracts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingColumn is returned when an input table lacks a required column
	ErrMissingColumn = errors.New("missing required column")

	// ErrMissingArtifact is returned when a file produced by an earlier step is absent
	ErrMissingArtifact = errors.New("missing artifact")

	// ErrInvalidAction is returned for an action index outside the exposure table
	ErrInvalidAction = errors.New("invalid action")

	// ErrNotReady is returned when step is called before reset or after termination
	ErrNotReady = errors.New("environment not ready")

	// ErrSplitOverlap signals a train/test split that shares symbols
	ErrSplitOverlap = errors.New("train/test overlap")

	// ErrEmptyPool is returned when no symbol can be sampled
	ErrEmptyPool = errors.New("empty symbol pool")
)

// SchemaError names the table and the columns it lacks
type SchemaError struct {
	Source  string
	Missing []string
	Found   []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %v %s (columns: %s)",
		e.Source, ErrMissingColumn, strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
}

func (e *SchemaError) Unwrap() error {
	return ErrMissingColumn
}

// ArtifactError names the expected path and the step that produces it
type ArtifactError struct {
	Path     string
	Producer string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("%v: %s (run `%s` first)", ErrMissingArtifact, e.Path, e.Producer)
}

func (e *ArtifactError) Unwrap() error {
	return ErrMissingArtifact
}
