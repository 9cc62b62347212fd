package rocker

import "errors"

// Domain errors for the rocker package.
var (
	// ErrInvalidPosition is returned when a position name is not AI, AO, BI or BO.
	ErrInvalidPosition = errors.New("rocker: invalid position")

	// ErrAmbiguousToggle is returned when a toggle command resolves to more
	// than one switch.
	ErrAmbiguousToggle = errors.New("rocker: toggle command has more than one switch")

	// ErrPersistence wraps store failures that aborted a batch.
	ErrPersistence = errors.New("rocker: persistence failed")

	// ErrMissingDependency is returned by NewTranslator when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("rocker: missing dependency")
)
