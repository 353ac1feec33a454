package recall

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidState is returned on illegal state transition.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrUnresolved is returned when a required dependency isn't found
	// in the recycling-context lineage.
	ErrUnresolved = errors.New("dependency unresolved")
	// ErrInvalidAnchor is returned when anchor doesn't match template
	// level or direction.
	ErrInvalidAnchor = errors.New("invalid anchor")
	// ErrDuplicateTemplate is returned when template name is taken.
	ErrDuplicateTemplate = errors.New("duplicate template")
	// ErrNotRegistered is returned for ids unknown to the container.
	ErrNotRegistered = errors.New("recall id not registered")
	// ErrNoTemplates is returned when invocation has no templates in its
	// scope.
	ErrNoTemplates = errors.New("no templates in scope")
)

// runErrors wraps errors of multiple runs.
type runErrors []error

func (e runErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows errors.Is to match any of the errors.
func (e runErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error is list is empty.
func (e runErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
