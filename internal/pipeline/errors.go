package pipeline

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrPolicy marks guard violations: the requested transition is not legal
// from the run's current state. Callers surface these without retrying;
// no state was changed.
var ErrPolicy = errors.New("policy violation")

func policyErr(msg string) error {
	return eris.Wrap(ErrPolicy, msg)
}

// IsPolicy reports whether err is a guard violation.
func IsPolicy(err error) bool {
	return errors.Is(err, ErrPolicy)
}
