package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuery            = errors.New("invalid query")
	ErrRetrievalTimeout        = errors.New("retrieval timeout")
	ErrNoRetrievalAvailable    = errors.New("no retrieval available")
	ErrContextBudgetTooSmall   = errors.New("context budget too small")
	ErrProviderTimeout         = errors.New("provider timeout")
	ErrProviderRejected        = errors.New("provider rejected request")
	ErrAllProvidersUnavailable = errors.New("all providers unavailable")
	ErrCitationMismatch        = errors.New("citation mismatch")
	ErrCacheUnavailable        = errors.New("cache unavailable")
	ErrNotFound                = errors.New("not found")
	ErrTemporary               = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
