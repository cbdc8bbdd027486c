package query

import (
	"errors"

	"github.com/alem-hub/gamification/internal/domain/shared"
)

// readErr passes domain errors through and wraps anything else as a storage failure.
func readErr(domain, op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.StorageError(domain, op, err)
}
