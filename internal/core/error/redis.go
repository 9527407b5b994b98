package errx

import (
	"net/http"
)

// WrapRedis maps a Redis failure onto the store-unavailable taxonomy with a
// consistent status code. The store is the only stateful dependency, so any
// transport or auth error here is fatal to the current turn.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Err:     Wrap(ErrStoreUnavailable, err),
		Status:  http.StatusBadGateway,
		Message: StoreErrorMessage,
	}
}
