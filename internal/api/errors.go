package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/trade-engine/market-data-server/internal/domain"
)

// StatusClientClosedRequest is logged when the client went away mid-query.
const StatusClientClosedRequest = 499

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides filesystem paths from clients; invalid queries are echoed.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return err.Error()
	case errors.Is(err, domain.ErrDirectoryUnavailable):
		return "market data unavailable"
	case errors.Is(err, domain.ErrDecodeFailed):
		return "failed to decode market data"
	case errors.Is(err, context.DeadlineExceeded):
		return "query timed out"
	default:
		return "internal error"
	}
}
