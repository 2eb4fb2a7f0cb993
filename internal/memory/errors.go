package memory

import (
	"context"
	"errors"
	"net"
	"net/http"

	"sage/internal/services"
)

const stageName = "storing"

var errMissingKey = errors.New("embeddings api key not configured")

type malformedResponseError struct {
	err error
}

func (e *malformedResponseError) Error() string { return "malformed embedding response: " + e.err.Error() }

func (e *malformedResponseError) Unwrap() error { return e.err }

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return services.Wrap(kindOf(err), stageName, op, "", err)
}

func kindOf(err error) services.Kind {
	var statusErr *httpStatusError
	var malformed *malformedResponseError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return services.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return services.KindNetwork
	case errors.Is(err, errMissingKey):
		return services.KindConfiguration
	case errors.As(err, &statusErr):
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return services.KindRateLimited
		case statusErr.StatusCode == http.StatusRequestTimeout:
			return services.KindNetwork
		case statusErr.StatusCode >= http.StatusInternalServerError:
			return services.KindServiceUnavailable
		case statusErr.StatusCode == http.StatusUnauthorized,
			statusErr.StatusCode == http.StatusForbidden,
			statusErr.StatusCode == http.StatusNotFound:
			return services.KindConfiguration
		default:
			return services.KindStorageFailure
		}
	case errors.As(err, &malformed):
		return services.KindServiceUnavailable
	case errors.As(err, &netErr):
		return services.KindNetwork
	default:
		return services.KindStorageFailure
	}
}
