package llm

import (
	"context"
	"errors"
	"net"
	"net/http"

	"sage/internal/services"
)

const stageName = "summarizing"

// classify tags err with a failure kind so the queue can decide whether a
// summarization failure is worth retrying.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return services.Wrap(kindOf(err), stageName, op, "", err)
}

func kindOf(err error) services.Kind {
	var statusErr *httpStatusError
	var emptyErr *emptyContentError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return services.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return services.KindNetwork
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
			statusErr.StatusCode == http.StatusPaymentRequired,
			statusErr.StatusCode == http.StatusNotFound:
			return services.KindConfiguration
		default:
			return services.KindInternal
		}
	case errors.As(err, &emptyErr):
		return services.KindServiceUnavailable
	case errors.As(err, &netErr):
		return services.KindNetwork
	default:
		return services.KindInternal
	}
}
