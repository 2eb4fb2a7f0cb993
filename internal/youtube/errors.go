package youtube

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"

	"sage/internal/services"
)

// httpStatusError is returned for non-200 caption downloads.
type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return "caption request: http " + http.StatusText(e.StatusCode)
}

// Classify maps a library or transport error onto the failure taxonomy.
func Classify(err error) services.Kind {
	if err == nil {
		return services.KindNone
	}
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return services.KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return services.KindNetwork
	case errors.Is(err, ytdl.ErrInvalidCharactersInVideoID), errors.Is(err, ytdl.ErrVideoIDMinLength):
		return services.KindInvalidInput
	case errors.Is(err, ytdl.ErrVideoPrivate), errors.Is(err, ytdl.ErrLoginRequired):
		return services.KindNotAccessible
	}

	var ytStatus ytdl.ErrUnexpectedStatusCode
	if errors.As(err, &ytStatus) {
		return classifyStatus(int(ytStatus))
	}
	var status *httpStatusError
	if errors.As(err, &status) {
		return classifyStatus(status.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return services.KindNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"private", "unavailable", "not available", "removed", "login required", "sign in"} {
		if strings.Contains(msg, marker) {
			return services.KindNotAccessible
		}
	}
	return services.KindNetwork
}

func classifyStatus(code int) services.Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return services.KindRateLimited
	case code == http.StatusRequestTimeout:
		return services.KindNetwork
	case code >= http.StatusInternalServerError:
		return services.KindServiceUnavailable
	case code == http.StatusForbidden, code == http.StatusNotFound, code == http.StatusGone, code == http.StatusUnauthorized:
		return services.KindNotAccessible
	default:
		return services.KindNetwork
	}
}

func wrap(stage, operation string, err error) error {
	kind := Classify(err)
	return services.Wrap(kind, stage, operation, "", err)
}
