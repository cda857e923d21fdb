package ai

import (
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cockroachdb/errors"
	"google.golang.org/genai"
)

// Error classes for remote calls. They are attached with errors.Mark so the
// provider's own error stays in the chain.
var (
	ErrRateLimited = errors.New("rate limited by provider")
	ErrNotFound    = errors.New("model or resource not found")
	ErrEmpty       = errors.New("provider returned no content")
)

// classify marks err with a known error class, if any applies.
func classify(err error) error {
	if err == nil {
		return nil
	}

	code, status := statusOf(err)
	switch {
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return errors.Mark(err, ErrRateLimited)
	case code == http.StatusNotFound || status == "NOT_FOUND":
		return errors.Mark(err, ErrNotFound)
	}
	return err
}

func statusOf(err error) (int, string) {
	var gv genai.APIError
	if errors.As(err, &gv) {
		return gv.Code, gv.Status
	}
	var gp *genai.APIError
	if errors.As(err, &gp) && gp != nil {
		return gp.Code, gp.Status
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) && ae != nil {
		return ae.StatusCode, ""
	}
	return 0, ""
}

// Kind names the error class for logging.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrEmpty):
		return "empty"
	}
	return "other"
}
