// Package provider calls chat-completion providers and classifies the outcome
// of every call, so callers decide on fallback from a value rather than from
// error matching.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
)

// Outcome classifies a completion attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeTransportError
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Result is the classified result of one completion call.
type Result struct {
	Outcome Outcome
	Text    string // Completion text, set only on success
	Err     error  // Cause of a failure outcome
}

// OK reports whether the result carries a usable completion.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess && strings.TrimSpace(r.Text) != ""
}

// Success wraps completion text. Blank text is classified as malformed.
func Success(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Malformed(errors.New("empty completion"))
	}
	return Result{Outcome: OutcomeSuccess, Text: text}
}

// RateLimited reports a rate-limit signal from the provider.
func RateLimited(err error) Result {
	return Result{Outcome: OutcomeRateLimited, Err: err}
}

// TransportError reports a network, timeout or non-429 HTTP failure.
func TransportError(err error) Result {
	return Result{Outcome: OutcomeTransportError, Err: err}
}

// Malformed reports a response that could not be used.
func Malformed(err error) Result {
	return Result{Outcome: OutcomeMalformed, Err: err}
}

// Classify maps a client error to its failure Result.
func Classify(err error) Result {
	var apiErr *openai.Error
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests:
		return RateLimited(err)
	case errors.As(err, &apiErr):
		return TransportError(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return TransportError(err)
	case isDecodeError(err):
		return Malformed(err)
	default:
		return TransportError(err)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
