package providers

import (
	"strings"

	"docchat/internal/util"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
	ErrorAuth      ErrorType = "auth"
)

// ClassifyError buckets a provider failure by its message. The result is only
// used for logging; callers never retry on it.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate limit"), strings.Contains(e, "rate_limit"), strings.Contains(e, "too many requests"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "key missing"), strings.Contains(e, "401"), strings.Contains(e, "unauthorized"):
		return ErrorAuth
	case strings.Contains(e, "context length"), strings.Contains(e, "too long"), strings.Contains(e, "maximum context"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "deadline"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// InvocationError wraps a failed provider call as a ProviderInvocationError.
// Errors that already carry a kind pass through untouched.
func InvocationError(op string, info ProviderInfo, err error) error {
	if err == nil {
		return nil
	}
	if util.KindOf(err) != nil {
		return err
	}
	return util.Errorf(util.ErrProviderInvocation, op, "%s (%s): %w", info.Name, ClassifyError(err), err)
}
