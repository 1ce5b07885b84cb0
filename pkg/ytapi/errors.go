package ytapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrorKind is the closed classification of request failures. Downstream
// code branches on the kind only and never re-inspects provider payloads.
type ErrorKind string

const (
	// KindQuotaExhausted means no credential in the pool could cover the
	// call. It is fatal for the current call and never retried.
	KindQuotaExhausted ErrorKind = "quota_exhausted"
	// KindQuota means one credential's daily budget is spent.
	KindQuota ErrorKind = "quota"
	// KindAuth means the credential is invalid or revoked.
	KindAuth ErrorKind = "auth"
	// KindRateLimit means transient throttling by the provider.
	KindRateLimit ErrorKind = "rate_limit"
	// KindNotFound means the requested resource does not exist. Terminal,
	// not a fault of the credential.
	KindNotFound ErrorKind = "not_found"
	// KindInvalidRequest means the request shape was wrong (caller error).
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindServiceUnavailable means a server-side 5xx.
	KindServiceUnavailable ErrorKind = "service_unavailable"
	// KindNetwork means no response was received at all.
	KindNetwork ErrorKind = "network"
	// KindUnknown is everything else; terminal and logged for investigation.
	KindUnknown ErrorKind = "unknown"
)

// APIError is the single typed error surfaced for a failed call.
// Constructed once per failed attempt and never mutated afterwards,
// except that the executor stamps Endpoint, Credential and Attempts
// before handing it to the caller.
type APIError struct {
	Kind       ErrorKind
	HTTPStatus int
	Message    string
	Reason     string
	Resource   string // "video", "channel", ... for KindNotFound
	RetryAfter int    // seconds, 0 when the provider gave no hint
	Endpoint   string
	Credential string // credential name; the secret is never included
	Attempts   int
	cause      error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ytapi: %s", e.Kind)
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " endpoint=%s", e.Endpoint)
	}
	if e.Credential != "" {
		fmt.Fprintf(&b, " credential=%s", e.Credential)
	}
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " status=%d", e.HTTPStatus)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " attempts=%d", e.Attempts)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.cause }

// Retryable reports whether the attempt loop may try again. Only network
// failures, rate limiting and server-side outages qualify.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimit, KindServiceUnavailable:
		return true
	}
	return false
}

// googleErrorBody mirrors the error envelope the API returns on failure.
type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
			Domain string `json:"domain"`
		} `json:"errors"`
	} `json:"error"`
}

// ClassifyTransport classifies a failure where no HTTP response arrived.
// Transport errors embed the request URL, key parameter included, so the
// secret is masked out of the message before it can reach a log line.
func ClassifyTransport(endpoint, secret string, err error) *APIError {
	msg := err.Error()
	if secret != "" {
		masked := MaskSecret(secret)
		msg = strings.ReplaceAll(msg, secret, masked)
		if escaped := url.QueryEscape(secret); escaped != secret {
			msg = strings.ReplaceAll(msg, escaped, masked)
		}
	}
	return &APIError{
		Kind:     KindNetwork,
		Message:  msg,
		Endpoint: endpoint,
		cause:    err,
	}
}

// ClassifyResponse maps a non-200 response onto exactly one error kind.
// Priority: auth signals, quota-exceeded reasons, rate limiting, not-found,
// bad request, 5xx, then unknown.
func ClassifyResponse(endpoint string, resp *http.Response, body []byte) *APIError {
	var payload googleErrorBody
	_ = json.Unmarshal(body, &payload) // a non-JSON body still classifies by status

	reason := ""
	if len(payload.Error.Errors) > 0 {
		reason = payload.Error.Errors[0].Reason
	}
	message := payload.Error.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
		if len(message) > 200 {
			message = message[:200]
		}
	}

	e := &APIError{
		HTTPStatus: resp.StatusCode,
		Message:    message,
		Reason:     reason,
		Endpoint:   endpoint,
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		reason == "keyInvalid", reason == "authError", reason == "unauthorized":
		e.Kind = KindAuth
	case reason == "quotaExceeded", reason == "dailyLimitExceeded":
		e.Kind = KindQuota
	case resp.StatusCode == http.StatusTooManyRequests,
		reason == "rateLimitExceeded", reason == "userRateLimitExceeded":
		e.Kind = KindRateLimit
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusNotFound:
		e.Kind = KindNotFound
		e.Resource = notFoundResource(endpoint)
	case resp.StatusCode == http.StatusBadRequest:
		e.Kind = KindInvalidRequest
	case resp.StatusCode >= 500:
		e.Kind = KindServiceUnavailable
	default:
		e.Kind = KindUnknown
	}
	return e
}

func notFoundResource(endpoint string) string {
	switch endpoint {
	case EndpointVideos.Name:
		return "video"
	case EndpointChannels.Name:
		return "channel"
	case EndpointPlaylistItems.Name:
		return "playlist"
	case EndpointComments.Name, EndpointCommentThreads.Name:
		return "comment"
	}
	return "resource"
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return secs
	}
	return 0
}

const maxRetryDelay = 300 * time.Second

// RetryDelay returns how long to wait before retry number attempt
// (first retry is attempt 1). A provider hint wins; otherwise the delay
// doubles per attempt and caps at five minutes. Deterministic, no jitter.
func RetryDelay(err *APIError, attempt int) time.Duration {
	if err != nil && err.RetryAfter > 0 {
		return time.Duration(err.RetryAfter) * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 8 { // 2^9 already exceeds the cap
		return maxRetryDelay
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// MaskSecret shortens an API key for log output. The full secret never
// appears in logs or errors.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
