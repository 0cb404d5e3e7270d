package bybit

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// APIError is a non-zero retCode returned by a v5 endpoint
type APIError struct {
	Code    int    `json:"retCode"`
	Message string `json:"retMsg"`
	Op      string `json:"-"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = Describe(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("bybit %s: code %d: %s", e.Op, e.Code, msg)
	}
	return fmt.Sprintf("bybit: code %d: %s", e.Code, msg)
}

// v5 retCodes the market client cares about
const (
	ErrCodeInvalidParameter  = 10001
	ErrCodeInvalidTimestamp  = 10002
	ErrCodeInvalidAPIKey     = 10003
	ErrCodeInvalidSignature  = 10004
	ErrCodePermissionDenied  = 10005
	ErrCodeRateLimitExceeded = 10006
	ErrCodeServerError       = 10016
	ErrCodeIPRateLimit       = 10018
)

type codeClass int

const (
	classPermanent codeClass = iota
	classTransient
	classAuth
)

type codeInfo struct {
	desc  string
	class codeClass
}

var knownCodes = map[int]codeInfo{
	ErrCodeInvalidParameter:        {"invalid request parameter", classPermanent},
	ErrCodeInvalidTimestamp:        {"timestamp outside recv window", classAuth},
	ErrCodeInvalidAPIKey:           {"invalid API key", classAuth},
	ErrCodeInvalidSignature:        {"signature mismatch", classAuth},
	ErrCodePermissionDenied:        {"API key lacks permission", classAuth},
	ErrCodeRateLimitExceeded:       {"rate limit exceeded", classTransient},
	ErrCodeServerError:             {"exchange server error", classTransient},
	ErrCodeIPRateLimit:             {"IP rate limit exceeded", classTransient},
	http.StatusInternalServerError: {"internal server error", classTransient},
	http.StatusBadGateway:          {"bad gateway", classTransient},
	http.StatusServiceUnavailable:  {"service unavailable", classTransient},
	http.StatusGatewayTimeout:      {"gateway timeout", classTransient},
}

// Describe returns a short text for a retCode
func Describe(code int) string {
	if info, ok := knownCodes[code]; ok {
		return info.desc
	}
	return fmt.Sprintf("unrecognized code %d", code)
}

// classify reports the class of the first APIError in err's chain. Unknown
// codes are permanent.
func classify(err error) (codeClass, bool) {
	var apiErr *APIError
	if !stderrors.As(err, &apiErr) {
		return classPermanent, false
	}
	return knownCodes[apiErr.Code].class, true
}

// IsTransient reports whether err carries a code worth retrying
func IsTransient(err error) bool {
	c, _ := classify(err)
	return c == classTransient
}

// IsAuthError reports whether err was caused by the API credentials. These
// never succeed on retry.
func IsAuthError(err error) bool {
	c, _ := classify(err)
	return c == classAuth
}

func IsRateLimitError(err error) bool {
	var apiErr *APIError
	if !stderrors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == ErrCodeRateLimitExceeded || apiErr.Code == ErrCodeIPRateLimit
}

// checkResponse turns a response envelope into an error
func checkResponse(op string, retCode int, retMsg string) error {
	if retCode == 0 {
		return nil
	}
	return &APIError{Code: retCode, Message: retMsg, Op: op}
}
