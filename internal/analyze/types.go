package analyze

import (
	"fmt"
	"strings"
)

const (
	CodePrecondition = "PRECONDITION"
	CodeTransport    = "TRANSPORT"
	CodeProtocol     = "PROTOCOL"
	CodeValidation   = "VALIDATION"
)

// GenericFailureMessage is the fixed fallback shown whenever the remote
// service fails without a usable detail string.
const GenericFailureMessage = "Не удалось получить результат анализа. Попробуйте позже."

type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// NewError builds a CodedError. Message must be safe to display as-is.
func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// Signal is the categorical trading direction returned by the analyzer.
type Signal string

const (
	SignalLong    Signal = "LONG"
	SignalShort   Signal = "SHORT"
	SignalNeutral Signal = "NEUTRAL"
)

// Valid reports whether s is one of the three contract values. Anything
// else is a protocol violation and must never be coerced.
func (s Signal) Valid() bool {
	switch s {
	case SignalLong, SignalShort, SignalNeutral:
		return true
	}
	return false
}

// Result is the analyzer's answer for one chart image.
type Result struct {
	Signal         Signal `json:"signal"`
	ExpiryMinutes  int    `json:"expiry_minutes"`
	Reasoning      string `json:"reasoning"`
	RemainingLimit *int   `json:"remaining_limit,omitempty"`
}

// Input is one user-selected chart image.
type Input struct {
	Name string
	MIME string
	Data []byte
}

// DefaultQuotaMarkers lists the substrings of known quota-exhausted and
// unknown-user messages from the analyzer service. Matching is treated as
// configuration, not contract; override via ANALYZER_QUOTA_MARKERS.
func DefaultQuotaMarkers() []string {
	return []string{
		"лимит исчерпан",
		"limit reached",
		"пользователь не найден",
		"user not found",
	}
}

// Classifier decides whether a failure message warrants prominent
// (native host alert) surfacing instead of inline display.
type Classifier struct {
	markers []string
}

func NewClassifier(markers []string) *Classifier {
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			lowered = append(lowered, m)
		}
	}
	return &Classifier{markers: lowered}
}

// Prominent reports whether msg matches a quota/identity marker.
func (c *Classifier) Prominent(msg string) bool {
	lowered := strings.ToLower(msg)
	for _, m := range c.markers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}
