package platform

import "fmt"

// FetchErrorKind distinguishes connectivity failures from data-shape
// failures; the two get different user messaging and retry handling.
type FetchErrorKind string

const (
	FetchUnsupportedPlatform FetchErrorKind = "UNSUPPORTED_PLATFORM"
	FetchNetwork             FetchErrorKind = "NETWORK"
	FetchMalformedPayload    FetchErrorKind = "MALFORMED_PAYLOAD"
)

// FetchError is the typed outcome of a failed discovery call
type FetchError struct {
	Kind    FetchErrorKind
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may re-invoke the same call
func (e *FetchError) Retryable() bool {
	return e.Kind == FetchNetwork
}

// NewUnsupportedError builds the terminal classification error for a URL
// that does not belong to the supported platform
func NewUnsupportedError(url string) *FetchError {
	msg := "the URL does not belong to a supported store platform"
	if url != "" {
		msg = fmt.Sprintf("the URL %q does not belong to a supported store platform", url)
	}
	return &FetchError{Kind: FetchUnsupportedPlatform, Message: msg}
}

func networkError(msg string, err error) *FetchError {
	return &FetchError{Kind: FetchNetwork, Message: msg, Err: err}
}

func malformedError(msg string, err error) *FetchError {
	return &FetchError{Kind: FetchMalformedPayload, Message: msg, Err: err}
}
