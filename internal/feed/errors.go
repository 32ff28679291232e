package feed

import "fmt"

// InvalidInputError reports a malformed or disallowed URL supplied by the
// caller. User-correctable; never retried.
type InvalidInputError struct {
	Input string
	Err   error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %q: %v", e.Input, e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

// FetchError reports a network or HTTP failure while retrieving a page or
// feed. Transient; the caller decides whether to re-invoke the action.
type FetchError struct {
	URL        string
	StatusCode int // zero when the transport itself failed
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a response body that is not valid HTML or feed content.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
