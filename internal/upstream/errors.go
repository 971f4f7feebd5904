package upstream

import "fmt"

// AuthError indicates authentication against the upstream API failed. It is
// terminal for the collection call: credentials will not get better by
// retrying pages.
type AuthError struct {
	Status  int
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("authentication failed: %s", msg)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// PageError indicates one page request failed. Collection logs it and moves
// on to the next page; the failed index is reported in the collect result.
type PageError struct {
	Page   int
	Status int
	Cause  error
}

func (e *PageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("page %d failed: %v", e.Page, e.Cause)
	}
	return fmt.Sprintf("page %d failed with status %d", e.Page, e.Status)
}

func (e *PageError) Unwrap() error {
	return e.Cause
}
