package wire

import "fmt"

// ParseError reports a response body that does not match the endpoint's
// contract.
type ParseError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s response: %s: %v", e.Endpoint, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s response: %s", e.Endpoint, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(endpoint, reason string, err error) *ParseError {
	return &ParseError{Endpoint: endpoint, Reason: reason, Err: err}
}
