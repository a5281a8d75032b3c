// Package apierr defines the error kinds the HTTP layer maps to status
// codes. Lower layers wrap their failures with one of these so handlers
// can classify with errors.Is instead of string matching.
package apierr

import "errors"

var (
	// ErrBadRequest marks caller mistakes (400).
	ErrBadRequest = errors.New("bad request")
	// ErrRetrieval marks upstream search backend failures (502).
	ErrRetrieval = errors.New("retrieval failed")
	// ErrStorage marks feedback store failures (500).
	ErrStorage = errors.New("storage failed")
)
