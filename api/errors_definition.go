//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// Error codes in the 40001-49999 range are the client's fault and return
// HTTP status 400 or 404.
//
// Error codes 50001-59999 are the server's fault and return HTTP status 500.
//
// NEVER change any of the current error codes, only append new errors after
// the current last 4XXXX or 5XXXX. There's no correlation between Code and
// HTTP status.
var (
	ErrResourceNotFound   = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrRoundNotFound      = Error{Code: 40002, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("round not found")}
	ErrMalformedRoundID   = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed round ID")}
	ErrMalformedParam     = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrUnknownCircuit     = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unknown circuit")}
	ErrProofNotFound      = Error{Code: 40006, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("proof not found")}
	ErrResultsNotFound    = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("results not available")}
	ErrMalformedLogsRange = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed logs range")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)
