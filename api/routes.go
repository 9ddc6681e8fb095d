package api

import (
	"fmt"
	"net/url"
	"strings"
)

// Route constants for the API endpoints

const (
	// Health endpoints
	PingEndpoint = "/ping" // Health check endpoint

	// Round endpoints
	RoundURLParam   = "roundId"                                   // URL parameter for round ID
	RoundsEndpoint  = "/rounds"                                   // GET: List rounds
	RoundEndpoint   = RoundsEndpoint + "/{" + RoundURLParam + "}" // GET: Get round info
	LogsEndpoint    = RoundEndpoint + "/logs"                     // GET: Audit log of a round
	ResultsEndpoint = RoundEndpoint + "/results"                  // GET: Decoded tally of an ended round

	// Proof endpoints
	CircuitURLParam = "circuit"                                           // URL parameter for circuit kind
	IndexURLParam   = "index"                                             // URL parameter for batch index
	ProofsEndpoint  = RoundEndpoint + "/proofs/{" + CircuitURLParam + "}" // GET: List proofs of a circuit
	ProofEndpoint   = ProofsEndpoint + "/{" + IndexURLParam + "}"         // GET: Get a single proof

	// Query params
	OffsetQueryParam = "offset" // First audit log record to return
	LimitQueryParam  = "limit"  // Maximum number of audit log records to return
)

// EndpointWithParam creates an endpoint URL by replacing the parameter
// placeholder with the actual value. Used to build fully qualified
// endpoint URLs.
func EndpointWithParam(path, key, param string) string {
	rawKey := fmt.Sprintf("{%s}", key)

	if strings.Contains(path, rawKey) {
		return strings.Replace(path, rawKey, url.PathEscape(param), 1)
	}

	// Fallback: add as query param
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%s=%s", path, sep, url.QueryEscape(key), url.QueryEscape(param))
}

// LogExcludedPrefixes defines URL prefixes to exclude from request logging
var LogExcludedPrefixes = []string{
	PingEndpoint,
}
