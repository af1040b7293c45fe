package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeNotFound       = "E_NOT_FOUND"       // unknown session, object or segment
	CodeUnauthorized   = "E_UNAUTHORIZED"    // missing or mismatched identity
	CodeForbidden      = "E_FORBIDDEN"       // path escape or insufficient level

	// Upload errors
	CodeExpired           = "E_EXPIRED"            // session past its expiry
	CodeUploadIncomplete  = "E_UPLOAD_INCOMPLETE"  // finalize with missing chunks
	CodeChunkOutOfRange   = "E_CHUNK_OUT_OF_RANGE" // chunk index outside [0, total)
	CodeIntegrityMismatch = "E_INTEGRITY_MISMATCH" // assembled hash differs from the declared one

	// Stream errors
	CodeRangeNotSatisfiable = "E_RANGE_NOT_SATISFIABLE" // range start beyond the object size
)
