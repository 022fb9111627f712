package protocol

import "errors"

// Error kinds from spec.md §7, mapped onto Go sentinel errors and two
// payload-carrying types (OIDError, defined in oid.go, and
// UnpackFailedError below).
var (
	// ErrRepoNotFound maps to HTTP 404.
	ErrRepoNotFound = errors.New("protocol: repository not found")
	// ErrUnauthenticated maps to HTTP 401 with an auth challenge.
	ErrUnauthenticated = errors.New("protocol: unauthenticated")
	// ErrUnauthorized maps to HTTP 401 (or 403) without necessarily
	// offering a fresh challenge.
	ErrUnauthorized = errors.New("protocol: unauthorized")
	// ErrUnexpectedEOF is surfaced when a service's input stream ends
	// before a required terminator (flush, done) is seen.
	ErrUnexpectedEOF = errors.New("protocol: unexpected end of input")
	// ErrBadCommandLine is returned when a receive-pack command line
	// does not parse as "<old> <new> <ref>".
	ErrBadCommandLine = errors.New("protocol: malformed ref update command")
	// ErrNotOurRef is returned when a client's want names an object the
	// agent does not have; surfaced as an ERR pkt-line per spec.md §7.
	ErrNotOurRef = errors.New("protocol: upload-pack: not our ref")
)

// UnpackFailedError wraps the reason a receive-pack packfile failed to
// unpack; it is reported as "unpack <reason>" rather than as an HTTP
// error, since by the time it occurs the 200 response has already
// started (spec.md §7).
type UnpackFailedError struct {
	Reason string
}

func (e *UnpackFailedError) Error() string {
	return "receive-pack: unpack failed: " + e.Reason
}
