// Package agent defines the repository-agent interface (spec.md §4.6,
// C6): the typed façade the wire-protocol engine (internal/protocol,
// internal/uploadpack, internal/receivepack) consumes to reach the
// actual object database, ref store and pack builder. The engine never
// touches an object database directly — everything here is a
// collaborator contract, with concrete backings in ./gitfs (a real
// github.com/go-git/go-git/v5 repository) and ./memagent (an in-memory
// test double).
package agent

import (
	"errors"

	"github.com/anndream/gitgud/internal/protocol"
)

// Errors shared by Agent implementations.
var (
	// ErrNotFound is available for ref/object lookups that miss. Head
	// does not return it: an unresolvable HEAD is reported as
	// found=false with a nil error.
	ErrNotFound = errors.New("agent: not found")
	// ErrRefExists's message is the CommandResult.Reason ApplyUpdates
	// reports when a creation command names a ref that already exists.
	ErrRefExists = errors.New("agent: ref already exists")
	// ErrRefMismatch's message is the CommandResult.Reason ApplyUpdates
	// reports when a command's old OID does not match the ref's current
	// value.
	ErrRefMismatch = errors.New("agent: ref value mismatch")
)

// Command is a single ref-update command parsed from a receive-pack
// request (spec.md §3): a triple (old, new, name). new == ZeroOID means
// deletion; old == ZeroOID means creation.
type Command struct {
	Old  protocol.OID
	New  protocol.OID
	Name string
}

// CommandResult is the outcome of applying one Command.
type CommandResult struct {
	Name string
	OK   bool
	// Reason holds a short human-readable failure cause when OK is
	// false; it is reported verbatim as "ng <ref> <reason>".
	Reason string
}

// UpdateReport is what ApplyUpdates returns: the unpack outcome plus
// one CommandResult per input command, in input order (spec.md §4.4,
// §5 ordering guarantees).
type UpdateReport struct {
	// UnpackErr is nil if the packfile unpacked (or there was none to
	// unpack) and non-nil otherwise. It is reported as
	// "unpack ok"/"unpack <reason>".
	UnpackErr error
	Results   []CommandResult
}

// Agent is the repository-agent interface. A value is opened per HTTP
// request; implementations need not be safe for concurrent use by
// multiple goroutines (spec.md §5).
type Agent interface {
	// Head returns the ref HEAD points to. found is false if HEAD
	// cannot be resolved (e.g. unborn branch, empty repository).
	Head() (ref protocol.Ref, found bool, err error)

	// Branches returns every refs/heads/* ref, in agent-defined order.
	Branches() ([]protocol.Ref, error)

	// Tags returns every refs/tags/* ref, in agent-defined order.
	Tags() ([]protocol.Ref, error)

	// ObjectExists reports whether id is present in the object
	// database.
	ObjectExists(id protocol.OID) (bool, error)

	// Revwalk returns the closure of objects reachable from wants and
	// not reachable from haves, for handing to BuildPack.
	Revwalk(wants, haves []protocol.OID) (Walk, error)

	// BuildPack serializes walk into an opaque packfile byte stream
	// beginning with the "PACK" magic.
	BuildPack(walk Walk) ([]byte, error)

	// ApplyUpdates atomically ingests packBytes (which may be empty,
	// e.g. a delete-only push) into the object database and then
	// applies cmds in order. It MUST NOT leave any ref changed if it
	// returns an error before completing (spec.md §5 atomicity).
	ApplyUpdates(cmds []Command, packBytes []byte) (UpdateReport, error)
}

// Walk is an opaque token produced by Revwalk and consumed by
// BuildPack; it represents a computed closure of object IDs, without
// committing callers to materializing them as a slice.
type Walk interface {
	// Len reports how many objects the walk covers, for logging/
	// diagnostics; implementations may return -1 if unknown ahead of
	// encoding.
	Len() int
}
