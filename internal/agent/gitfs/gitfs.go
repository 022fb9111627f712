// Package gitfs implements agent.Agent on top of a real, on-disk Git
// object database using github.com/go-git/go-git/v5 and
// github.com/go-git/go-billy/v5 — the same pure-Go Git implementation
// go-gitea-gitea depends on directly (go.mod:
// github.com/go-git/go-git/v5, github.com/go-git/go-billy/v5) and
// hairyhenderson-go-fsimpl references again for its own filesystem
// layer. The revwalk and pack-building calls here mirror
// aymanbagabas-go-git's server.UploadPack (other_examples/
// aymanbagabas-go-git__uploadpack.go): revlist.Objects for the closure,
// packfile.NewEncoder for the outbound bytes.
package gitfs

import (
	"bytes"
	"io"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/format/packfile"
	"github.com/go-git/go-git/v5/plumbing/revlist"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/pkg/errors"

	"github.com/anndream/gitgud/internal/agent"
	"github.com/anndream/gitgud/internal/protocol"
)

// Agent is an agent.Agent backed by a bare on-disk repository.
type Agent struct {
	repo *git.Repository
}

// Open opens the bare repository rooted at dir, initializing one there
// if none exists yet — mirroring the push-to-create behavior
// go-gitea-gitea's httpBase handler implements for receive-pack against
// a missing repo.
func Open(dir string) (*Agent, error) {
	fs := osfs.New(dir)
	st := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())

	repo, err := git.Open(st, nil)
	if err == git.ErrRepositoryNotExists {
		repo, err = git.Init(st, nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "gitfs: open repository")
	}
	return &Agent{repo: repo}, nil
}

// Head implements agent.Agent.
func (a *Agent) Head() (protocol.Ref, bool, error) {
	ref, err := a.repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return protocol.Ref{}, false, nil
		}
		return protocol.Ref{}, false, errors.Wrap(err, "gitfs: resolve HEAD")
	}
	return protocol.Ref{Name: "HEAD", OID: hashToOID(ref.Hash())}, true, nil
}

// Branches implements agent.Agent.
func (a *Agent) Branches() ([]protocol.Ref, error) {
	iter, err := a.repo.Branches()
	if err != nil {
		return nil, errors.Wrap(err, "gitfs: list branches")
	}
	return collectRefs(iter, protocol.HeadsPrefix)
}

// Tags implements agent.Agent.
func (a *Agent) Tags() ([]protocol.Ref, error) {
	iter, err := a.repo.Tags()
	if err != nil {
		return nil, errors.Wrap(err, "gitfs: list tags")
	}
	return collectRefs(iter, protocol.TagsPrefix)
}

func collectRefs(iter storer.ReferenceIter, prefix string) ([]protocol.Ref, error) {
	var out []protocol.Ref
	err := iter.ForEach(func(ref *plumbing.Reference) error {
		name := string(ref.Name())
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			return nil
		}
		out = append(out, protocol.Ref{
			Prefix: prefix,
			Name:   name[len(prefix):],
			OID:    hashToOID(ref.Hash()),
		})
		return nil
	})
	return out, err
}

// ObjectExists implements agent.Agent.
func (a *Agent) ObjectExists(id protocol.OID) (bool, error) {
	_, err := a.repo.Storer.EncodedObject(plumbing.AnyObject, oidToHash(id))
	if err == plumbing.ErrObjectNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "gitfs: object lookup")
	}
	return true, nil
}

// gitfsWalk carries the concrete hash closure computed by revlist.
type gitfsWalk struct {
	hashes []plumbing.Hash
}

func (w gitfsWalk) Len() int { return len(w.hashes) }

// Revwalk implements agent.Agent by delegating to
// plumbing/revlist.Objects: the closure of wants, minus everything
// reachable from haves. This is the exact call
// other_examples/aymanbagabas-go-git__uploadpack.go makes.
func (a *Agent) Revwalk(wants, haves []protocol.OID) (agent.Walk, error) {
	wantHashes := oidsToHashes(wants)
	haveHashes := oidsToHashes(haves)

	ignore, err := revlist.Objects(a.repo.Storer, haveHashes, nil)
	if err != nil {
		return nil, errors.Wrap(err, "gitfs: revlist haves")
	}
	walk, err := revlist.Objects(a.repo.Storer, wantHashes, ignore)
	if err != nil {
		return nil, errors.Wrap(err, "gitfs: revlist wants")
	}
	return gitfsWalk{hashes: walk}, nil
}

// BuildPack implements agent.Agent using packfile.NewEncoder, exactly
// as aymanbagabas-go-git's server.UploadPack does.
func (a *Agent) BuildPack(w agent.Walk) ([]byte, error) {
	gw, ok := w.(gitfsWalk)
	if !ok {
		return nil, errors.New("gitfs: foreign Walk value")
	}
	var buf bytes.Buffer
	enc := packfile.NewEncoder(&buf, a.repo.Storer, false)
	if _, err := enc.Encode(gw.hashes, 10); err != nil {
		return nil, errors.Wrap(err, "gitfs: encode packfile")
	}
	return buf.Bytes(), nil
}

// ApplyUpdates implements agent.Agent: packBytes are unpacked into the
// object store first, then the ref commands are validated and applied
// one at a time, in input order. Deletions use RemoveReference,
// creations SetReference, and updates
// storer.ReferenceStorer.CheckAndSetReference, which does the
// compare-and-swap in a single call. There is no separate validation
// pass: a command that fails is reported as not OK, and the commands
// applied before it stay applied.
func (a *Agent) ApplyUpdates(cmds []agent.Command, packBytes []byte) (agent.UpdateReport, error) {
	report := agent.UpdateReport{Results: make([]agent.CommandResult, 0, len(cmds))}

	if len(packBytes) > 0 {
		if err := packfile.UpdateObjectStorage(a.repo.Storer, io.NopCloser(bytes.NewReader(packBytes))); err != nil {
			report.UnpackErr = &unpackError{err: err}
		}
	}

	for _, cmd := range cmds {
		name := plumbing.ReferenceName(cmd.Name)
		cur, lookupErr := a.repo.Storer.Reference(name)

		switch {
		case cmd.New.IsZero():
			if lookupErr != nil || cur.Hash() != oidToHash(cmd.Old) {
				report.Results = append(report.Results, agent.CommandResult{
					Name: cmd.Name, OK: false, Reason: agent.ErrRefMismatch.Error(),
				})
				continue
			}
			if err := a.repo.Storer.RemoveReference(name); err != nil {
				report.Results = append(report.Results, agent.CommandResult{Name: cmd.Name, OK: false, Reason: err.Error()})
				continue
			}
		case cmd.Old.IsZero():
			if lookupErr == nil {
				report.Results = append(report.Results, agent.CommandResult{
					Name: cmd.Name, OK: false, Reason: agent.ErrRefExists.Error(),
				})
				continue
			}
			newRef := plumbing.NewHashReference(name, oidToHash(cmd.New))
			if err := a.repo.Storer.SetReference(newRef); err != nil {
				report.Results = append(report.Results, agent.CommandResult{Name: cmd.Name, OK: false, Reason: err.Error()})
				continue
			}
		default:
			oldRef := plumbing.NewHashReference(name, oidToHash(cmd.Old))
			newRef := plumbing.NewHashReference(name, oidToHash(cmd.New))
			if err := a.repo.Storer.CheckAndSetReference(newRef, oldRef); err != nil {
				report.Results = append(report.Results, agent.CommandResult{
					Name: cmd.Name, OK: false, Reason: agent.ErrRefMismatch.Error(),
				})
				continue
			}
		}
		report.Results = append(report.Results, agent.CommandResult{Name: cmd.Name, OK: true})
	}

	return report, nil
}

type unpackError struct{ err error }

func (e *unpackError) Error() string { return e.err.Error() }

func hashToOID(h plumbing.Hash) protocol.OID {
	var id protocol.OID
	copy(id[:], h[:])
	return id
}

func oidToHash(id protocol.OID) plumbing.Hash {
	var h plumbing.Hash
	copy(h[:], id[:])
	return h
}

func oidsToHashes(ids []protocol.OID) []plumbing.Hash {
	out := make([]plumbing.Hash, len(ids))
	for i, id := range ids {
		out[i] = oidToHash(id)
	}
	return out
}
