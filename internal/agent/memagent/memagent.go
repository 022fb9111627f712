// Package memagent implements an in-memory agent.Agent test double.
// It is grounded on the teacher's repository/mem package: the same
// sync.RWMutex-guarded maps for refs and HEAD, adapted to the spec's
// Agent contract. Because spec.md §1 treats the object database as an
// external collaborator and packfile internals as opaque, memagent does
// not reimplement Git objects: it stores the raw advertised refs and,
// on push, the raw packfile bytes it was handed, and a trivial object
// existence set populated by whatever the test wires in.
package memagent

import (
	"sort"
	"sync"

	"github.com/anndream/gitgud/internal/agent"
	"github.com/anndream/gitgud/internal/protocol"
)

// Agent is an in-memory repository agent, safe for use from a single
// goroutine at a time per spec.md §5 (each test opens its own handle).
type Agent struct {
	mu   sync.RWMutex
	refs map[string]protocol.OID
	head string

	// objects is the set of OIDs this agent will report as present;
	// tests populate it directly to simulate a pre-seeded object
	// database.
	objects map[protocol.OID]struct{}

	// LastPack records the most recent packfile handed to
	// ApplyUpdates, for assertions in tests.
	LastPack []byte

	// BuildPackFunc, when set, overrides the trivial built-in pack
	// builder; state-machine tests that only care about framing use
	// the default stub, which just returns a literal PACK header.
	BuildPackFunc func(w agent.Walk) ([]byte, error)
}

// New returns an empty in-memory agent with HEAD pointing at
// refs/heads/main (unborn until that ref is created).
func New() *Agent {
	return &Agent{
		refs:    make(map[string]protocol.OID),
		head:    "refs/heads/main",
		objects: make(map[protocol.OID]struct{}),
	}
}

// SetRef installs name -> id directly, bypassing ApplyUpdates's
// validation; tests use this to seed fixture state.
func (a *Agent) SetRef(name string, id protocol.OID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refs[name] = id
}

// SetHead repoints HEAD at name.
func (a *Agent) SetHead(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.head = name
}

// AddObject marks id as present in the object database.
func (a *Agent) AddObject(id protocol.OID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[id] = struct{}{}
}

// Head implements agent.Agent.
func (a *Agent) Head() (protocol.Ref, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.refs[a.head]
	if !ok {
		return protocol.Ref{}, false, nil
	}
	return protocol.Ref{Name: "HEAD", OID: id}, true, nil
}

// Branches implements agent.Agent.
func (a *Agent) Branches() ([]protocol.Ref, error) {
	return a.refsWithPrefix(protocol.HeadsPrefix), nil
}

// Tags implements agent.Agent.
func (a *Agent) Tags() ([]protocol.Ref, error) {
	return a.refsWithPrefix(protocol.TagsPrefix), nil
}

func (a *Agent) refsWithPrefix(prefix string) []protocol.Ref {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []protocol.Ref
	for name, id := range a.refs {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			out = append(out, protocol.Ref{
				Prefix: prefix,
				Name:   name[len(prefix):],
				OID:    id,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ObjectExists implements agent.Agent.
func (a *Agent) ObjectExists(id protocol.OID) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.objects[id]
	return ok, nil
}

// memWalk is the trivial agent.Walk this package produces: a plain
// slice of the wants, since memagent does not model ancestry.
type memWalk struct {
	ids []protocol.OID
}

func (w memWalk) Len() int { return len(w.ids) }

// Revwalk implements agent.Agent. It does not compute real ancestry —
// that requires a real object graph — but it does apply the hiding
// rule the state machine depends on: any want that is also a matched
// have is dropped from the walk.
func (a *Agent) Revwalk(wants, haves []protocol.OID) (agent.Walk, error) {
	hidden := make(map[protocol.OID]struct{}, len(haves))
	for _, h := range haves {
		hidden[h] = struct{}{}
	}
	var ids []protocol.OID
	for _, w := range wants {
		if _, ok := hidden[w]; !ok {
			ids = append(ids, w)
		}
	}
	return memWalk{ids: ids}, nil
}

// BuildPack implements agent.Agent. The default stub emits only the
// header of an empty packfile: the "PACK" magic, version 2, zero
// objects, and no SHA-1 trailer — enough for tests that only
// assert on the ACK/NAK framing around it to see a real "PACK" boundary
// on the wire.
func (a *Agent) BuildPack(w agent.Walk) ([]byte, error) {
	if a.BuildPackFunc != nil {
		return a.BuildPackFunc(w)
	}
	return []byte("PACK\x00\x00\x00\x02\x00\x00\x00\x00"), nil
}

// ApplyUpdates implements agent.Agent.
func (a *Agent) ApplyUpdates(cmds []agent.Command, packBytes []byte) (agent.UpdateReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.LastPack = packBytes
	report := agent.UpdateReport{
		Results: make([]agent.CommandResult, 0, len(cmds)),
	}

	// Validate every command before mutating anything, so a failure
	// partway through never leaves a partially-applied set of refs
	// (spec.md §5 atomicity).
	type plan struct {
		cmd    agent.Command
		delete bool
	}
	plans := make([]plan, 0, len(cmds))
	for _, cmd := range cmds {
		cur, exists := a.refs[cmd.Name]
		switch {
		case cmd.New.IsZero():
			if !exists || cur != cmd.Old {
				report.Results = append(report.Results, agent.CommandResult{
					Name: cmd.Name, OK: false, Reason: agent.ErrRefMismatch.Error(),
				})
				continue
			}
			plans = append(plans, plan{cmd: cmd, delete: true})
		case cmd.Old.IsZero():
			if exists {
				report.Results = append(report.Results, agent.CommandResult{
					Name: cmd.Name, OK: false, Reason: agent.ErrRefExists.Error(),
				})
				continue
			}
			plans = append(plans, plan{cmd: cmd})
		default:
			if !exists || cur != cmd.Old {
				report.Results = append(report.Results, agent.CommandResult{
					Name: cmd.Name, OK: false, Reason: agent.ErrRefMismatch.Error(),
				})
				continue
			}
			plans = append(plans, plan{cmd: cmd})
		}
	}

	for _, p := range plans {
		if p.delete {
			delete(a.refs, p.cmd.Name)
		} else {
			a.refs[p.cmd.Name] = p.cmd.New
			a.objects[p.cmd.New] = struct{}{}
		}
		report.Results = append(report.Results, agent.CommandResult{Name: p.cmd.Name, OK: true})
	}

	// Restore input order: the validation loop above appended failures
	// immediately but deferred successes to the apply loop.
	order := make(map[string]int, len(cmds))
	for i, c := range cmds {
		order[c.Name] = i
	}
	sort.SliceStable(report.Results, func(i, j int) bool {
		return order[report.Results[i].Name] < order[report.Results[j].Name]
	})

	return report, nil
}
