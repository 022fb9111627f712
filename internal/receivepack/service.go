// Package receivepack implements the receive-pack service state
// machine (spec.md §4.4, C4): ref-update command parsing, packfile
// ingestion, atomic ref application, and report-status emission.
// Grounded on the teacher's protocol.ReceivePack (protocol/
// receive-pack.go), generalized onto agent.Agent.
package receivepack

import (
	"io"
	"time"

	"github.com/anndream/gitgud/internal/agent"
	"github.com/anndream/gitgud/internal/pktline"
	"github.com/anndream/gitgud/internal/protocol"
)

// State enumerates the receive-pack states, in the fixed order
// spec.md §4.4 gives: disco -> commands -> buffer -> report -> done.
type State int

const (
	StateDisco State = iota
	StateCommands
	StateBuffer
	StateReport
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDisco:
		return "disco"
	case StateCommands:
		return "commands"
	case StateBuffer:
		return "buffer"
	case StateReport:
		return "report"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Service is a single-owner, single-threaded receive-pack instance.
type Service struct {
	agent    agent.Agent
	observer protocol.Observer

	state State
	cmds  []agent.Command
	caps  protocol.CapabilitySet
}

// New returns a Service ready to drive a over one request.
func New(a agent.Agent, observer protocol.Observer) *Service {
	if observer == nil {
		observer = protocol.NoopObserver{}
	}
	return &Service{agent: a, observer: observer, state: StateDisco}
}

// State returns the machine's current state.
func (s *Service) State() State { return s.state }

func (s *Service) transition(next State, start time.Time) {
	prev := s.state
	s.state = next
	s.observer.OnTransition(protocol.ReceivePackService, prev.String(), next.String(), time.Since(start))
}

// Run drives the full disco -> commands -> buffer -> report -> done
// sequence against r (the client's request body: commands followed by
// a packfile) and w (the response body).
func (s *Service) Run(w io.Writer, r io.Reader) error {
	start := time.Now()
	s.transition(StateCommands, start)

	dec := pktline.NewDecoder(r)
	empty, err := s.stepCommands(dec)
	if err != nil {
		return err
	}
	if empty {
		s.transition(StateDone, start)
		return nil
	}
	s.transition(StateBuffer, start)

	packBytes, err := io.ReadAll(dec.Remainder())
	if err != nil {
		return err
	}

	report, err := s.agent.ApplyUpdates(s.cmds, packBytes)
	if err != nil {
		return err
	}
	s.transition(StateReport, start)

	if s.caps.Has("report-status") {
		s.writeReport(w, report)
	}

	s.transition(StateDone, start)
	return nil
}

// stepCommands parses "<old> <new> <ref>" lines until a flush,
// recording the client's capability list off the first line's
// NUL-separated trailer (spec.md §4.4).
func (s *Service) stepCommands(dec *pktline.Decoder) (empty bool, err error) {
	s.caps = make(protocol.CapabilitySet)
	first := true
	for {
		tok, err := dec.Next()
		if err == io.EOF {
			return len(s.cmds) == 0, nil
		}
		if err != nil {
			return false, err
		}
		if tok.Kind == pktline.KindFlush {
			return len(s.cmds) == 0, nil
		}
		if tok.Kind != pktline.KindData {
			return false, protocol.ErrBadCommandLine
		}
		cmd, caps, err := parseCommandLine(tok.Text)
		if err != nil {
			return false, err
		}
		s.cmds = append(s.cmds, cmd)
		if first {
			if caps != "" {
				s.caps = protocol.ParseCapabilities(caps).Intersect(protocol.ReceivePackService.Capabilities())
			}
			first = false
		}
	}
}

// parseCommandLine splits "<old> <new> <ref>[\x00<caps>]" into a
// Command and the trailing capability string, if any.
func parseCommandLine(line string) (agent.Command, string, error) {
	nulIdx := -1
	for i := 0; i < len(line); i++ {
		if line[i] == 0 {
			nulIdx = i
			break
		}
	}
	caps := ""
	if nulIdx >= 0 {
		caps = line[nulIdx+1:]
		line = line[:nulIdx]
	}

	fields := splitFields(line)
	if len(fields) != 3 {
		return agent.Command{}, "", protocol.ErrBadCommandLine
	}
	oldID, err := protocol.ParseOID(fields[0])
	if err != nil {
		return agent.Command{}, "", err
	}
	newID, err := protocol.ParseOID(fields[1])
	if err != nil {
		return agent.Command{}, "", err
	}
	return agent.Command{Old: oldID, New: newID, Name: fields[2]}, caps, nil
}

func splitFields(s string) []string {
	var fields []string
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ' ' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			fields = append(fields, s[start:i])
			start = -1
		}
	}
	return fields
}

// writeReport emits the report-status lines spec.md §4.4 defines:
// unpack status, then one ok/ng line per command in input order, then
// a flush.
func (s *Service) writeReport(w io.Writer, report agent.UpdateReport) {
	pw := pktline.NewWriter(w)
	if report.UnpackErr == nil {
		pw.WriteLine("unpack ok")
	} else {
		pw.WriteLine("unpack " + report.UnpackErr.Error())
	}
	for _, res := range report.Results {
		if res.OK {
			pw.WriteLine("ok " + res.Name)
		} else {
			pw.WriteLine("ng " + res.Name + " " + res.Reason)
		}
	}
	pw.Flush()
}
