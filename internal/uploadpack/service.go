// Package uploadpack implements the upload-pack service state machine
// (spec.md §4.3, C3): want/have negotiation followed by packfile
// emission. Ground truth for the negotiation shapes comes from the
// teacher's protocol.UploadPack (protocol/upload-pack.go); the ACK/NAK
// modes and packfile construction are generalized from it onto the
// agent.Agent interface instead of the teacher's own object/packfile
// packages, per spec.md §1's choice to treat the object database as an
// external collaborator.
package uploadpack

import (
	"io"
	"time"

	"github.com/anndream/gitgud/internal/agent"
	"github.com/anndream/gitgud/internal/pktline"
	"github.com/anndream/gitgud/internal/protocol"
)

// State enumerates the upload-pack state machine's states, in the
// order spec.md §4.3 fixes: disco -> wants -> haves -> done. The
// ordinal never decreases (spec.md §3 invariant).
type State int

const (
	StateDisco State = iota
	StateWants
	StateHaves
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDisco:
		return "disco"
	case StateWants:
		return "wants"
	case StateHaves:
		return "haves"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Service is a single-owner, single-threaded upload-pack instance
// (spec.md §3). Create one per HTTP request with New.
type Service struct {
	agent    agent.Agent
	observer protocol.Observer

	state State

	wants     []protocol.OID
	shallow   []protocol.OID
	caps      protocol.CapabilitySet
	seenWants map[protocol.OID]struct{}
}

// New returns a Service ready to drive a over one request.
func New(a agent.Agent, observer protocol.Observer) *Service {
	if observer == nil {
		observer = protocol.NoopObserver{}
	}
	return &Service{
		agent:     a,
		observer:  observer,
		state:     StateDisco,
		seenWants: make(map[protocol.OID]struct{}),
	}
}

// State returns the machine's current state.
func (s *Service) State() State { return s.state }

func (s *Service) transition(next State) {
	prev := s.state
	s.state = next
	s.observer.OnTransition(protocol.UploadPackService, prev.String(), next.String(), 0)
}

func (s *Service) timedTransition(next State, start time.Time) {
	prev := s.state
	s.state = next
	s.observer.OnTransition(protocol.UploadPackService, prev.String(), next.String(), time.Since(start))
}

// Run drives the full disco -> wants -> haves -> done sequence against
// r (the client's request body) and w (the response body), per
// spec.md §4.3. It returns a non-nil error for malformed or truncated
// input and for agent or write failures during have negotiation and
// pack building; a NotOurRef condition is reported on the wire as an ERR pkt-line and
// Run returns nil (the HTTP status stays 200, per spec.md §7).
func (s *Service) Run(w io.Writer, r io.Reader) error {
	start := time.Now()
	if err := s.stepDisco(w); err != nil {
		return err
	}
	s.timedTransition(StateWants, start)

	dec := pktline.NewDecoder(r)
	empty, err := s.stepWants(dec)
	if err != nil {
		return err
	}
	if empty {
		s.transition(StateDone)
		return nil
	}
	s.transition(StateHaves)

	pw := pktline.NewWriter(w)
	if err := s.checkWants(); err != nil {
		return s.writeErrAndStop(pw, err)
	}

	matched, reachedDone, err := s.stepHaves(pw, dec)
	if err != nil {
		return err
	}
	if !reachedDone {
		// The client ended this round with a flush and no done: it
		// will resend a larger have-list in a later request. Quit
		// early without a packfile, matching the teacher's own
		// negotiate() behavior for this case.
		s.transition(StateDone)
		return nil
	}

	if err := s.stepPack(w, matched); err != nil {
		return err
	}
	s.transition(StateDone)
	return nil
}

// stepDisco writes nothing to w. Run only ever drives a POST body, and
// advertisement only happens via the GET /info/refs route, so Run
// treats the disco state as a no-op transition; advertisement
// generation lives in protocol.BuildAdvertisement, called directly by
// the transport layer.
func (s *Service) stepDisco(w io.Writer) error {
	_ = w
	return nil
}

// stepWants consumes want/shallow tokens until a flush. It returns
// empty=true if no want lines were seen before the flush, per
// spec.md §4.3 ("client disconnect is legal").
func (s *Service) stepWants(dec *pktline.Decoder) (empty bool, err error) {
	s.caps = make(protocol.CapabilitySet)
	first := true
	for {
		tok, err := dec.Next()
		if err == io.EOF {
			return len(s.wants) == 0, nil
		}
		if err != nil {
			return false, err
		}
		switch tok.Kind {
		case pktline.KindFlush:
			return len(s.wants) == 0, nil
		case pktline.KindWant:
			id, err := protocol.ParseOID(tok.OID)
			if err != nil {
				return false, err
			}
			if first {
				s.caps = protocol.ParseCapabilities(tok.Rest).Intersect(protocol.UploadPackService.Capabilities())
				first = false
			}
			if _, dup := s.seenWants[id]; !dup {
				s.seenWants[id] = struct{}{}
				s.wants = append(s.wants, id)
			}
		case pktline.KindShallow:
			id, err := protocol.ParseOID(tok.OID)
			if err != nil {
				return false, err
			}
			s.shallow = append(s.shallow, id)
		default:
			return false, protocol.ErrBadCommandLine
		}
	}
}

// checkWants verifies every requested want is present in the object
// database, returning protocol.ErrNotOurRef if not (spec.md §4.3).
func (s *Service) checkWants() error {
	for _, id := range s.wants {
		ok, err := s.agent.ObjectExists(id)
		if err != nil {
			return err
		}
		if !ok {
			return protocol.ErrNotOurRef
		}
	}
	return nil
}

func (s *Service) writeErrAndStop(pw *pktline.Writer, cause error) error {
	pw.WriteLine("ERR " + cause.Error())
	s.transition(StateDone)
	return nil
}

// stepHaves runs the have negotiation loop (spec.md §4.3): consume
// tokens until either done or a flush marker. It returns the matched
// haves to hide from the pack walk, and reachedDone=true only when the
// round ended on a done marker — a round-ending flush with no done
// means the client will resend a larger have-list in a later request,
// so Run must not build a packfile for it.
func (s *Service) stepHaves(pw *pktline.Writer, dec *pktline.Decoder) (matched []protocol.OID, reachedDone bool, err error) {
	multiAck := s.caps.Has("multi_ack")
	multiAckDetailed := s.caps.Has("multi_ack_detailed")

	var last protocol.OID
	sawAny := false

	for {
		tok, err := dec.Next()
		if err == io.EOF {
			return nil, false, protocol.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, false, err
		}

		switch tok.Kind {
		case pktline.KindFlush:
			if !sawAny || multiAck || multiAckDetailed {
				pw.WriteLine("NAK")
			}
			return matched, false, nil
		case pktline.KindDone:
			switch {
			case !sawAny:
				pw.WriteLine("NAK")
			case multiAckDetailed:
				pw.WriteLine("ACK " + last.String() + " ready")
			default:
				pw.WriteLine("ACK " + last.String())
			}
			return matched, true, nil
		case pktline.KindHave:
			id, err := protocol.ParseOID(tok.OID)
			if err != nil {
				return nil, false, err
			}
			ok, err := s.agent.ObjectExists(id)
			if err != nil {
				return nil, false, err
			}
			if ok {
				sawAny = true
				last = id
				matched = append(matched, id)
				switch {
				case multiAckDetailed:
					pw.WriteLine("ACK " + id.String() + " common")
				case multiAck:
					pw.WriteLine("ACK " + id.String() + " continue")
				default:
					// Baseline mode: a single ACK as soon as any have
					// matches, then straight to the packfile.
					pw.WriteLine("ACK " + id.String())
					return matched, true, nil
				}
			}
		default:
			return nil, false, protocol.ErrBadCommandLine
		}
	}
}

// stepPack builds and streams the packfile covering every want not
// reachable from a matched have, per spec.md §4.3's closure rule.
func (s *Service) stepPack(w io.Writer, matched []protocol.OID) error {
	if len(s.wants) == 0 {
		return nil
	}
	walk, err := s.agent.Revwalk(s.wants, matched)
	if err != nil {
		return err
	}
	pack, err := s.agent.BuildPack(walk)
	if err != nil {
		return err
	}
	_, err = w.Write(pack)
	return err
}
