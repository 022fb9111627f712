package uploadpack

import (
	"bytes"
	"strings"
	"testing"

	"github.com/anndream/gitgud/internal/agent/memagent"
	"github.com/anndream/gitgud/internal/pktline"
	"github.com/anndream/gitgud/internal/protocol"
)

func mustOID(t *testing.T, s string) protocol.OID {
	id, err := protocol.ParseOID(s)
	if err != nil {
		t.Fatalf("ParseOID(%q): %v", s, err)
	}
	return id
}

func frame(t *testing.T, lines ...string) []byte {
	var buf bytes.Buffer
	pw := pktline.NewWriter(&buf)
	for _, l := range lines {
		if l == "\x00FLUSH" {
			pw.Flush()
			continue
		}
		if err := pw.WriteLine(l); err != nil {
			t.Fatalf("WriteLine: %v", err)
		}
	}
	return buf.Bytes()
}

func TestUploadPackEmptyFlushOnly(t *testing.T) {
	a := memagent.New()
	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, bytes.NewReader(pktline.Flush())); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected empty response, got %q", out.Bytes())
	}
	if s.State() != StateDone {
		t.Fatalf("state = %v, want StateDone", s.State())
	}
}

func TestUploadPackSingleWantNoHaves(t *testing.T) {
	a := memagent.New()
	want := mustOID(t, strings.Repeat("a", 40))
	a.AddObject(want)

	in := frame(t, "want "+want.String()+" multi_ack", "\x00FLUSH", "done")
	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, bytes.NewReader(in)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	dec := pktline.NewDecoder(&out)
	tok, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if tok.Kind != pktline.KindData || tok.Text != "NAK" {
		t.Fatalf("first line = %+v, want NAK", tok)
	}
	tok, err = dec.Next()
	if err != nil || tok.Kind != pktline.KindPack {
		t.Fatalf("expected pack boundary, got tok=%+v err=%v", tok, err)
	}
}

func TestUploadPackNotOurRef(t *testing.T) {
	a := memagent.New()
	want := mustOID(t, strings.Repeat("c", 40))
	// not added to the agent's object set

	in := frame(t, "want "+want.String(), "\x00FLUSH", "done")
	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, bytes.NewReader(in)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "ERR") {
		t.Fatalf("expected ERR line, got %q", out.String())
	}
}

func TestUploadPackMultiAckDetailedCommonThenReady(t *testing.T) {
	a := memagent.New()
	want := mustOID(t, strings.Repeat("d", 40))
	have := mustOID(t, strings.Repeat("e", 40))
	a.AddObject(want)
	a.AddObject(have)

	in := frame(t,
		"want "+want.String()+" multi_ack_detailed",
		"\x00FLUSH",
		"have "+have.String(),
		"done",
	)
	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, bytes.NewReader(in)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "ACK "+have.String()+" common") {
		t.Fatalf("expected common ACK, got %q", out.String())
	}
	if !strings.Contains(out.String(), "ACK "+have.String()+" ready") {
		t.Fatalf("expected ready ACK, got %q", out.String())
	}
	dec := pktline.NewDecoder(strings.NewReader(out.String()))
	var sawPack bool
	for {
		tok, err := dec.Next()
		if err != nil {
			break
		}
		if tok.Kind == pktline.KindPack {
			sawPack = true
			break
		}
	}
	if !sawPack {
		t.Fatalf("expected a packfile after ready ACK, got %q", out.String())
	}
}

func TestUploadPackFlushWithoutDoneQuitsEarlyNoPack(t *testing.T) {
	a := memagent.New()
	want := mustOID(t, strings.Repeat("1", 40))
	a.AddObject(want)

	in := frame(t, "want "+want.String()+" multi_ack", "\x00FLUSH", "\x00FLUSH")
	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, bytes.NewReader(in)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(out.String(), "PACK") {
		t.Fatalf("expected no packfile for a round-ending flush without done, got %q", out.String())
	}
	if s.State() != StateDone {
		t.Fatalf("state = %v, want StateDone", s.State())
	}
}

func TestUploadPackBaselineStopsAtFirstMatch(t *testing.T) {
	a := memagent.New()
	want := mustOID(t, strings.Repeat("2", 40))
	have1 := mustOID(t, strings.Repeat("3", 40))
	have2 := mustOID(t, strings.Repeat("4", 40))
	a.AddObject(want)
	a.AddObject(have1)
	a.AddObject(have2)

	in := frame(t,
		"want "+want.String(),
		"\x00FLUSH",
		"have "+have1.String(),
		"have "+have2.String(),
		"done",
	)
	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, bytes.NewReader(in)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	body := out.String()
	firstACK := strings.Count(body, "ACK "+have1.String())
	if firstACK != 1 {
		t.Fatalf("expected exactly one ACK for the first matching have, got %d in %q", firstACK, body)
	}
	if strings.Contains(body, have2.String()) {
		t.Fatalf("expected negotiation to stop before considering the second have, got %q", body)
	}
}

func TestUploadPackDuplicateWantsDeduplicated(t *testing.T) {
	a := memagent.New()
	want := mustOID(t, strings.Repeat("f", 40))
	a.AddObject(want)

	in := frame(t, "want "+want.String(), "want "+want.String(), "\x00FLUSH", "done")
	s := New(a, nil)
	if _, err := s.stepWants(pktline.NewDecoder(bytes.NewReader(in))); err != nil {
		t.Fatalf("stepWants: %v", err)
	}
	if len(s.wants) != 1 {
		t.Fatalf("len(wants) = %d, want 1", len(s.wants))
	}
}
