package receivepack

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

func frameLine(t *testing.T, s string) []byte {
	b, err := pktline.EncodeString(s)
	if err != nil {
		t.Fatalf("EncodeString: %v", err)
	}
	return b
}

func TestReceivePackCreateRef(t *testing.T) {
	a := memagent.New()
	newID := mustOID(t, strings.Repeat("c", 40))

	var in bytes.Buffer
	in.Write(frameLine(t, strings.Repeat("0", 40)+" "+newID.String()+" refs/heads/topic\x00report-status"))
	in.Write(pktline.Flush())
	in.Write([]byte("PACK\x00\x00\x00\x02\x00\x00\x00\x00"))

	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, &in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "unpack ok") {
		t.Fatalf("expected unpack ok, got %q", out.String())
	}
	if !strings.Contains(out.String(), "ok refs/heads/topic") {
		t.Fatalf("expected ok refs/heads/topic, got %q", out.String())
	}
	branches, _ := a.Branches()
	if len(branches) != 1 || branches[0].Name != "topic" || branches[0].OID != newID {
		t.Fatalf("branches = %+v, want one ref topic -> %s", branches, newID)
	}
}

func TestReceivePackDeleteRef(t *testing.T) {
	a := memagent.New()
	oldID := mustOID(t, strings.Repeat("d", 40))
	a.SetRef("refs/heads/old", oldID)

	var in bytes.Buffer
	in.Write(frameLine(t, oldID.String()+" "+strings.Repeat("0", 40)+" refs/heads/old\x00report-status"))
	in.Write(pktline.Flush())

	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, &in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "ok refs/heads/old") {
		t.Fatalf("expected ok refs/heads/old, got %q", out.String())
	}
	branches, _ := a.Branches()
	if len(branches) != 0 {
		t.Fatalf("expected ref deleted, got %+v", branches)
	}
}

func TestReceivePackNoCommandsNoReport(t *testing.T) {
	a := memagent.New()
	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, bytes.NewReader(pktline.Flush())); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output for zero commands, got %q", out.Bytes())
	}
	if s.State() != StateDone {
		t.Fatalf("state = %v, want StateDone", s.State())
	}
}

func TestReceivePackWithoutReportStatusSkipsReport(t *testing.T) {
	a := memagent.New()
	newID := mustOID(t, strings.Repeat("e", 40))

	var in bytes.Buffer
	in.Write(frameLine(t, strings.Repeat("0", 40)+" "+newID.String()+" refs/heads/nostatus"))
	in.Write(pktline.Flush())

	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, &in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected silent report skip, got %q", out.Bytes())
	}
	branches, _ := a.Branches()
	if len(branches) != 1 || branches[0].Name != "nostatus" {
		t.Fatalf("branches = %+v", branches)
	}
}

func TestReceivePackMismatchedOldReportsNg(t *testing.T) {
	a := memagent.New()
	wrongOld := mustOID(t, strings.Repeat("1", 40))
	newID := mustOID(t, strings.Repeat("2", 40))

	var in bytes.Buffer
	in.Write(frameLine(t, wrongOld.String()+" "+newID.String()+" refs/heads/main\x00report-status"))
	in.Write(pktline.Flush())

	s := New(a, nil)
	var out bytes.Buffer
	if err := s.Run(&out, &in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "ng refs/heads/main") {
		t.Fatalf("expected ng line, got %q", out.String())
	}
}
