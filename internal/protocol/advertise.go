package protocol

import (
	"bytes"

	"github.com/anndream/gitgud/internal/pktline"
)

// RefSource is the slice of the repository-agent interface (C6) the
// reference advertiser consumes. Any agent.Agent implementation
// satisfies this by virtue of its method set; protocol never imports
// the agent package, keeping the dependency one-directional.
type RefSource interface {
	Head() (Ref, bool, error)
	Branches() ([]Ref, error)
	Tags() ([]Ref, error)
}

// BuildAdvertisement produces the ordered ref-advertisement lines for
// svc (spec.md §4.2): HEAD first (if resolvable), then branches in
// agent order, then tags in agent order, terminated by a flush. If the
// repository has no HEAD, capabilities attach to the first real ref
// instead; if the repository is entirely empty, a
// "capabilities^{}" placeholder line carries them so that clients can
// still see the capability list.
func BuildAdvertisement(src RefSource, svc ServiceName) ([]byte, error) {
	branches, err := src.Branches()
	if err != nil {
		return nil, err
	}
	tags, err := src.Tags()
	if err != nil {
		return nil, err
	}
	caps := svc.Capabilities()
	var buf bytes.Buffer
	pw := pktline.NewWriter(&buf)

	head, haveHead, err := src.Head()
	if err != nil {
		return nil, err
	}

	wroteCaps := false
	if haveHead {
		if err := writeRefLine(pw, head, caps); err != nil {
			return nil, err
		}
		wroteCaps = true
	}

	all := make([]Ref, 0, len(branches)+len(tags))
	all = append(all, branches...)
	all = append(all, tags...)

	if !wroteCaps && len(all) == 0 {
		placeholder := Ref{Name: "capabilities^{}"}
		if err := writeRefLine(pw, placeholder, caps); err != nil {
			return nil, err
		}
		wroteCaps = true
	}

	for _, ref := range all {
		if !wroteCaps {
			if err := writeRefLine(pw, ref, caps); err != nil {
				return nil, err
			}
			wroteCaps = true
			continue
		}
		if err := pw.WriteLine(ref.OID.String() + " " + ref.FullName()); err != nil {
			return nil, err
		}
	}

	if err := pw.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRefLine(pw *pktline.Writer, ref Ref, caps CapabilitySet) error {
	line := ref.OID.String() + " " + ref.FullName() + "\x00" + caps.String()
	return pw.WriteLine(line)
}

// ServicePrelude writes the out-of-band "# service=<name>" line and its
// terminating flush that precedes the ref advertisement when served
// over HTTP (spec.md §4.2/§6).
func ServicePrelude(svc ServiceName) ([]byte, error) {
	var buf bytes.Buffer
	pw := pktline.NewWriter(&buf)
	if err := pw.WriteLine("# service=" + svc.String()); err != nil {
		return nil, err
	}
	if err := pw.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
