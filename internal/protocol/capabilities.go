package protocol

import (
	"sort"
	"strings"
)

// CapabilitySet represents a set of Git protocol capability tokens.
type CapabilitySet map[string]struct{}

// UploadPackCapabilities is the fixed set of capabilities advertised for
// upload-pack (spec.md §3): it is never negotiated per-ref.
var UploadPackCapabilities = CapabilitySet{
	"thin-pack":          {},
	"multi_ack":          {},
	"multi_ack_detailed": {},
}

// ReceivePackCapabilities is the fixed set of capabilities advertised
// for receive-pack (spec.md §3).
var ReceivePackCapabilities = CapabilitySet{
	"report-status": {},
	"delete-refs":   {},
}

// capabilityOrder fixes the rendering order spec.md §3 and §8's S1
// byte-exact scenario require: "thin-pack multi_ack multi_ack_detailed"
// for upload-pack, "report-status delete-refs" for receive-pack. Tokens
// outside this list (e.g. a client-sent capability this engine never
// advertises) are rendered afterwards, sorted, purely for determinism.
var capabilityOrder = []string{
	"thin-pack", "multi_ack", "multi_ack_detailed",
	"report-status", "delete-refs",
}

// ParseCapabilities parses a whitespace-separated capability token list.
// Tokens not present in the advertised set are recorded, not rejected;
// spec.md §4.3 requires unknown capabilities to be ignored rather than
// cause an error.
func ParseCapabilities(s string) CapabilitySet {
	c := make(CapabilitySet)
	for _, tok := range strings.Fields(s) {
		c[tok] = struct{}{}
	}
	return c
}

// Has reports whether c contains cap.
func (c CapabilitySet) Has(cap string) bool {
	_, ok := c[cap]
	return ok
}

// Intersect returns the subset of c that is also present in advertised.
// Callers use this to compute the negotiated set: clients may request
// capabilities the server never advertised, and those are silently
// dropped rather than rejected.
func (c CapabilitySet) Intersect(advertised CapabilitySet) CapabilitySet {
	out := make(CapabilitySet)
	for cap := range c {
		if advertised.Has(cap) {
			out[cap] = struct{}{}
		}
	}
	return out
}

// String renders the set as a space-separated token list in the fixed
// order capabilityOrder declares, suitable for appending after the NUL
// on the first advertised ref line.
func (c CapabilitySet) String() string {
	toks := make([]string, 0, len(c))
	seen := make(map[string]struct{}, len(c))
	for _, cap := range capabilityOrder {
		if c.Has(cap) {
			toks = append(toks, cap)
			seen[cap] = struct{}{}
		}
	}
	var rest []string
	for cap := range c {
		if _, ok := seen[cap]; !ok {
			rest = append(rest, cap)
		}
	}
	sort.Strings(rest)
	toks = append(toks, rest...)
	return strings.Join(toks, " ")
}
