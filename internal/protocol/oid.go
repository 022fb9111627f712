package protocol

import (
	"encoding/hex"
)

// OIDLen is the width, in bytes, of a SHA-1 Git object identifier.
const OIDLen = 20

// OID is a Git object identifier: a 20-byte SHA-1 value. Its canonical
// textual form is 40 lowercase hex characters.
type OID [OIDLen]byte

// ZeroOID is the all-zero object identifier used to mark ref creation
// and deletion on the wire.
var ZeroOID OID

// OIDError reports a malformed object identifier.
type OIDError struct {
	Text string
}

func (e *OIDError) Error() string {
	return "protocol: bad object id hex: " + e.Text
}

// ParseOID parses a full 40-character lowercase hex string. Abbreviated
// forms are rejected: the wire protocol never carries them on
// want/have/shallow/ref-update lines (spec.md §3).
func ParseOID(s string) (OID, error) {
	var id OID
	if len(s) != OIDLen*2 {
		return id, &OIDError{Text: s}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, &OIDError{Text: s}
	}
	copy(id[:], b)
	return id, nil
}

// String returns the OID as 40 lowercase hex digits.
func (id OID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero OID.
func (id OID) IsZero() bool {
	return id == ZeroOID
}

// Abbrev returns the first 8 characters of the canonical hex form, the
// display abbreviation spec.md §3 defines.
func (id OID) Abbrev() string {
	return id.String()[:8]
}
