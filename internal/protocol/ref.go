package protocol

// Ref is a reference tuple (prefix, name, oid), per spec.md §3. Prefix
// is one of "refs/heads/", "refs/tags/", or empty for HEAD.
type Ref struct {
	Prefix string
	Name   string
	OID    OID
}

// FullName returns the advertised name: prefix concatenated with name.
func (r Ref) FullName() string {
	return r.Prefix + r.Name
}

const (
	// HeadsPrefix is the ref namespace for branches.
	HeadsPrefix = "refs/heads/"
	// TagsPrefix is the ref namespace for tags.
	TagsPrefix = "refs/tags/"
)
