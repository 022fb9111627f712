package protocol

// ServiceName discriminates the two Git Smart HTTP services this engine
// drives. The set is closed — spec.md §9 asks for a tagged union here,
// not a trait-object-style open interface.
type ServiceName int

const (
	// UploadPackService serves git fetch/clone.
	UploadPackService ServiceName = iota
	// ReceivePackService serves git push.
	ReceivePackService
)

// String returns the Git-native service name, as used in the
// "service=" query parameter and the "# service=..." advertisement
// line.
func (s ServiceName) String() string {
	switch s {
	case UploadPackService:
		return "git-upload-pack"
	case ReceivePackService:
		return "git-receive-pack"
	default:
		return "unknown"
	}
}

// ParseServiceName maps the HTTP-visible service name back to a
// ServiceName, reporting ok=false for anything else (e.g.
// git-upload-archive, which this engine does not implement).
func ParseServiceName(s string) (ServiceName, bool) {
	switch s {
	case "git-upload-pack":
		return UploadPackService, true
	case "git-receive-pack":
		return ReceivePackService, true
	default:
		return 0, false
	}
}

// Capabilities returns the fixed capability set this engine advertises
// for the service.
func (s ServiceName) Capabilities() CapabilitySet {
	switch s {
	case UploadPackService:
		return UploadPackCapabilities
	case ReceivePackService:
		return ReceivePackCapabilities
	default:
		return CapabilitySet{}
	}
}
