package h2stream

// Priority carries the dependency/weight/exclusive triple an HTTP/2 PRIORITY
// frame or HEADERS-with-priority conveys. This core accepts and stores
// priority without deriving any scheduling decision from it (priority-tree
// scheduling is out of scope); storing the last-seen triple per stream is
// enough for a caller that wants to log or expose it.
type Priority struct {
	StreamDependency uint32
	Weight           uint8
	Exclusive        bool
}

// DefaultPriority is the priority RFC 7540 §5.3.5 assigns a stream that
// never received an explicit PRIORITY frame: depends on stream 0, weight 16.
func DefaultPriority() Priority {
	return Priority{StreamDependency: 0, Weight: 16, Exclusive: false}
}

// SetPriority records dependency/weight/exclusive from a PRIORITY frame or a
// HEADERS frame's priority fields, resolving a self-dependency to 0 per
// RFC 7540 §5.3.1.
func (s *Stream) SetPriority(dependency uint32, weight uint8, exclusive bool) {
	if dependency == s.ID {
		dependency = 0
	}
	s.Priority = Priority{StreamDependency: dependency, Weight: weight, Exclusive: exclusive}
}
