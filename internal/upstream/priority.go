package upstream

// Priority is the client-declared HTTP/2 priority for a stream: who it is
// exclusively or non-exclusively dependent on, and its relative weight.
// This core stores the current value only; it never rebalances a
// dependency tree or reorders scheduling based on it.
type Priority struct {
	StreamDependency uint32
	Weight           uint8 // 0..255, representing weight 1..256
	Exclusive        bool
}

// DefaultPriority is used for streams that never received a PRIORITY
// frame or PRIORITY section of HEADERS (weight 16, no dependency, RFC 7540
// §5.3.5 default).
var DefaultPriority = Priority{StreamDependency: 0, Weight: 15, Exclusive: false}
