package node

// Names holds the display names a node reports about itself in nodeinfo
// packets. Either field may be empty; DisplayName falls back long name →
// short name → hex id.
type Names struct {
	Short string
	Long  string
}

// merge overlays non-empty fields of other onto n.
func (n Names) merge(other Names) Names {
	if other.Short != "" {
		n.Short = other.Short
	}
	if other.Long != "" {
		n.Long = other.Long
	}
	return n
}
