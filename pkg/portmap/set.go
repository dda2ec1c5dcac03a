package portmap

import "fmt"

// Set holds the host-port-disjoint mappings for one transport protocol on
// one instance (spec.md §3, Testable Property 2).
type Set struct {
	mappings []Mapping
}

// NewSet builds an empty set.
func NewSet() *Set { return &Set{} }

// All returns the mappings in insertion order.
func (s *Set) All() []Mapping {
	out := make([]Mapping, len(s.mappings))
	copy(out, s.mappings)
	return out
}

// Add inserts m, rejecting it if it overlaps any existing mapping's host ports.
func (s *Set) Add(m Mapping) error {
	for _, existing := range s.mappings {
		if existing.HostPortsOverlap(m) {
			return fmt.Errorf("port mapping %s overlaps existing mapping %s", m, existing)
		}
	}
	s.mappings = append(s.mappings, m)
	return nil
}

// DeleteHostPort deletes the mapping containing the given single host port.
// If that mapping is a range, the whole range is deleted (spec.md §4.5).
// Returns false ("absent") if no mapping contains the port.
func (s *Set) DeleteHostPort(port uint16) bool {
	for i, m := range s.mappings {
		if m.ContainsHostPort(port) {
			s.mappings = append(s.mappings[:i], s.mappings[i+1:]...)
			return true
		}
	}
	return false
}

// DeleteRange deletes the mapping whose host range exactly equals r and
// reports true. A range that overlaps a mapping without equalling its host
// range, including one strictly inside it, is rejected with an error; a
// mapping is never split. A range that overlaps no mapping reports false.
func (s *Set) DeleteRange(r Range) (bool, error) {
	for i, m := range s.mappings {
		hr := m.HostRange()
		if hr == r {
			s.mappings = append(s.mappings[:i], s.mappings[i+1:]...)
			return true, nil
		}
	}
	// No exact match: a range that overlaps a mapping in any other way,
	// including a sub-range of one, is rejected rather than split.
	for _, m := range s.mappings {
		if m.HostRange().Overlaps(r) {
			return false, fmt.Errorf("range %s does not equal the host range of overlapping mapping %s", r, m)
		}
	}
	return false, nil
}
