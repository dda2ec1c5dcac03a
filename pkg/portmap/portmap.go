// Package portmap implements the port-mapping algebra from spec.md §2/§3:
// single and range host-to-container port mappings, overlap/equality
// predicates, normalization, and string (de)serialization compatible with
// docker/go-connections' "host:container" notation. Grounded on the
// original Rust implementation at
// original_source/flecs-core/src/jeweler/gem/manifest/single/port.rs.
package portmap

import (
	"fmt"
	"strconv"
	"strings"
)

// Protocol is the transport a mapping applies to.
type Protocol string

const (
	TCP  Protocol = "tcp"
	UDP  Protocol = "udp"
	SCTP Protocol = "sctp"
)

// Range is an inclusive, non-empty port range.
type Range struct {
	Start uint16
	End   uint16
}

// NewRange validates start <= end.
func NewRange(start, end uint16) (Range, error) {
	if start > end {
		return Range{}, fmt.Errorf("port range start %d must not be greater than end %d", start, end)
	}
	return Range{Start: start, End: end}, nil
}

// Len is the number of ports the range spans.
func (r Range) Len() int { return int(r.End) - int(r.Start) + 1 }

// Contains reports whether port lies within the range.
func (r Range) Contains(port uint16) bool { return port >= r.Start && port <= r.End }

// Overlaps reports whether the two ranges share any port.
func (r Range) Overlaps(other Range) bool {
	return r.Start <= other.End && other.Start <= r.End
}

func (r Range) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

func parseRange(s string) (Range, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Range{}, fmt.Errorf("expected two values separated by '-', got %d parts in %q", len(parts), s)
	}
	start, err := parsePort(parts[0])
	if err != nil {
		return Range{}, err
	}
	end, err := parsePort(parts[1])
	if err != nil {
		return Range{}, err
	}
	return NewRange(start, end)
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(v), nil
}

// Mapping is either a single host:container port pair or a pair of
// equal-width ranges. The zero value is not a valid Mapping; construct via
// NewSingle/NewRangeMapping/Parse.
type Mapping struct {
	single   bool
	hostPort uint16
	ctrPort  uint16
	from     Range
	to       Range
}

// NewSingle builds a single-port mapping.
func NewSingle(hostPort, containerPort uint16) Mapping {
	return Mapping{single: true, hostPort: hostPort, ctrPort: containerPort}
}

// NewRangeMapping builds a range-to-range mapping; from and to must have
// equal width.
func NewRangeMapping(from, to Range) (Mapping, error) {
	if from.Len() != to.Len() {
		return Mapping{}, fmt.Errorf("only port ranges of equal size can be mapped: 'from' contains %d ports while 'to' contains %d", from.Len(), to.Len())
	}
	return Mapping{single: false, from: from, to: to}, nil
}

// IsRange reports whether m is a range mapping.
func (m Mapping) IsRange() bool { return !m.single }

// HostRange returns the host-side range a mapping occupies, collapsing a
// single mapping to a one-wide range.
func (m Mapping) HostRange() Range {
	if m.single {
		return Range{Start: m.hostPort, End: m.hostPort}
	}
	return m.from
}

// ContainerRange returns the container-side range a mapping occupies,
// collapsing a single mapping to a one-wide range.
func (m Mapping) ContainerRange() Range {
	if m.single {
		return Range{Start: m.ctrPort, End: m.ctrPort}
	}
	return m.to
}

// String renders "host:container" or "from-range:to-range".
func (m Mapping) String() string {
	if m.single {
		return fmt.Sprintf("%d:%d", m.hostPort, m.ctrPort)
	}
	return fmt.Sprintf("%s:%s", m.from, m.to)
}

// Parse parses a mapping from "host[:container]" or "from-from:to-to" form,
// matching the original's FromStr impl exactly, including the single-value
// shorthand where host and container ports are equal.
func Parse(s string) (Mapping, error) {
	parts := strings.Split(s, ":")
	var fromStr, toStr string
	switch len(parts) {
	case 1:
		fromStr, toStr = parts[0], parts[0]
	case 2:
		fromStr, toStr = parts[0], parts[1]
	default:
		return Mapping{}, fmt.Errorf("expected two port ranges separated by ':', received %d elements separated by ':'", len(parts))
	}

	if strings.Contains(fromStr, "-") {
		from, err := parseRange(fromStr)
		if err != nil {
			return Mapping{}, err
		}
		to, err := parseRange(toStr)
		if err != nil {
			return Mapping{}, err
		}
		return NewRangeMapping(from, to)
	}

	host, err := parsePort(fromStr)
	if err != nil {
		return Mapping{}, err
	}
	ctr, err := parsePort(toStr)
	if err != nil {
		return Mapping{}, err
	}
	return NewSingle(host, ctr), nil
}

// Normalize collapses a width-1 range mapping down to a Single, matching the
// original's normalize().
func (m Mapping) Normalize() Mapping {
	if !m.single && m.from.Len() == 1 {
		return NewSingle(m.from.Start, m.to.Start)
	}
	return m
}

// HostPortsOverlap reports whether m and other occupy any of the same host ports.
func (m Mapping) HostPortsOverlap(other Mapping) bool {
	return m.HostRange().Overlaps(other.HostRange())
}

// HostPortsEqual reports whether m and other occupy exactly the same host ports.
func (m Mapping) HostPortsEqual(other Mapping) bool {
	a, b := m.HostRange(), other.HostRange()
	return a == b
}

// ContainsHostPort reports whether port lies within m's host range.
func (m Mapping) ContainsHostPort(port uint16) bool {
	return m.HostRange().Contains(port)
}
