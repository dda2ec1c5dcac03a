package ipnet

import (
	"fmt"
	"math/bits"
	"net"
)

// V6Network is an IPv6 network expressed as (address, prefix length).
type V6Network struct {
	Address net.IP // 16-byte form
	Prefix  uint8
}

// NewV6Network builds a V6Network without requiring the host bits to be
// zero (the original allows constructing with any address and masks it on
// demand via NewFromAddressAndSubnetMask).
func NewV6Network(address net.IP, prefix uint8) V6Network {
	return V6Network{Address: address.To16(), Prefix: prefix}
}

// NewV6NetworkFromMask masks address by subnetMask and derives the prefix
// length from the mask's popcount, matching the original's
// new_from_address_and_subnet_mask.
func NewV6NetworkFromMask(address, subnetMask net.IP) V6Network {
	a16 := address.To16()
	m16 := subnetMask.To16()
	masked := make(net.IP, 16)
	prefix := 0
	for i := 0; i < 16; i++ {
		masked[i] = a16[i] & m16[i]
		prefix += bits.OnesCount8(m16[i])
	}
	return V6Network{Address: masked, Prefix: uint8(prefix)}
}

// ParseV6Network parses "addr/prefix".
func ParseV6Network(s string) (V6Network, error) {
	addr, size, err := splitCIDR(s)
	if err != nil {
		return V6Network{}, err
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return V6Network{}, fmt.Errorf("invalid ipv6 address %q", addr)
	}
	return NewV6Network(ip, size), nil
}

func (n V6Network) String() string {
	return fmt.Sprintf("%s/%d", n.Address.String(), n.Prefix)
}
