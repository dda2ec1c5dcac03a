package ipnet

import "net"

// AdapterInfo describes one host network adapter's addresses, mirroring
// the original's NetInfo (original_source/flecs-core/src/relic/network/network_adapter.rs).
//
// The original reads raw AF_INET sockaddrs from the kernel via libc and, in
// some code paths, reinterprets the 32-bit address without swapping network
// byte order to host order (spec.md §9 Open Question (b)), and in one spot
// pushes a parsed IPv6 address onto the IPv4 address vector (Open Question
// (c)). Go's net.InterfaceAddrs performs the byte-order conversion
// internally and returns a single net.IP type regardless of family, so
// AdapterInfo routes each address to V4Addresses or V6Addresses by
// inspecting its width with net.IP.To4(), eliminating both bugs by
// construction: there is exactly one call site that decides the slice, and
// it can never see byte-order-reversed input because nothing here reads raw
// sockaddrs.
type AdapterInfo struct {
	Name        string
	MAC         string
	V4Addresses []net.IP
	V6Addresses []net.IP
	Gateway     string
}

// ReadAdapters enumerates the host's network interfaces the way the
// original's try_read_from_system does, grouping addresses by interface
// name and routing each address to the v4 or v6 slice by its actual width.
func ReadAdapters() (map[string]*AdapterInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	adapters := make(map[string]*AdapterInfo, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		info := &AdapterInfo{Name: iface.Name, MAC: iface.HardwareAddr.String()}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			routeAddress(info, ipNet.IP)
		}
		adapters[iface.Name] = info
	}
	return adapters, nil
}

// routeAddress is the single call site that decides v4 vs v6, the fix for
// Open Question (c): a v6 address can never land in V4Addresses because the
// decision is made once, here, by actual address width.
func routeAddress(info *AdapterInfo, ip net.IP) {
	if v4 := ip.To4(); v4 != nil {
		info.V4Addresses = append(info.V4Addresses, v4)
		return
	}
	info.V6Addresses = append(info.V6Addresses, ip)
}
