package docker

import (
	"fmt"

	"github.com/docker/go-connections/nat"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/portmap"
)

// buildPortTables expands a set of host:container port mappings, including
// ranges and split by transport protocol, into Docker's per-port
// exposed/bound tables. Grounded on the docker/go-connections/nat helpers
// lazydocker links against for its own port formatting
// (pkg/commands/container_list_item.go).
func buildPortTables(byProto map[portmap.Protocol][]portmap.Mapping) (nat.PortSet, nat.PortMap) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}

	for proto, mappings := range byProto {
		for _, m := range mappings {
			host := m.HostRange()
			ctr := m.ContainerRange()
			for offset := 0; offset < host.Len(); offset++ {
				hostPort := host.Start + uint16(offset)
				ctrPort := ctr.Start + uint16(offset)

				port, err := nat.NewPort(string(proto), fmt.Sprintf("%d", ctrPort))
				if err != nil {
					continue
				}
				exposed[port] = struct{}{}
				bindings[port] = append(bindings[port], nat.PortBinding{HostPort: fmt.Sprintf("%d", hostPort)})
			}
		}
	}
	return exposed, bindings
}
