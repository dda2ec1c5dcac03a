package instance

import (
	"context"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/usb"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// USBStatus pairs a configured binding with whether the kernel currently
// sees a device at that port, and if so, whether it still matches the
// bound bus/device numbers (spec.md §4.5 "USB devices": the
// (configured, detected?) contract).
type USBStatus struct {
	Binding  vault.USBBinding
	Detected bool
	Current  usb.Device
}

// ListUSB reports every configured USB binding for instanceID alongside its
// live detection status.
func (m *Manager) ListUSB(ctx context.Context, instanceID id.InstanceID, reader usb.Reader) ([]USBStatus, error) {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeRead))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to release instance pouch after usb lookup")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return nil, flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}

	devices, err := reader.Read()
	if err != nil {
		return nil, flecserr.Because(flecserr.KindRuntimeFailure, "enumerate usb devices", err)
	}

	out := make([]USBStatus, 0, len(inst.Config.USB))
	for _, binding := range inst.Config.USB {
		dev, present := devices[binding.Port]
		out = append(out, USBStatus{
			Binding:  binding,
			Detected: present && dev.Bus == binding.Bus && dev.Device == binding.Device,
			Current:  dev,
		})
	}
	return out, nil
}

// SetUSBBinding adds or replaces the binding for a port.
func (m *Manager) SetUSBBinding(ctx context.Context, instanceID id.InstanceID, binding vault.USBBinding) error {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after usb update")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}

	replaced := false
	for i, existing := range inst.Config.USB {
		if existing.Port == binding.Port {
			inst.Config.USB[i] = binding
			replaced = true
			break
		}
	}
	if !replaced {
		inst.Config.USB = append(inst.Config.USB, binding)
	}
	g.Instances.Put(instanceID.String(), inst)
	return nil
}

// DeleteUSBBinding removes the binding for a port, if any.
func (m *Manager) DeleteUSBBinding(ctx context.Context, instanceID id.InstanceID, port string) error {
	g := m.v.Grab(vault.NewReservation().WithInstances(vault.ModeWrite))
	defer func() {
		if err := g.Close(); err != nil {
			m.log.WithError(err).Error("failed to persist instance pouch after usb update")
		}
	}()

	inst, ok := g.Instances.Get(instanceID.String())
	if !ok {
		return flecserr.Newf(flecserr.KindNotFound, "no instance %s", instanceID)
	}

	out := inst.Config.USB[:0]
	for _, existing := range inst.Config.USB {
		if existing.Port != port {
			out = append(out, existing)
		}
	}
	inst.Config.USB = out
	g.Instances.Put(instanceID.String(), inst)
	return nil
}
