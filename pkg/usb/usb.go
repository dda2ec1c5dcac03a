// Package usb reads the live kernel view of attached USB devices so the
// core can resolve a configured USB port path to its current bus/device
// numbers (spec.md §3 "USB device bindings", §4.5 "USB devices"). Grounded
// on original_source/flecs-core/src/relic/device/usb (UsbDevice{pid, vid,
// vendor, device} and the UsbDeviceReader trait, referenced from
// original_source/flecs-core/src/fsm/server_impl/.../devices/usb/mod.rs).
// Reading from sysfs is side-effect free (spec.md §5 "Shared-resource
// policy").
package usb

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Device is one attached USB device as the kernel currently reports it.
type Device struct {
	Port   string
	Bus    int
	Device int
	VID    uint16
	PID    uint16
	Vendor string
	Name   string
}

// Reader resolves a USB port path (e.g. "usb12") to the device currently
// attached there, if any. Side-effect free: it only reads sysfs.
type Reader interface {
	Read() (map[string]Device, error)
}

// SysfsReader reads /sys/bus/usb/devices, the conventional Linux location,
// the way the original's UsbDeviceReader implementation does.
type SysfsReader struct {
	Root string // defaults to "/sys/bus/usb/devices"
}

// NewSysfsReader builds a reader rooted at the conventional sysfs path.
func NewSysfsReader() *SysfsReader {
	return &SysfsReader{Root: "/sys/bus/usb/devices"}
}

// Read enumerates every device directory under Root and resolves its
// port, bus/device numbers, and vendor/product identity.
func (r *SysfsReader) Read() (map[string]Device, error) {
	root := r.Root
	if root == "" {
		root = "/sys/bus/usb/devices"
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Device{}, nil
		}
		return nil, err
	}

	out := make(map[string]Device)
	for _, entry := range entries {
		name := entry.Name()
		// Interface directories ("1-2:1.0") are not devices; only plain
		// port paths ("1-2", "1-2.3") carry the bus/device files we need.
		if strings.Contains(name, ":") {
			continue
		}
		dev, ok := r.readDevice(filepath.Join(root, name), name)
		if !ok {
			continue
		}
		out[name] = dev
	}
	return out, nil
}

func (r *SysfsReader) readDevice(dir, port string) (Device, bool) {
	busNum, ok := readInt(filepath.Join(dir, "busnum"))
	if !ok {
		return Device{}, false
	}
	devNum, ok := readInt(filepath.Join(dir, "devnum"))
	if !ok {
		return Device{}, false
	}

	vid, _ := readHex(filepath.Join(dir, "idVendor"))
	pid, _ := readHex(filepath.Join(dir, "idProduct"))
	vendor := readString(filepath.Join(dir, "manufacturer"))
	name := readString(filepath.Join(dir, "product"))

	return Device{
		Port:   port,
		Bus:    busNum,
		Device: devNum,
		VID:    vid,
		PID:    pid,
		Vendor: vendor,
		Name:   name,
	}, true
}

func readInt(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return v, true
}

func readHex(path string) (uint16, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

func readString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
