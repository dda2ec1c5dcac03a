package instance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/usb"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

type fakeUSBReader struct {
	devices map[string]usb.Device
}

func (r fakeUSBReader) Read() (map[string]usb.Device, error) { return r.devices, nil }

func TestSetListAndDeleteUSBBinding(t *testing.T) {
	fx := newTestFixture(t, basicSingle())
	ctx := context.Background()
	instanceID, err := fx.mgr.Create(ctx, fx.appKey, "test-1", fx.deployID)
	require.NoError(t, err)

	require.NoError(t, fx.mgr.SetUSBBinding(ctx, instanceID, vault.USBBinding{Port: "1-2", Bus: 1, Device: 5}))

	reader := fakeUSBReader{devices: map[string]usb.Device{
		"1-2": {Port: "1-2", Bus: 1, Device: 5},
	}}
	statuses, err := fx.mgr.ListUSB(ctx, instanceID, reader)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Detected)

	require.NoError(t, fx.mgr.DeleteUSBBinding(ctx, instanceID, "1-2"))
	statuses, err = fx.mgr.ListUSB(ctx, instanceID, reader)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestListUSBReportsUndetectedWhenDeviceMoved(t *testing.T) {
	fx := newTestFixture(t, basicSingle())
	ctx := context.Background()
	instanceID, err := fx.mgr.Create(ctx, fx.appKey, "test-1", fx.deployID)
	require.NoError(t, err)

	require.NoError(t, fx.mgr.SetUSBBinding(ctx, instanceID, vault.USBBinding{Port: "1-2", Bus: 1, Device: 5}))

	reader := fakeUSBReader{devices: map[string]usb.Device{
		"1-2": {Port: "1-2", Bus: 2, Device: 9},
	}}
	statuses, err := fx.mgr.ListUSB(ctx, instanceID, reader)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Detected)
}
