package proxy

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return l.WithField("test", true)
}

func TestOperationReloadsOnceWhenSomethingChanged(t *testing.T) {
	reg := NewRegistry(40000, 40010, nil)
	op := NewOperation(context.Background(), reg, testLog())

	require.NoError(t, op.AddInstanceReverseProxyConfig("app", "i1", "10.0.0.2", []int{8080}))
	require.NoError(t, op.Close())

	assert.Equal(t, 1, reg.Reloads())
}

func TestOperationDoesNotReloadWhenNothingChanged(t *testing.T) {
	reg := NewRegistry(40000, 40010, nil)
	op := NewOperation(context.Background(), reg, testLog())

	require.NoError(t, op.DeleteReverseProxyConfig("app", "ghost"))
	require.NoError(t, op.Close())

	assert.Equal(t, 0, reg.Reloads())
}

func TestOperationClosesAtMostOnce(t *testing.T) {
	reg := NewRegistry(40000, 40010, nil)
	op := NewOperation(context.Background(), reg, testLog())

	require.NoError(t, op.AddInstanceReverseProxyConfig("app", "i1", "10.0.0.2", []int{8080}))
	require.NoError(t, op.Close())
	require.NoError(t, op.Close())

	assert.Equal(t, 1, reg.Reloads())
}

func TestEditorRedirectAllocatesFreePort(t *testing.T) {
	reg := NewRegistry(40000, 40001, nil)
	op := NewOperation(context.Background(), reg, testLog())

	port, err := op.AddInstanceEditorRedirectToFreePort("app", "i1", "10.0.0.2", 1234)
	require.NoError(t, err)
	assert.Equal(t, 40000, port)

	port2, err := op.AddInstanceEditorRedirectToFreePort("app", "i2", "10.0.0.3", 1234)
	require.NoError(t, err)
	assert.Equal(t, 40001, port2)

	_, err = op.AddInstanceEditorRedirectToFreePort("app", "i3", "10.0.0.4", 1234)
	assert.Error(t, err, "range is exhausted")
}

func TestDeleteServerProxyConfigsReportsPartialChange(t *testing.T) {
	reg := NewRegistry(40000, 40010, nil)
	ctx := context.Background()
	_, err := reg.AddInstanceReverseProxyConfig(ctx, "app", "i1", "10.0.0.2", []int{8080})
	require.NoError(t, err)

	changed, err := reg.DeleteServerProxyConfigs(ctx, "app", "i1", []int{8080, 9999})
	require.NoError(t, err)
	assert.True(t, changed, "at least one of the two ports existed")
}
