package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
)

func TestParseConfigFileCommaSeparatedProperties(t *testing.T) {
	cf, err := ParseConfigFile("default.conf:/etc/my-app/default.conf:rw,init")
	require.NoError(t, err)
	assert.Equal(t, "default.conf", cf.HostFileName)
	assert.Equal(t, "/etc/my-app/default.conf", cf.ContainerFilePath)
	assert.False(t, cf.ReadOnly)
	assert.True(t, cf.Init)
}

func TestParseConfigFileDefaultsWithoutProperties(t *testing.T) {
	cf, err := ParseConfigFile("a.conf:/etc/a.conf")
	require.NoError(t, err)
	assert.False(t, cf.ReadOnly)
	assert.False(t, cf.Init)
}

func TestParseConfigFileAllCombinations(t *testing.T) {
	cases := map[string]struct {
		readOnly bool
		init     bool
	}{
		"ro":       {true, false},
		"rw":       {false, false},
		"ro,init":  {true, true},
		"rw,init":  {false, true},
		"no_init":  {false, false},
		"ro,no_init": {true, false},
		"rw,no_init": {false, false},
	}
	for props, want := range cases {
		cf, err := ParseConfigFile("f:/etc/f:" + props)
		require.NoError(t, err, props)
		assert.Equal(t, want.readOnly, cf.ReadOnly, props)
		assert.Equal(t, want.init, cf.Init, props)
	}
}

func TestParseConfigFileRejectsHostSeparator(t *testing.T) {
	_, err := ParseConfigFile("sub/dir.conf:/etc/a.conf")
	assert.Error(t, err)
}

func TestParseConfigFileRejectsRelativeContainerPath(t *testing.T) {
	_, err := ParseConfigFile("a.conf:etc/a.conf")
	assert.Error(t, err)
}

func TestParseLabelBareAndKeyValue(t *testing.T) {
	bare, err := ParseLabel("tech.flecs")
	require.NoError(t, err)
	assert.Nil(t, bare.Value)

	kv, err := ParseLabel("tech.flecs.version=1.2.3")
	require.NoError(t, err)
	require.NotNil(t, kv.Value)
	assert.Equal(t, "1.2.3", *kv.Value)
}

func TestEditorValidateRejectsZeroPort(t *testing.T) {
	e := Editor{Name: "web", Port: 0}
	assert.Error(t, e.Validate())
}

func TestParseSingleJSONEditorDefaultsSupportsReverseProxyTrue(t *testing.T) {
	data := []byte(`{
		"app": "tech.flecs.test",
		"version": "1.0.0",
		"image": "flecs/test",
		"editors": [{"name": "web", "port": 8080}],
		"ports": ["8001:8001", "5001-5008:6001-6008"]
	}`)
	s, err := ParseSingleJSON(data)
	require.NoError(t, err)
	require.Len(t, s.Editors, 1)
	assert.True(t, s.Editors[0].SupportsReverseProxy)
	require.Len(t, s.Ports, 2)
}

func TestParseSingleJSONEditorExplicitFalse(t *testing.T) {
	data := []byte(`{
		"app": "tech.flecs.test",
		"version": "1.0.0",
		"image": "flecs/test",
		"editors": [{"name": "web", "port": 8080, "supportsReverseProxy": false}]
	}`)
	s, err := ParseSingleJSON(data)
	require.NoError(t, err)
	assert.False(t, s.Editors[0].SupportsReverseProxy)
}

func TestParseSingleJSONConfFilesWithProperties(t *testing.T) {
	data := []byte(`{
		"app": "tech.flecs.test",
		"version": "1.0.0",
		"image": "flecs/test",
		"conffiles": ["default.conf:/etc/my-app/default.conf:rw,init"]
	}`)
	s, err := ParseSingleJSON(data)
	require.NoError(t, err)
	require.Len(t, s.ConfFiles, 1)
	assert.True(t, s.ConfFiles[0].Init)
	assert.False(t, s.ConfFiles[0].ReadOnly)
}

func TestManifestValidateRejectsEmptyImage(t *testing.T) {
	key := id.AppKey{Name: "tech.flecs.test", Version: "1.0.0"}
	m := &Manifest{
		Key:    key,
		Kind:   KindSingle,
		Single: &Single{Key: key},
	}
	assert.Error(t, m.Validate())
}

func TestConfigFileStringRoundTrip(t *testing.T) {
	cf, err := ParseConfigFile("a.conf:/etc/a.conf:ro,init")
	require.NoError(t, err)
	again, err := ParseConfigFile(cf.String())
	require.NoError(t, err)
	assert.Equal(t, cf, again)
}
