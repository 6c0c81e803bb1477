package daemoncfg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

func TestDefaultMatchesSpecPorts(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8098, cfg.DetectorPort)
	assert.Equal(t, 8088, cfg.ClientPort)
	assert.Equal(t, "192.168.199.11", cfg.ClientHost)
	assert.Equal(t, 9098, cfg.StatusPort)
}

func TestApplyDebugOverridesClientHost(t *testing.T) {
	cfg := Default()
	cfg.ApplyDebug()
	assert.Equal(t, "127.0.0.1", cfg.ClientHost)
	assert.True(t, cfg.Debug)
}

func TestParseOverridesDefaults(t *testing.T) {
	yamlDoc := `
detector_port: 9000
client_host: "10.0.0.5"
mosaic: single_chip
`
	cfg, err := parse(strings.NewReader(yamlDoc))
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.DetectorPort)
	assert.Equal(t, "10.0.0.5", cfg.ClientHost)
	// untouched fields keep their defaults
	assert.Equal(t, 8088, cfg.ClientPort)

	mt, err := cfg.MosaicTable()
	require.NoError(t, err)
	assert.Equal(t, wire.SingleChip, mt)
}

func TestMosaicTableRejectsUnknownName(t *testing.T) {
	cfg := Default()
	cfg.Mosaic = "bogus"
	_, err := cfg.MosaicTable()
	assert.Error(t, err)
}

func TestLoadFromSearchPathFallsBackToDefault(t *testing.T) {
	saved := SearchLocations
	defer func() { SearchLocations = saved }()
	SearchLocations = []string{"/nonexistent/path/tpx3stream.yaml"}

	cfg, err := LoadFromSearchPath()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
