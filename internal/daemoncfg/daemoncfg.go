// Package daemoncfg loads the live daemon's YAML configuration file: listen
// ports, buffer sizes, the log directory, and the detector's mosaic-table
// selection.
package daemoncfg

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wb2osz-labs/tpx3stream/internal/streamrt"
	"github.com/wb2osz-labs/tpx3stream/internal/wire"
)

// SearchLocations is a fixed, OS-agnostic search list: the current
// directory first, then a couple of conventional install paths.
var SearchLocations = []string{
	"tpx3stream.yaml",
	"config/tpx3stream.yaml",
	"/usr/local/etc/tpx3stream.yaml",
	"/etc/tpx3stream.yaml",
}

// Config is the daemon's full runtime configuration.
type Config struct {
	DetectorHost string `yaml:"detector_host"`
	DetectorPort int    `yaml:"detector_port"`

	ClientHost string `yaml:"client_host"`
	ClientPort int    `yaml:"client_port"`

	StatusPort int `yaml:"status_port"`

	LogDir string `yaml:"log_dir"`

	Mosaic string `yaml:"mosaic"` // "eels_1x4" or "single_chip"

	ReadBufferSize      int `yaml:"read_buffer_size"`
	EventChannelCapacity int `yaml:"event_channel_capacity"`
	RecvSockBuf         int `yaml:"recv_sock_buf"`

	Debug bool `yaml:"debug"`
}

// Default returns the built-in defaults: port 8098 for the detector,
// 192.168.199.11:8088 for clients (127.0.0.1:8088 in debug), and a status
// page on 9098.
func Default() Config {
	return Config{
		DetectorHost:         "127.0.0.1",
		DetectorPort:         8098,
		ClientHost:           "192.168.199.11",
		ClientPort:           8088,
		StatusPort:           9098,
		LogDir:               ".",
		Mosaic:               "eels_1x4",
		ReadBufferSize:       streamrt.ReadBufferSize,
		EventChannelCapacity: streamrt.EventChannelCapacity,
		RecvSockBuf:          streamrt.ReadBufferSize,
	}
}

// ApplyDebug binds the client socket to the local loopback address
// instead of the production address.
func (c *Config) ApplyDebug() {
	c.Debug = true
	c.ClientHost = "127.0.0.1"
}

// MosaicTable resolves the configured mosaic name to a wire.MosaicTable.
func (c Config) MosaicTable() (wire.MosaicTable, error) {
	switch c.Mosaic {
	case "", "eels_1x4":
		return wire.EELSStrip1x4, nil
	case "single_chip":
		return wire.SingleChip, nil
	default:
		return 0, fmt.Errorf("daemoncfg: unknown mosaic %q", c.Mosaic)
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return parse(f)
}

// LoadFromSearchPath tries each of SearchLocations in order, returning
// Default() (not an error) if none exist — an optional config file is not
// fatal to the daemon's operation.
func LoadFromSearchPath() (Config, error) {
	for _, loc := range SearchLocations {
		f, err := os.Open(loc)
		if err != nil {
			continue
		}
		cfg, perr := parse(f)
		f.Close()
		if perr != nil {
			return Config{}, fmt.Errorf("daemoncfg: parsing %s: %w", loc, perr)
		}
		return cfg, nil
	}
	return Default(), nil
}

func parse(r io.Reader) (Config, error) {
	cfg := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("daemoncfg: %w", err)
	}
	return cfg, nil
}
