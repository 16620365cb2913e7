package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ListenAddr        string   `yaml:"listen_addr"`
	StaticDir         string   `yaml:"static_dir"`
	Device            string   `yaml:"device"`
	RTLSDRDeviceIndex int      `yaml:"rtlsdr_device_index"`
	Playback          Playback `yaml:"playback"`
	Defaults          Defaults `yaml:"defaults"`
	Stream            struct {
		BlockSize int           `yaml:"block_size"`
		Pace      time.Duration `yaml:"pace"`
		Buffer    int           `yaml:"buffer"`
	} `yaml:"stream"`
	ScanBlockSize int `yaml:"scan_block_size"`
	InfluxDB      struct {
		Host         string `yaml:"host"`
		Token        string `yaml:"token"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

// Playback reads IQ from a capture file instead of hardware.
type Playback struct {
	Location string `yaml:"location"`
	Format   string `yaml:"format"`
	Loop     bool   `yaml:"loop"`
	Realtime bool   `yaml:"realtime"`
}

// Defaults are the receiver settings at startup. Frequency and sample rate
// are in Hz.
type Defaults struct {
	Frequency   int64   `yaml:"frequency"`
	SampleRate  int64   `yaml:"sample_rate"`
	Gain        *int    `yaml:"gain"`
	GainMode    string  `yaml:"gain_mode"`
	Mode        string  `yaml:"mode"`
	Bandwidth   float64 `yaml:"bandwidth"`
	NoBandwidth bool    `yaml:"no_bandwidth"`
}

func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(contents)
}

func Parse(contents []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(contents, &c); err != nil {
		return nil, fmt.Errorf("error unmarshaling yaml: %w", err)
	}
	c.SetDefaults()
	return &c, nil
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8000"
	}
	if c.StaticDir == "" {
		c.StaticDir = "static"
	}
	if c.Playback.Location != "" {
		c.Device = "file"
	}
	if c.Device == "" {
		c.Device = "rtlsdr"
	}
	if c.Playback.Format == "" {
		c.Playback.Format = "cu8"
	}

	if c.Defaults.Frequency == 0 {
		c.Defaults.Frequency = 101900000
	}
	if c.Defaults.SampleRate == 0 {
		c.Defaults.SampleRate = 2400000
	}
	if c.Defaults.Gain == nil && c.Defaults.GainMode == "" {
		gain := 28
		c.Defaults.Gain = &gain
	}
	if c.Defaults.GainMode == "" {
		c.Defaults.GainMode = "manual"
	}
	if c.Defaults.Mode == "" {
		c.Defaults.Mode = "FM"
	}
	if c.Defaults.Bandwidth == 0 && !c.Defaults.NoBandwidth {
		c.Defaults.Bandwidth = 25000
	}

	if c.Stream.BlockSize == 0 {
		c.Stream.BlockSize = 128 * 1024
	}
	if c.Stream.Pace == 0 {
		c.Stream.Pace = 20 * time.Millisecond
	}
	if c.Stream.Buffer == 0 {
		c.Stream.Buffer = 4
	}
	if c.ScanBlockSize == 0 {
		c.ScanBlockSize = 256 * 1024
	}
}
