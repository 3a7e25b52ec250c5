// Package config loads wsrouterd's startup configuration from flags,
// an optional config file and the environment, the way
// firestige-Otus's internal/config package layers spf13/viper over a
// bound spf13/pflag flag set.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is every knob wsrouterd's entrypoint needs to construct the
// core: PAN/network identity, this node's EUI-64, §4.2's
// reachable-time base and the neighbor table size; everything else is
// ambient plumbing. RPL Trickle parameters are not configured here;
// they come from the preferred parent's DIO Configuration option.
type Config struct {
	PanID       uint16
	NetworkName string
	EUI64Hex    string

	BaseReachableMs   int64
	NeighborTableSize int

	MetricsAddr string
	StorePath   string

	LogJSON bool
}

// Load parses flags against args, layers an optional config file
// (YAML/TOML/JSON, detected by extension) found at --config over the
// flag defaults, and applies WSROUTERD_-prefixed environment
// overrides. Flags passed explicitly on the command line win over the
// config file, which wins over built-in defaults — viper's normal
// precedence order.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("wsrouterd", pflag.ContinueOnError)

	configPath := fs.String("config", "", "path to an optional YAML/TOML/JSON config file")
	fs.Uint16("pan-id", 0, "Wi-SUN PAN ID")
	fs.String("network-name", "", "Wi-SUN network name")
	fs.String("eui64", "", "this node's EUI-64, as 16 hex characters")
	fs.Int64("base-reachable-ms", 30000, "base reachable time in milliseconds (spec §4.2)")
	fs.Int("neighbor-table-size", 64, "maximum neighbor cache entries before eviction")
	fs.String("metrics-addr", "", "address to serve Prometheus metrics on, empty disables")
	fs.String("store-path", "", "bbolt file to snapshot the neighbor cache into, empty disables")
	fs.Bool("log-json", false, "emit structured JSON logs instead of plain text")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("WSROUTERD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", *configPath, err)
		}
	}

	return &Config{
		PanID:             uint16(v.GetUint32("pan-id")),
		NetworkName:       v.GetString("network-name"),
		EUI64Hex:          v.GetString("eui64"),
		BaseReachableMs:   v.GetInt64("base-reachable-ms"),
		NeighborTableSize: v.GetInt("neighbor-table-size"),
		MetricsAddr:       v.GetString("metrics-addr"),
		StorePath:         v.GetString("store-path"),
		LogJSON:           v.GetBool("log-json"),
	}, nil
}
