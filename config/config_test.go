package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, cfg.PanID)
	require.Equal(t, "", cfg.NetworkName)
	require.EqualValues(t, 30000, cfg.BaseReachableMs)
	require.Equal(t, 64, cfg.NeighborTableSize)
	require.False(t, cfg.LogJSON)
}

func TestLoadAppliesFlags(t *testing.T) {
	cfg, err := Load([]string{
		"--pan-id=4660",
		"--network-name=wisun-test",
		"--eui64=02aabbccddeeff00",
		"--base-reachable-ms=5000",
		"--neighbor-table-size=16",
		"--metrics-addr=127.0.0.1:9100",
		"--store-path=/tmp/wsrouterd.db",
		"--log-json",
	})
	require.NoError(t, err)
	require.EqualValues(t, 4660, cfg.PanID)
	require.Equal(t, "wisun-test", cfg.NetworkName)
	require.Equal(t, "02aabbccddeeff00", cfg.EUI64Hex)
	require.EqualValues(t, 5000, cfg.BaseReachableMs)
	require.Equal(t, 16, cfg.NeighborTableSize)
	require.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	require.Equal(t, "/tmp/wsrouterd.db", cfg.StorePath)
	require.True(t, cfg.LogJSON)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--does-not-exist"})
	require.Error(t, err)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("WSROUTERD_NETWORK_NAME", "from-env")
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.NetworkName)
}
