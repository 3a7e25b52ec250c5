package store

import (
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wisun-fan/wsrouterd/neighbor"
	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
)

func TestSnapshotRestoreRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neighbors.db")

	s, err := Open(path)
	require.NoError(t, err)

	nce := neighbor.NewCache(nil, 30000, 64)
	a := mustAddr("2001:db8::1")
	_, err = nce.Register(a, addr.EUI64{0x02, 0xaa}, 3600)
	require.NoError(t, err)

	require.NoError(t, s.Snapshot(nce))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	restored := neighbor.NewCache(nil, 30000, 64)
	require.NoError(t, s2.Restore(restored, mono.Now()))

	e, ok := restored.Lookup(a)
	require.True(t, ok)
	require.Equal(t, addr.EUI64{0x02, 0xaa}, e.LLAddr)
	require.True(t, e.HaveLL)
	require.EqualValues(t, 3600, e.RegistrationLifetime)
}

func TestRestoreSkipsExpiredEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neighbors.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	nce := neighbor.NewCache(nil, 30000, 64)
	a := mustAddr("2001:db8::2")
	_, err = nce.Register(a, addr.EUI64{0x02, 0xbb}, 60)
	require.NoError(t, err)

	require.NoError(t, s.Snapshot(nce))

	restored := neighbor.NewCache(nil, 30000, 64)
	farFuture := mono.Now().Add(24 * time.Hour) // well past any registration lifetime
	require.NoError(t, s.Restore(restored, farFuture))

	_, ok := restored.Lookup(a)
	require.False(t, ok, "expired entry should not be restored")
}

func TestSnapshotReplacesPriorContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neighbors.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	nce := neighbor.NewCache(nil, 30000, 64)
	a1 := mustAddr("2001:db8::1")
	_, err = nce.Register(a1, addr.EUI64{0x01}, 3600)
	require.NoError(t, err)
	require.NoError(t, s.Snapshot(nce))

	nce2 := neighbor.NewCache(nil, 30000, 64)
	a2 := mustAddr("2001:db8::2")
	_, err = nce2.Register(a2, addr.EUI64{0x02}, 3600)
	require.NoError(t, err)
	require.NoError(t, s.Snapshot(nce2))

	restored := neighbor.NewCache(nil, 30000, 64)
	require.NoError(t, s.Restore(restored, mono.Now()))

	_, ok := restored.Lookup(a1)
	require.False(t, ok, "a1 should not survive a later snapshot that excludes it")
	_, ok = restored.Lookup(a2)
	require.True(t, ok)
}

func mustAddr(s string) netip.Addr { return netip.MustParseAddr(s) }
