// Package store implements optional neighbor-cache persistence (spec
// §6: "A well-behaved implementation MAY snapshot the neighbor cache
// at shutdown for faster reattachment"), backed by go.etcd.io/bbolt —
// the only embedded-KV dependency anywhere in the retrieved corpus —
// rather than a bespoke file format.
package store

import (
	"encoding/json"
	"net/netip"

	"go.etcd.io/bbolt"

	"github.com/wisun-fan/wsrouterd/neighbor"
	"github.com/wisun-fan/wsrouterd/tstime/mono"
	"github.com/wisun-fan/wsrouterd/wsnet/addr"
)

var neighborsBucket = []byte("neighbors")

// Store wraps a single bbolt database file holding the neighbor-cache
// snapshot. It is entirely optional: nothing in the core blocks on
// its presence or absence (spec §7's "all state is soft").
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(neighborsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// snapshotEntry is the on-disk shape of a neighbor.Entry: mono.Time
// fields marshal as wall-clock time (see tstime/mono.Time.MarshalJSON)
// so a deadline remains meaningful after a process restart resets the
// monotonic epoch.
type snapshotEntry struct {
	Addr                 netip.Addr  `json:"addr"`
	LLAddr               addr.EUI64  `json:"ll_addr"`
	HaveLL               bool        `json:"have_ll"`
	State                neighbor.State `json:"state"`
	ReachableUntil       mono.Time   `json:"reachable_until"`
	RegistrationLifetime uint16      `json:"registration_lifetime"`
	RegistrationOwner    bool        `json:"registration_owner"`
	IsRouter             bool        `json:"is_router"`
}

// Snapshot writes every entry in c to the database, keyed by its
// string address form, replacing any prior snapshot.
func (s *Store) Snapshot(c *neighbor.Cache) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(neighborsBucket)

		// Clear prior contents so removed entries don't linger.
		cur := b.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		var snapErr error
		c.Each(func(e *neighbor.Entry) {
			if snapErr != nil {
				return
			}
			se := snapshotEntry{
				Addr:                 e.Addr,
				LLAddr:               e.LLAddr,
				HaveLL:               e.HaveLL,
				State:                e.State,
				ReachableUntil:       e.ReachableUntil,
				RegistrationLifetime: e.RegistrationLifetime,
				RegistrationOwner:    e.RegistrationOwner,
				IsRouter:             e.IsRouter,
			}
			data, err := json.Marshal(se)
			if err != nil {
				snapErr = err
				return
			}
			snapErr = b.Put([]byte(e.Addr.String()), data)
		})
		return snapErr
	})
}

// Restore loads a prior snapshot into c, skipping any entry whose
// ReachableUntil is already before now, the time of the restore
// (a stale entry is worth nothing after a restart; it is simply
// re-probed from scratch like any unknown neighbor).
func (s *Store) Restore(c *neighbor.Cache, now mono.Time) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(neighborsBucket)
		return b.ForEach(func(k, v []byte) error {
			var se snapshotEntry
			if err := json.Unmarshal(v, &se); err != nil {
				return err
			}
			if now.After(se.ReachableUntil) {
				return nil
			}
			c.Restore(&neighbor.Entry{
				Addr:                 se.Addr,
				LLAddr:               se.LLAddr,
				HaveLL:               se.HaveLL,
				State:                se.State,
				ReachableUntil:       se.ReachableUntil,
				RegistrationLifetime: se.RegistrationLifetime,
				RegistrationOwner:    se.RegistrationOwner,
				IsRouter:             se.IsRouter,
			})
			return nil
		})
	})
}
