package store

import (
	"github.com/aaronp/kerigo/envelope"
	"github.com/aaronp/kerigo/event"
)

// AliasRepo maps human-chosen aliases to AIDs and back (spec.md section 4.5).
type AliasRepo interface {
	Get(alias string) (aid string, ok bool)
	Set(alias, aid string) error
	Reverse(aid string) (alias string, ok bool)
}

// KelRepo stores events, their signed envelopes, and per-AID chain
// metadata. PutEvent is idempotent by SAID.
type KelRepo interface {
	GetEvent(said string) (*event.Event, bool)
	PutEvent(e *event.Event) error
	GetEnvelope(said string) (*envelope.Envelope, bool)
	PutEnvelope(env *envelope.Envelope) error
	GetChain(aid string) (*Chain, bool)
	PutChain(c *Chain) error
}

// Vault stores an AID's current/next keysets.
type Vault interface {
	GetKeyset(aid string) (*VaultEntry, bool)
	SetKeyset(aid string, entry *VaultEntry) error
}

// KVStore is the single backing namespaced key-value store the reference
// AliasRepo/KelRepo/Vault implementations share (spec.md section 4.5:
// "a single backing key-value store is namespaced ... to implement all
// the above").
type KVStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
	ListPrefix(prefix string) []string
}
