package store

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/aaronp/kerigo/envelope"
	"github.com/aaronp/kerigo/event"
)

// MemoryKV is an in-memory KVStore, the reference backing store the
// Non-goals carve out "storage adapter backends" around — this is the
// minimal implementation the ports need to be testable at all.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV constructs an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryKV) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *MemoryKV) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *MemoryKV) ListPrefix(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// namespace key prefixes (spec.md section 6, "storage key layout").
const (
	nsAliasMapping = "alias:kel:mapping"
	nsEventPrefix  = "kel:events:"
	nsCesrPrefix   = "kel:cesr:"
	nsMetaPrefix   = "kel:meta:chain:"
	nsVaultPrefix  = "vault:keys:"
)

// kvAliasRepo implements AliasRepo over a single JSON-encoded bidirectional
// map stored at nsAliasMapping.
type kvAliasRepo struct {
	kv KVStore
	mu sync.Mutex
}

type aliasMapping struct {
	AliasToAid map[string]string `json:"aliasToAid"`
	AidToAlias map[string]string `json:"aidToAlias"`
}

func newKvAliasRepo(kv KVStore) *kvAliasRepo {
	return &kvAliasRepo{kv: kv}
}

func (r *kvAliasRepo) load() aliasMapping {
	raw, ok := r.kv.Get(nsAliasMapping)
	if !ok {
		return aliasMapping{AliasToAid: map[string]string{}, AidToAlias: map[string]string{}}
	}
	var m aliasMapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return aliasMapping{AliasToAid: map[string]string{}, AidToAlias: map[string]string{}}
	}
	if m.AliasToAid == nil {
		m.AliasToAid = map[string]string{}
	}
	if m.AidToAlias == nil {
		m.AidToAlias = map[string]string{}
	}
	return m
}

func (r *kvAliasRepo) save(m aliasMapping) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	r.kv.Set(nsAliasMapping, raw)
	return nil
}

func (r *kvAliasRepo) Get(alias string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.load()
	aid, ok := m.AliasToAid[alias]
	return aid, ok
}

func (r *kvAliasRepo) Set(alias, aid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.load()
	if existing, ok := m.AliasToAid[alias]; ok && existing != aid {
		return ErrAliasExists
	}
	m.AliasToAid[alias] = aid
	m.AidToAlias[aid] = alias
	return r.save(m)
}

func (r *kvAliasRepo) Reverse(aid string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.load()
	alias, ok := m.AidToAlias[aid]
	return alias, ok
}

// kvKelRepo implements KelRepo over namespaced event/envelope/chain keys.
type kvKelRepo struct {
	kv KVStore
}

func newKvKelRepo(kv KVStore) *kvKelRepo {
	return &kvKelRepo{kv: kv}
}

func (r *kvKelRepo) GetEvent(said string) (*event.Event, bool) {
	raw, ok := r.kv.Get(nsEventPrefix + said)
	if !ok {
		return nil, false
	}
	var e event.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return &e, true
}

func (r *kvKelRepo) PutEvent(e *event.Event) error {
	key := nsEventPrefix + e.D
	if _, exists := r.kv.Get(key); exists {
		return nil // idempotent by SAID
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	r.kv.Set(key, raw)
	return nil
}

func (r *kvKelRepo) GetEnvelope(said string) (*envelope.Envelope, bool) {
	raw, ok := r.kv.Get(nsCesrPrefix + said)
	if !ok {
		return nil, false
	}
	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	return &env, true
}

func (r *kvKelRepo) PutEnvelope(env *envelope.Envelope) error {
	key := nsCesrPrefix + env.Event.D
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	r.kv.Set(key, raw)
	return nil
}

func (r *kvKelRepo) GetChain(aid string) (*Chain, bool) {
	raw, ok := r.kv.Get(nsMetaPrefix + aid)
	if !ok {
		return nil, false
	}
	var c Chain
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false
	}
	return &c, true
}

func (r *kvKelRepo) PutChain(c *Chain) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	r.kv.Set(nsMetaPrefix+c.AID, raw)
	return nil
}

// kvVault implements Vault over namespaced vault entries.
type kvVault struct {
	kv KVStore
}

func newKvVault(kv KVStore) *kvVault {
	return &kvVault{kv: kv}
}

func (v *kvVault) GetKeyset(aid string) (*VaultEntry, bool) {
	raw, ok := v.kv.Get(nsVaultPrefix + aid)
	if !ok {
		return nil, false
	}
	var e VaultEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return &e, true
}

func (v *kvVault) SetKeyset(aid string, entry *VaultEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	v.kv.Set(nsVaultPrefix+aid, raw)
	return nil
}
