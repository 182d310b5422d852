package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aaronp/kerigo/codec"
	"github.com/aaronp/kerigo/envelope"
	"github.com/aaronp/kerigo/event"
)

func seedToB64(seed [32]byte) string {
	return codec.ToQb64(seed[:])
}

func setSeedFromB64(dst *[32]byte, b64 string) error {
	raw, err := codec.FromQb64(b64)
	if err != nil {
		return err
	}
	copy(dst[:], raw)
	return nil
}

// DumpState reads every namespace directly from the backing KVStore and
// renders a deterministic Snapshot: sorted keys, signatures sorted as in
// envelope.SignEnvelope, and an embedded Blake3 digest over the canonical
// bytes of stores (spec.md section 4.5).
func (s *Store) DumpState(includeSecrets bool, timestamp string) (*Snapshot, error) {
	stores, err := s.readStores(includeSecrets)
	if err != nil {
		return nil, err
	}
	digest, err := computeSnapshotDigest(stores)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Version:   SnapshotVersion,
		CreatedAt: timestamp,
		Digest:    digest,
		Stores:    stores,
	}, nil
}

func (s *Store) readStores(includeSecrets bool) (SnapshotStores, error) {
	aliases := map[string]string{}
	if raw, ok := s.kv.Get(nsAliasMapping); ok {
		var m aliasMapping
		if err := json.Unmarshal(raw, &m); err != nil {
			return SnapshotStores{}, err
		}
		for k, v := range m.AliasToAid {
			aliases[k] = v
		}
	}

	kelEvents := map[string]event.Event{}
	for _, key := range s.kv.ListPrefix(nsEventPrefix) {
		raw, _ := s.kv.Get(key)
		var e event.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return SnapshotStores{}, err
		}
		kelEvents[strings.TrimPrefix(key, nsEventPrefix)] = e
	}

	kelCesr := map[string]EnvelopeRecord{}
	for _, key := range s.kv.ListPrefix(nsCesrPrefix) {
		raw, _ := s.kv.Get(key)
		var env envelope.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return SnapshotStores{}, err
		}
		sigs := make([]SnapshotSignature, len(env.Signatures))
		for i, sig := range env.Signatures {
			sigs[i] = SnapshotSignature{
				KeyIndex:      sig.KeyIndex,
				Qb64Sig:       sig.Qb64Sig,
				SignerSetKind: string(sig.SignerSet.Kind),
				SignerSetSn:   sig.SignerSet.Sn,
				SignerSetAID:  sig.SignerSet.AID,
			}
		}
		kelCesr[strings.TrimPrefix(key, nsCesrPrefix)] = EnvelopeRecord{EventCesr: env.EventCesr, Signatures: sigs}
	}

	kelMeta := map[string]Chain{}
	for _, key := range s.kv.ListPrefix(nsMetaPrefix) {
		raw, _ := s.kv.Get(key)
		var c Chain
		if err := json.Unmarshal(raw, &c); err != nil {
			return SnapshotStores{}, err
		}
		kelMeta[strings.TrimPrefix(key, nsMetaPrefix)] = c
	}

	vault := map[string]VaultView{}
	for _, key := range s.kv.ListPrefix(nsVaultPrefix) {
		raw, _ := s.kv.Get(key)
		var entry VaultEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return SnapshotStores{}, err
		}
		view := VaultView{
			CurrentPub:          entry.Current.PubQb64,
			CurrentTransferable: entry.Current.Transferable,
			NextPub:             entry.Next.PubQb64,
			NextTransferable:    entry.Next.Transferable,
		}
		if includeSecrets {
			view.CurrentSeedB64 = seedToB64(entry.Current.Seed)
			view.NextSeedB64 = seedToB64(entry.Next.Seed)
		}
		vault[strings.TrimPrefix(key, nsVaultPrefix)] = view
	}

	return SnapshotStores{
		Aliases:     aliases,
		KelEvents:   kelEvents,
		KelCesr:     kelCesr,
		KelMetadata: kelMeta,
		Vault:       vault,
	}, nil
}

// LoadState recomputes the snapshot's digest and rejects on mismatch, then
// (optionally truncating existing state first) writes every namespace
// back into the backing KVStore.
func (s *Store) LoadState(snap *Snapshot, allowSecrets, truncateExisting bool) error {
	digest, err := computeSnapshotDigest(snap.Stores)
	if err != nil {
		return err
	}
	if digest != snap.Digest {
		return fmt.Errorf("%w: recomputed %s, snapshot digest is %s", ErrSnapshotDigestMismatch, digest, snap.Digest)
	}

	hasSecrets := false
	for _, v := range snap.Stores.Vault {
		if v.CurrentSeedB64 != "" || v.NextSeedB64 != "" {
			hasSecrets = true
			break
		}
	}
	if hasSecrets && !allowSecrets {
		return ErrSecretsNotAllowed
	}

	if truncateExisting {
		s.truncateAll()
	}

	aliasToAid := map[string]string{}
	aidToAlias := map[string]string{}
	for alias, aid := range snap.Stores.Aliases {
		aliasToAid[alias] = aid
		aidToAlias[aid] = alias
	}
	rawAliases, err := json.Marshal(aliasMapping{AliasToAid: aliasToAid, AidToAlias: aidToAlias})
	if err != nil {
		return err
	}
	s.kv.Set(nsAliasMapping, rawAliases)

	for said, e := range snap.Stores.KelEvents {
		ev := e
		raw, err := json.Marshal(&ev)
		if err != nil {
			return err
		}
		s.kv.Set(nsEventPrefix+said, raw)
	}

	for said, rec := range snap.Stores.KelCesr {
		sigs := make([]envelope.Signature, len(rec.Signatures))
		for i, sig := range rec.Signatures {
			kind := envelope.SignerSetKind(sig.SignerSetKind)
			sigs[i] = envelope.Signature{
				KeyIndex:  sig.KeyIndex,
				Qb64Sig:   sig.Qb64Sig,
				SignerSet: envelope.SignerSet{Kind: kind, Sn: sig.SignerSetSn, AID: sig.SignerSetAID},
			}
		}
		e, ok := snap.Stores.KelEvents[said]
		if !ok {
			return fmt.Errorf("store: snapshot envelope %s has no matching event", said)
		}
		eCopy := e
		env := envelope.Envelope{Event: &eCopy, EventCesr: rec.EventCesr, Signatures: sigs}
		raw, err := json.Marshal(&env)
		if err != nil {
			return err
		}
		s.kv.Set(nsCesrPrefix+said, raw)
	}

	for aid, c := range snap.Stores.KelMetadata {
		cCopy := c
		raw, err := json.Marshal(&cCopy)
		if err != nil {
			return err
		}
		s.kv.Set(nsMetaPrefix+aid, raw)
	}

	for aid, v := range snap.Stores.Vault {
		entry := VaultEntry{
			Current: KeySet{PubQb64: v.CurrentPub, Transferable: v.CurrentTransferable},
			Next:    KeySet{PubQb64: v.NextPub, Transferable: v.NextTransferable},
		}
		if v.CurrentSeedB64 != "" {
			if err := setSeedFromB64(&entry.Current.Seed, v.CurrentSeedB64); err != nil {
				return err
			}
		}
		if v.NextSeedB64 != "" {
			if err := setSeedFromB64(&entry.Next.Seed, v.NextSeedB64); err != nil {
				return err
			}
		}
		raw, err := json.Marshal(&entry)
		if err != nil {
			return err
		}
		s.kv.Set(nsVaultPrefix+aid, raw)
	}

	return nil
}

func (s *Store) truncateAll() {
	s.kv.Delete(nsAliasMapping)
	for _, prefix := range []string{nsEventPrefix, nsCesrPrefix, nsMetaPrefix, nsVaultPrefix} {
		for _, key := range s.kv.ListPrefix(prefix) {
			s.kv.Delete(key)
		}
	}
}
