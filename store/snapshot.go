package store

import (
	"github.com/aaronp/kerigo/codec"
	"github.com/aaronp/kerigo/event"
)

// SnapshotVersion is the version tag every Snapshot carries.
const SnapshotVersion = 1

// Snapshot is the deterministic dump produced by dumpState and consumed
// by loadState (spec.md sections 4.5, 6).
type Snapshot struct {
	Version   int            `json:"version"`
	CreatedAt string         `json:"createdAt"`
	Digest    string         `json:"digest"`
	Stores    SnapshotStores `json:"stores"`
}

// SnapshotStores mirrors the five namespaces the store API persists.
type SnapshotStores struct {
	Aliases     map[string]string     `json:"aliases"`
	KelEvents   map[string]event.Event `json:"kelEvents"`
	KelCesr     map[string]EnvelopeRecord `json:"kelCesr"`
	KelMetadata map[string]Chain      `json:"kelMetadata"`
	Vault       map[string]VaultView  `json:"vault"`
}

// EnvelopeRecord is the persisted shape of an envelope: the event plus its
// canonical qb64 bytes and signatures, matching kel:cesr entries.
type EnvelopeRecord struct {
	EventCesr  string              `json:"eventCesr"`
	Signatures []SnapshotSignature `json:"signatures"`
}

// SnapshotSignature mirrors envelope.Signature in a snapshot-friendly shape.
type SnapshotSignature struct {
	KeyIndex      int    `json:"keyIndex"`
	Qb64Sig       string `json:"qb64Sig"`
	SignerSetKind string `json:"signerSetKind"`
	SignerSetSn   int    `json:"signerSetSn,omitempty"`
	SignerSetAID  string `json:"signerSetAid,omitempty"`
}

// VaultView is the vault entry exposed by a snapshot: public keys always,
// secret seeds only when the dump was requested with includeSecrets.
type VaultView struct {
	CurrentPub          string `json:"currentPub"`
	CurrentTransferable bool   `json:"currentTransferable"`
	CurrentSeedB64      string `json:"currentSeedB64,omitempty"`
	NextPub             string `json:"nextPub"`
	NextTransferable    bool   `json:"nextTransferable"`
	NextSeedB64         string `json:"nextSeedB64,omitempty"`
}

// canonicalMap renders SnapshotStores as the nested map[string]interface{}
// shape codec.Canonicalize accepts, so the embedded digest is computed the
// same way event SAIDs are (spec.md section 6: "Blake3-256 over the
// canonical bytes of stores").
func (s SnapshotStores) canonicalMap() map[string]interface{} {
	aliases := map[string]interface{}{}
	for k, v := range s.Aliases {
		aliases[k] = v
	}

	kelEvents := map[string]interface{}{}
	for k, v := range s.KelEvents {
		kelEvents[k] = v.ToMap()
	}

	kelCesr := map[string]interface{}{}
	for k, v := range s.KelCesr {
		sigs := make([]interface{}, len(v.Signatures))
		for i, sig := range v.Signatures {
			m := map[string]interface{}{
				"keyIndex":      sig.KeyIndex,
				"qb64Sig":       sig.Qb64Sig,
				"signerSetKind": sig.SignerSetKind,
			}
			if sig.SignerSetKind == "witness" {
				m["signerSetAid"] = sig.SignerSetAID
			} else {
				m["signerSetSn"] = sig.SignerSetSn
			}
			sigs[i] = m
		}
		kelCesr[k] = map[string]interface{}{
			"eventCesr":  v.EventCesr,
			"signatures": sigs,
		}
	}

	kelMeta := map[string]interface{}{}
	for k, v := range s.KelMetadata {
		kelMeta[k] = map[string]interface{}{
			"aid":             v.AID,
			"eventSaids":      stringSlice(v.EventSaids),
			"latestEventSaid": v.LatestEventSaid,
			"sequence":        v.Sequence,
		}
	}

	vault := map[string]interface{}{}
	for k, v := range s.Vault {
		vm := map[string]interface{}{
			"currentPub":          v.CurrentPub,
			"currentTransferable": v.CurrentTransferable,
			"nextPub":             v.NextPub,
			"nextTransferable":    v.NextTransferable,
		}
		if v.CurrentSeedB64 != "" {
			vm["currentSeedB64"] = v.CurrentSeedB64
		}
		if v.NextSeedB64 != "" {
			vm["nextSeedB64"] = v.NextSeedB64
		}
		vault[k] = vm
	}

	return map[string]interface{}{
		"aliases":     aliases,
		"kelEvents":   kelEvents,
		"kelCesr":     kelCesr,
		"kelMetadata": kelMeta,
		"vault":       vault,
	}
}

func stringSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// computeSnapshotDigest hashes the canonical bytes of stores (excluding
// digest and createdAt, per spec.md section 6).
func computeSnapshotDigest(stores SnapshotStores) (string, error) {
	b, err := codec.Canonicalize(stores.canonicalMap())
	if err != nil {
		return "", err
	}
	return codec.ComputeSAID(b), nil
}
