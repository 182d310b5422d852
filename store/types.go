package store

import (
	"encoding/json"

	"github.com/aaronp/kerigo/codec"
	"github.com/aaronp/kerigo/event"
	"github.com/aaronp/kerigo/keys"
)

// KeySpecKind selects how a KeySpec resolves to a Keypair.
type KeySpecKind string

const (
	KeySpecNumber   KeySpecKind = "number"
	KeySpecMnemonic KeySpecKind = "mnemonic"
	KeySpecExplicit KeySpecKind = "explicit"
)

// KeySpec is a tagged union describing where a keypair comes from: a
// deterministic numeric seed (tests/demos), a BIP-39 mnemonic, or an
// already-derived Keypair supplied by the caller (e.g. an external
// signer's public half plus an opaque secret handle).
type KeySpec struct {
	Kind         KeySpecKind
	Number       int
	Mnemonic     string
	Keypair      *keys.Keypair
	Transferable bool
}

// NumberKeySpec builds a deterministic numeric KeySpec.
func NumberKeySpec(n int, transferable bool) KeySpec {
	return KeySpec{Kind: KeySpecNumber, Number: n, Transferable: transferable}
}

// MnemonicKeySpec builds a mnemonic-derived KeySpec.
func MnemonicKeySpec(mnemonic string, transferable bool) KeySpec {
	return KeySpec{Kind: KeySpecMnemonic, Mnemonic: mnemonic, Transferable: transferable}
}

// ExplicitKeySpec wraps an already-derived Keypair.
func ExplicitKeySpec(kp *keys.Keypair) KeySpec {
	return KeySpec{Kind: KeySpecExplicit, Keypair: kp, Transferable: kp.Transferable}
}

func resolveKeySpec(spec KeySpec) (*keys.Keypair, error) {
	switch spec.Kind {
	case KeySpecNumber:
		return keys.KeypairFromNumber(spec.Number, spec.Transferable)
	case KeySpecMnemonic:
		return keys.KeypairFromMnemonic(spec.Mnemonic, spec.Transferable)
	case KeySpecExplicit:
		if spec.Keypair == nil {
			return nil, ErrInvalidKeySpec
		}
		return spec.Keypair, nil
	default:
		return nil, ErrInvalidKeySpec
	}
}

// KeySet is one side (current or next) of a vault entry: the public qb64
// encoding plus the secret seed needed to sign or reveal it. Storing the
// raw seed here is the reference in-memory "secret handle"; a production
// vault would instead keep an indirection to an external signer. The seed
// always round-trips through the vault's own JSON encoding (internal
// storage); whether a snapshot exposes it externally is a separate,
// caller-controlled decision (see snapshot.go).
type KeySet struct {
	PubQb64      string  `json:"pubQb64"`
	Seed         [32]byte `json:"-"`
	Transferable bool    `json:"transferable"`
}

type keySetJSON struct {
	PubQb64      string `json:"pubQb64"`
	SeedB64      string `json:"seedB64"`
	Transferable bool   `json:"transferable"`
}

func (k KeySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(keySetJSON{
		PubQb64:      k.PubQb64,
		SeedB64:      codec.ToQb64(k.Seed[:]),
		Transferable: k.Transferable,
	})
}

func (k *KeySet) UnmarshalJSON(data []byte) error {
	var j keySetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	k.PubQb64 = j.PubQb64
	k.Transferable = j.Transferable
	if j.SeedB64 != "" {
		raw, err := codec.FromQb64(j.SeedB64)
		if err != nil {
			return err
		}
		copy(k.Seed[:], raw)
	}
	return nil
}

// VaultEntry holds an AID's current and next keysets.
type VaultEntry struct {
	Current KeySet `json:"current"`
	Next    KeySet `json:"next"`
}

// Chain is the per-AID append-only metadata record: the ordered list of
// event SAIDs and the cached latest sequence, the authoritative source of
// "which events exist" (spec.md section 4.5, atomicity note).
type Chain struct {
	AID             string   `json:"aid"`
	EventSaids      []string `json:"eventSaids"`
	LatestEventSaid string   `json:"latestEventSaid"`
	Sequence        int      `json:"sequence"`
}

// Account is the public summary returned by createAccount/rotateKeys/getAccount.
type Account struct {
	AID         string       `json:"aid"`
	Alias       string       `json:"alias"`
	Sequence    int          `json:"sequence"`
	LatestEvent *event.Event `json:"latestEvent"`
}

// Seal references a child establishment event from the parent's
// anchoring ixn (spec.md section 4.5, delegation contract).
type Seal struct {
	I string `json:"i"`
	S string `json:"s"`
	D string `json:"d"`
}

// ParentAnchorRequest is returned by createChildAccount/rotateChild; the
// caller passes it to anchorDelegation/rotateChild's parent-side call.
type ParentAnchorRequest struct {
	ParentAid     string `json:"parentAid"`
	ChildAid      string `json:"childAid"`
	ChildEventSaid string `json:"childEventSaid"`
	ChildEventSeq int    `json:"childEventSeq"`
	Seal          Seal   `json:"seal"`
}
