// Package store implements the KEL store API (spec.md section 4.5): the
// account lifecycle operations (createAccount, rotateKeys, anchor,
// delegation) layered over the AliasRepo, KelRepo and Vault ports and the
// single KVStore backing them, plus deterministic
// snapshot dump/load.
package store

import "errors"

var (
	// ErrAliasExists indicates createAccount was called with an alias
	// already present in the alias map.
	ErrAliasExists = errors.New("store: alias already exists")

	// ErrAccountNotFound indicates no account exists for a given AID.
	ErrAccountNotFound = errors.New("store: account not found")

	// ErrUnknownAID indicates an operation referenced an AID with no chain.
	ErrUnknownAID = errors.New("store: unknown AID")

	// ErrKeysetMissing indicates the vault has no keyset for an AID.
	ErrKeysetMissing = errors.New("store: keyset missing")

	// ErrEmptyChain indicates a read operation required at least one event
	// on the chain but found none.
	ErrEmptyChain = errors.New("store: chain is empty")

	// ErrInvalidKeySpec indicates a KeySpec carried no usable key material.
	ErrInvalidKeySpec = errors.New("store: invalid key spec")

	// ErrSnapshotDigestMismatch indicates loadState's recomputed digest did
	// not match the snapshot's embedded digest.
	ErrSnapshotDigestMismatch = errors.New("store: snapshot digest mismatch")

	// ErrSecretsNotAllowed indicates loadState received a snapshot with
	// embedded secrets but allowSecrets was false.
	ErrSecretsNotAllowed = errors.New("store: snapshot carries secrets but allowSecrets is false")

	// ErrDelegationNotAnchored indicates a delegated event was read before
	// its anchoring parent ixn was observed.
	ErrDelegationNotAnchored = errors.New("store: delegated event has no anchoring parent ixn yet")
)
