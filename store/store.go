package store

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aaronp/kerigo/envelope"
	"github.com/aaronp/kerigo/event"
)

// Store is the KEL store API (spec.md section 4.5), wired over the three
// injectable ports plus a clock, mirroring the way the teacher injects an
// io.Reader random source into key generation rather than reaching for a
// global.
type Store struct {
	Aliases AliasRepo
	Kel     KelRepo
	Vault   Vault

	// kv is the raw backing store, kept alongside the ports so
	// dumpState/loadState can enumerate every namespace directly; none of
	// the port interfaces expose a "list everything" operation (spec.md
	// section 4.5 lists only per-key operations for them).
	kv KVStore

	Clock func() time.Time
	Log   *zap.SugaredLogger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithClock overrides the default clock (time.Now).
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.Clock = clock }
}

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) { s.Log = log }
}

// NewStore wires a Store over a single backing KVStore, constructing the
// namespaced AliasRepo/KelRepo/Vault port implementations (spec.md section
// 4.5: "a single backing key-value store is namespaced ... to implement
// all the above").
func NewStore(kv KVStore, opts ...Option) *Store {
	s := &Store{
		Aliases: newKvAliasRepo(kv),
		Kel:     newKvKelRepo(kv),
		Vault:   newKvVault(kv),
		kv:      kv,
		Clock:   time.Now,
		Log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAccount builds an inception event from currentSpec/nextSpec,
// signs it with the current seed, and persists event → envelope → vault
// → chain → alias in that order (spec.md section 4.5).
func (s *Store) CreateAccount(alias string, currentSpec, nextSpec KeySpec, timestamp string) (*Account, error) {
	acct, _, err := s.createAccount(alias, currentSpec, nextSpec, timestamp, "")
	return acct, err
}

// createAccount is the shared inception path for both plain (icp) and
// delegated (dip, via delegator != "") account creation.
func (s *Store) createAccount(alias string, currentSpec, nextSpec KeySpec, timestamp, delegator string) (*Account, *event.Event, error) {
	if _, exists := s.Aliases.Get(alias); exists {
		return nil, nil, ErrAliasExists
	}

	currentKp, err := resolveKeySpec(currentSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("store: resolving current key spec: %w", err)
	}
	nextKp, err := resolveKeySpec(nextSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("store: resolving next key spec: %w", err)
	}

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:  []string{currentKp.Qb64},
		NextKeys:     []string{nextKp.Qb64},
		Transferable: currentKp.Transferable,
		Delegator:    delegator,
		Timestamp:    timestamp,
	})
	if err != nil {
		return nil, nil, err
	}

	env, err := envelope.SignEnvelope(icp, envelope.SignerSet{Kind: envelope.SignerSetCurrent}, []envelope.SigningKey{
		{KeyIndex: 0, Seed: currentKp.Seed, Transferable: currentKp.Transferable},
	})
	if err != nil {
		return nil, nil, err
	}
	if _, err := envelope.VerifyEnvelope(env, nil, nil); err != nil {
		return nil, nil, fmt.Errorf("store: self-verify inception: %w", err)
	}

	aid := icp.I
	if err := s.Kel.PutEvent(icp); err != nil {
		return nil, nil, err
	}
	if err := s.Kel.PutEnvelope(env); err != nil {
		return nil, nil, err
	}
	if err := s.Vault.SetKeyset(aid, &VaultEntry{
		Current: KeySet{PubQb64: currentKp.Qb64, Seed: currentKp.Seed, Transferable: currentKp.Transferable},
		Next:    KeySet{PubQb64: nextKp.Qb64, Seed: nextKp.Seed, Transferable: nextKp.Transferable},
	}); err != nil {
		return nil, nil, err
	}
	if err := s.Kel.PutChain(&Chain{AID: aid, EventSaids: []string{icp.D}, LatestEventSaid: icp.D, Sequence: 0}); err != nil {
		return nil, nil, err
	}
	if err := s.Aliases.Set(alias, aid); err != nil {
		return nil, nil, err
	}

	s.Log.Infow("account created", "aid", aid, "alias", alias, "delegator", delegator)
	return &Account{AID: aid, Alias: alias, Sequence: 0, LatestEvent: icp}, icp, nil
}

// RotateKeys loads the chain and current keyset, reveals the previous
// next as current, commits a fresh next, and appends the rotation
// through the same event → envelope → vault → chain path.
func (s *Store) RotateKeys(aid string, nextSpec KeySpec, timestamp string) (*Account, error) {
	chain, ok := s.Kel.GetChain(aid)
	if !ok {
		return nil, ErrUnknownAID
	}
	priorEvent, ok := s.Kel.GetEvent(chain.LatestEventSaid)
	if !ok {
		return nil, ErrEmptyChain
	}
	priorEstablishment, err := s.latestEstablishmentUpTo(chain, len(chain.EventSaids)-1)
	if err != nil {
		return nil, err
	}
	vaultEntry, ok := s.Vault.GetKeyset(aid)
	if !ok {
		return nil, ErrKeysetMissing
	}

	newNextKp, err := resolveKeySpec(nextSpec)
	if err != nil {
		return nil, fmt.Errorf("store: resolving next key spec: %w", err)
	}

	rot, err := event.BuildRotation(event.RotationParams{
		Controller:        aid,
		PreviousEventSAID: priorEvent.D,
		Sequence:          chain.Sequence + 1,
		CurrentKeys:       []string{vaultEntry.Next.PubQb64},
		NextKeys:          []string{newNextKp.Qb64},
		Timestamp:         timestamp,
	})
	if err != nil {
		return nil, err
	}

	signerSet, err := envelope.DefaultSignerSet(rot, priorEstablishment)
	if err != nil {
		return nil, err
	}
	env, err := envelope.SignEnvelope(rot, signerSet, []envelope.SigningKey{
		{KeyIndex: 0, Seed: vaultEntry.Current.Seed, Transferable: vaultEntry.Current.Transferable},
	})
	if err != nil {
		return nil, err
	}
	if _, err := envelope.VerifyEnvelope(env, priorEstablishment, nil); err != nil {
		return nil, fmt.Errorf("store: verifying rotation envelope: %w", err)
	}

	if err := s.Kel.PutEvent(rot); err != nil {
		return nil, err
	}
	if err := s.Kel.PutEnvelope(env); err != nil {
		return nil, err
	}
	if err := s.Vault.SetKeyset(aid, &VaultEntry{
		Current: vaultEntry.Next,
		Next:    KeySet{PubQb64: newNextKp.Qb64, Seed: newNextKp.Seed, Transferable: newNextKp.Transferable},
	}); err != nil {
		return nil, err
	}
	chain.EventSaids = append(chain.EventSaids, rot.D)
	chain.LatestEventSaid = rot.D
	chain.Sequence++
	if err := s.Kel.PutChain(chain); err != nil {
		return nil, err
	}

	alias, _ := s.Aliases.Reverse(aid)
	s.Log.Infow("keys rotated", "aid", aid, "sequence", chain.Sequence)
	return &Account{AID: aid, Alias: alias, Sequence: chain.Sequence, LatestEvent: rot}, nil
}

// Anchor builds an ixn anchoring saids under the controller's current
// signing authority and persists it through the same path.
func (s *Store) Anchor(aid string, saids []string, timestamp string) (*envelope.Envelope, error) {
	chain, ok := s.Kel.GetChain(aid)
	if !ok {
		return nil, ErrUnknownAID
	}
	priorEvent, ok := s.Kel.GetEvent(chain.LatestEventSaid)
	if !ok {
		return nil, ErrEmptyChain
	}
	priorEstablishment, err := s.latestEstablishmentUpTo(chain, len(chain.EventSaids)-1)
	if err != nil {
		return nil, err
	}
	vaultEntry, ok := s.Vault.GetKeyset(aid)
	if !ok {
		return nil, ErrKeysetMissing
	}

	ixn, err := event.BuildInteraction(event.InteractionParams{
		Controller:        aid,
		PreviousEventSAID: priorEvent.D,
		Sequence:          chain.Sequence + 1,
		Anchors:           saids,
		Timestamp:         timestamp,
	})
	if err != nil {
		return nil, err
	}

	signerSet, err := envelope.DefaultSignerSet(ixn, priorEstablishment)
	if err != nil {
		return nil, err
	}
	env, err := envelope.SignEnvelope(ixn, signerSet, []envelope.SigningKey{
		{KeyIndex: 0, Seed: vaultEntry.Current.Seed, Transferable: vaultEntry.Current.Transferable},
	})
	if err != nil {
		return nil, err
	}
	if _, err := envelope.VerifyEnvelope(env, priorEstablishment, nil); err != nil {
		return nil, fmt.Errorf("store: verifying anchor envelope: %w", err)
	}

	if err := s.Kel.PutEvent(ixn); err != nil {
		return nil, err
	}
	if err := s.Kel.PutEnvelope(env); err != nil {
		return nil, err
	}
	chain.EventSaids = append(chain.EventSaids, ixn.D)
	chain.LatestEventSaid = ixn.D
	chain.Sequence++
	if err := s.Kel.PutChain(chain); err != nil {
		return nil, err
	}
	return env, nil
}

// GetEventProof builds a self-contained EventProof for said, reading the
// prior establishment event from the chain when said is a rot/ixn.
func (s *Store) GetEventProof(said string) (*envelope.EventProof, error) {
	env, ok := s.Kel.GetEnvelope(said)
	if !ok {
		return nil, fmt.Errorf("store: no envelope for %s", said)
	}

	var priorEstablishment *event.Event
	switch env.Event.T {
	case event.TypeRotation, event.TypeDelegatedRotation, event.TypeInteraction:
		chain, ok := s.Kel.GetChain(env.Event.I)
		if !ok {
			return nil, ErrUnknownAID
		}
		idx := indexOf(chain.EventSaids, said)
		if idx <= 0 {
			return nil, fmt.Errorf("store: %s has no predecessor on its chain", said)
		}
		var err error
		priorEstablishment, err = s.latestEstablishmentUpTo(chain, idx-1)
		if err != nil {
			return nil, err
		}
	}

	return envelope.BuildEventProof(env, priorEstablishment, nil, nil)
}

func indexOf(ss []string, target string) int {
	for i, s := range ss {
		if s == target {
			return i
		}
	}
	return -1
}

// latestEstablishmentUpTo walks chain.EventSaids backward from idx (inclusive)
// to find the most recent establishment event (icp/rot/dip/drt). rot/ixn/drt
// resolve their signer set, threshold, and next-key commitment against this
// event, not merely the immediately preceding one (spec.md section 3: a
// `prior` signer set references the prior establishment event's `k`; `p`
// still names the immediately preceding event; section 4.4: "threshold
// source: rot/ixn → priorEvent.kt").
func (s *Store) latestEstablishmentUpTo(chain *Chain, idx int) (*event.Event, error) {
	for i := idx; i >= 0; i-- {
		e, ok := s.Kel.GetEvent(chain.EventSaids[i])
		if !ok {
			return nil, fmt.Errorf("store: chain references missing event %s", chain.EventSaids[i])
		}
		if e.IsEstablishment() {
			return e, nil
		}
	}
	return nil, fmt.Errorf("store: no establishment event found on %s's chain", chain.AID)
}

// GetAccount returns the public summary for aid.
func (s *Store) GetAccount(aid string) (*Account, error) {
	chain, ok := s.Kel.GetChain(aid)
	if !ok {
		return nil, ErrAccountNotFound
	}
	latest, ok := s.Kel.GetEvent(chain.LatestEventSaid)
	if !ok {
		return nil, ErrEmptyChain
	}
	alias, _ := s.Aliases.Reverse(aid)
	return &Account{AID: aid, Alias: alias, Sequence: chain.Sequence, LatestEvent: latest}, nil
}

// GetAidByAlias resolves alias to its AID.
func (s *Store) GetAidByAlias(alias string) (string, error) {
	aid, ok := s.Aliases.Get(alias)
	if !ok {
		return "", ErrAccountNotFound
	}
	return aid, nil
}

// GetKelChain returns the full ordered list of events on aid's chain.
func (s *Store) GetKelChain(aid string) ([]*event.Event, error) {
	chain, ok := s.Kel.GetChain(aid)
	if !ok {
		return nil, ErrUnknownAID
	}
	out := make([]*event.Event, 0, len(chain.EventSaids))
	for _, said := range chain.EventSaids {
		e, ok := s.Kel.GetEvent(said)
		if !ok {
			return nil, fmt.Errorf("store: chain references missing event %s", said)
		}
		out = append(out, e)
	}
	return out, nil
}

// GetLatestSequence returns aid's current sequence number.
func (s *Store) GetLatestSequence(aid string) (int, error) {
	chain, ok := s.Kel.GetChain(aid)
	if !ok {
		return 0, ErrUnknownAID
	}
	return chain.Sequence, nil
}

// GetKeys returns aid's current and next public keys (public view; no
// secret material).
func (s *Store) GetKeys(aid string) (current, next []string, err error) {
	entry, ok := s.Vault.GetKeyset(aid)
	if !ok {
		return nil, nil, ErrKeysetMissing
	}
	return []string{entry.Current.PubQb64}, []string{entry.Next.PubQb64}, nil
}
