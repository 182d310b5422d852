package store

import (
	"fmt"

	"github.com/aaronp/kerigo/envelope"
	"github.com/aaronp/kerigo/event"
)

// CreateChildAccount builds a delegated inception (dip) for a new child
// AID under parentAid. It persists the child exactly like a plain
// account, then returns the parentAnchorRequest the caller must pass to
// AnchorDelegation before observers will accept the child event (spec.md
// section 4.5, delegation contract).
func (s *Store) CreateChildAccount(parentAid, alias string, currentSpec, nextSpec KeySpec, timestamp string) (*Account, *ParentAnchorRequest, error) {
	if _, err := s.GetAccount(parentAid); err != nil {
		return nil, nil, fmt.Errorf("store: resolving parent %s: %w", parentAid, err)
	}

	acct, dip, err := s.createAccount(alias, currentSpec, nextSpec, timestamp, parentAid)
	if err != nil {
		return nil, nil, err
	}

	req := &ParentAnchorRequest{
		ParentAid:      parentAid,
		ChildAid:       dip.I,
		ChildEventSaid: dip.D,
		ChildEventSeq:  0,
		Seal:           Seal{I: dip.I, S: dip.S, D: dip.D},
	}
	return acct, req, nil
}

// AnchorDelegation writes an ixn on the parent's KEL anchoring req.Seal.
// Only after this call will observers accept the child's delegated event.
func (s *Store) AnchorDelegation(req *ParentAnchorRequest, timestamp string) (*envelope.Envelope, error) {
	sealBytes, err := sealSAIDList(req.Seal)
	if err != nil {
		return nil, err
	}
	return s.Anchor(req.ParentAid, sealBytes, timestamp)
}

// sealSAIDList renders a Seal as the single-element anchor list an ixn's
// `a` field carries. The engine anchors seals by their event SAID; the
// full {i,s,d} triple is recoverable by observers from the child's own
// KEL, so only the SAID needs to travel in the parent's `a` array.
func sealSAIDList(seal Seal) ([]string, error) {
	if seal.D == "" {
		return nil, fmt.Errorf("store: seal has no event SAID")
	}
	return []string{seal.D}, nil
}

// RotateChild builds a delegated rotation (drt) for childAid exactly like
// RotateKeys, then returns the parentAnchorRequest needed to anchor it.
func (s *Store) RotateChild(childAid string, nextSpec KeySpec, timestamp string) (*Account, *ParentAnchorRequest, error) {
	childEvent, ok := s.Kel.GetEvent(mustLatestSaid(s, childAid))
	if !ok {
		return nil, nil, ErrUnknownAID
	}
	if childEvent.Di == "" {
		return nil, nil, fmt.Errorf("store: %s is not a delegated AID", childAid)
	}
	parentAid := childEvent.Di

	chain, ok := s.Kel.GetChain(childAid)
	if !ok {
		return nil, nil, ErrUnknownAID
	}
	priorEvent, ok := s.Kel.GetEvent(chain.LatestEventSaid)
	if !ok {
		return nil, nil, ErrEmptyChain
	}
	priorEstablishment, err := s.latestEstablishmentUpTo(chain, len(chain.EventSaids)-1)
	if err != nil {
		return nil, nil, err
	}
	vaultEntry, ok := s.Vault.GetKeyset(childAid)
	if !ok {
		return nil, nil, ErrKeysetMissing
	}

	newNextKp, err := resolveKeySpec(nextSpec)
	if err != nil {
		return nil, nil, fmt.Errorf("store: resolving next key spec: %w", err)
	}

	drt, err := event.BuildRotation(event.RotationParams{
		Controller:        childAid,
		PreviousEventSAID: priorEvent.D,
		Sequence:          chain.Sequence + 1,
		CurrentKeys:       []string{vaultEntry.Next.PubQb64},
		NextKeys:          []string{newNextKp.Qb64},
		Delegator:         parentAid,
		Timestamp:         timestamp,
	})
	if err != nil {
		return nil, nil, err
	}

	signerSet, err := envelope.DefaultSignerSet(drt, priorEstablishment)
	if err != nil {
		return nil, nil, err
	}
	env, err := envelope.SignEnvelope(drt, signerSet, []envelope.SigningKey{
		{KeyIndex: 0, Seed: vaultEntry.Current.Seed, Transferable: vaultEntry.Current.Transferable},
	})
	if err != nil {
		return nil, nil, err
	}
	if _, err := envelope.VerifyEnvelope(env, priorEstablishment, nil); err != nil {
		return nil, nil, fmt.Errorf("store: verifying delegated rotation envelope: %w", err)
	}

	if err := s.Kel.PutEvent(drt); err != nil {
		return nil, nil, err
	}
	if err := s.Kel.PutEnvelope(env); err != nil {
		return nil, nil, err
	}
	if err := s.Vault.SetKeyset(childAid, &VaultEntry{
		Current: vaultEntry.Next,
		Next:    KeySet{PubQb64: newNextKp.Qb64, Seed: newNextKp.Seed, Transferable: newNextKp.Transferable},
	}); err != nil {
		return nil, nil, err
	}
	chain.EventSaids = append(chain.EventSaids, drt.D)
	chain.LatestEventSaid = drt.D
	chain.Sequence++
	if err := s.Kel.PutChain(chain); err != nil {
		return nil, nil, err
	}

	alias, _ := s.Aliases.Reverse(childAid)
	req := &ParentAnchorRequest{
		ParentAid:      parentAid,
		ChildAid:       childAid,
		ChildEventSaid: drt.D,
		ChildEventSeq:  chain.Sequence,
		Seal:           Seal{I: childAid, S: drt.S, D: drt.D},
	}
	return &Account{AID: childAid, Alias: alias, Sequence: chain.Sequence, LatestEvent: drt}, req, nil
}

// RevokeChildDelegation publishes a parent ixn declining future anchors
// for childAid. Revocation is by convention, not a distinct event type
// (spec.md section 4.5): the anchor's `a` entry is the string "REVOKE:"
// followed by childAid, which is not a SAID and so never matches a real
// child event.
func (s *Store) RevokeChildDelegation(parentAid, childAid, timestamp string) (*envelope.Envelope, error) {
	return s.Anchor(parentAid, []string{"REVOKE:" + childAid}, timestamp)
}

func mustLatestSaid(s *Store, aid string) string {
	chain, ok := s.Kel.GetChain(aid)
	if !ok {
		return ""
	}
	return chain.LatestEventSaid
}

// IsDelegationAnchored reports whether childEvent (a dip or drt) has a
// corresponding `ixn` on its delegator's KEL anchoring its SAID. Per the
// delegation contract (spec.md section 4.5), observers must not accept a
// delegated event until this anchoring interaction is present; childEvent
// itself verifying (SAID, signatures, commitment) is not sufficient.
func (s *Store) IsDelegationAnchored(childEvent *event.Event) (bool, error) {
	if childEvent.Di == "" {
		return false, fmt.Errorf("store: %s is not a delegated event", childEvent.D)
	}
	chain, ok := s.Kel.GetChain(childEvent.Di)
	if !ok {
		return false, nil
	}
	for _, said := range chain.EventSaids {
		e, ok := s.Kel.GetEvent(said)
		if !ok || e.T != event.TypeInteraction {
			continue
		}
		for _, anchored := range e.A {
			if anchored == childEvent.D {
				return true, nil
			}
		}
	}
	return false, nil
}

// VerifyDelegatedAcceptance is the observer-side gate on a delegated
// event: it returns ErrDelegationNotAnchored unless the delegator's KEL
// already anchors childEvent's SAID via an `ixn`.
func (s *Store) VerifyDelegatedAcceptance(childEvent *event.Event) error {
	anchored, err := s.IsDelegationAnchored(childEvent)
	if err != nil {
		return err
	}
	if !anchored {
		return ErrDelegationNotAnchored
	}
	return nil
}
