package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaronp/kerigo/envelope"
	"github.com/aaronp/kerigo/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(NewMemoryKV())
}

func TestCreateAccountDeterministicInception(t *testing.T) {
	s := newTestStore(t)

	acct, err := s.CreateAccount("alice", NumberKeySpec(1234, true), NumberKeySpec(5678, true), "2024-01-01T00:00:00.000Z")
	require.NoError(t, err)

	require.Equal(t, "0", acct.LatestEvent.S)
	require.Equal(t, event.TypeInception, acct.LatestEvent.T)
	require.Equal(t, "1", acct.LatestEvent.Kt)
	require.Equal(t, "1", acct.LatestEvent.Nt)
	require.Equal(t, acct.LatestEvent.K[0], acct.LatestEvent.I)
	require.Equal(t, acct.AID, acct.LatestEvent.I)

	// Running CreateAccount again with the same numeric specs must produce
	// byte-identical results (spec.md section 8, determinism law).
	s2 := newTestStore(t)
	acct2, err := s2.CreateAccount("alice", NumberKeySpec(1234, true), NumberKeySpec(5678, true), "2024-01-01T00:00:00.000Z")
	require.NoError(t, err)
	require.Equal(t, acct.LatestEvent.D, acct2.LatestEvent.D)
	require.Equal(t, acct.AID, acct2.AID)
}

// TestCreateAccountGoldenS1 locks createAccount's output against spec.md
// section 8's literal S1 scenario (currentKeySpec=1234, nextKeySpec=5678,
// fixed timestamp), not merely the run-twice determinism check above. See
// the TODO on keys.KeypairFromNumber for the known open question this
// test depends on.
func TestCreateAccountGoldenS1(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.CreateAccount("alice", NumberKeySpec(1234, true), NumberKeySpec(5678, true), "2024-01-01T00:00:00.000Z")
	require.NoError(t, err)

	require.Equal(t, []string{"DGyRkHQbJ6lafpzLpxaIa5ctBm50rNcXCqlmJQdTDqQ6"}, acct.LatestEvent.K)
	require.Equal(t, "DGyRkHQbJ6lafpzLpxaIa5ctBm50rNcXCqlmJQdTDqQ6", acct.LatestEvent.I)
	require.Equal(t, "EJmL2zNTkZZtezB80IQ5DgzZ7t-euww-kqC-bk8qc-pk", acct.LatestEvent.N)
	require.Equal(t, "EFn-5-Uw5PY1stSyBYZIT9vpyPeK8WyauHq9Rhi0vh7w", acct.LatestEvent.D)
	require.Equal(t, "1", acct.LatestEvent.Kt)
	require.Equal(t, "1", acct.LatestEvent.Nt)
	require.Equal(t, "0", acct.LatestEvent.S)
	require.Equal(t, event.TypeInception, acct.LatestEvent.T)
}

func TestCreateAccountRejectsDuplicateAlias(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateAccount("alice", NumberKeySpec(1, true), NumberKeySpec(2, true), "")
	require.NoError(t, err)
	_, err = s.CreateAccount("alice", NumberKeySpec(3, true), NumberKeySpec(4, true), "")
	require.ErrorIs(t, err, ErrAliasExists)
}

func TestRotateKeysFastPath(t *testing.T) {
	s := newTestStore(t)
	icpAcct, err := s.CreateAccount("alice", NumberKeySpec(1234, true), NumberKeySpec(5678, true), "2024-01-01T00:00:00.000Z")
	require.NoError(t, err)

	vaultBefore, ok := s.Vault.GetKeyset(icpAcct.AID)
	require.True(t, ok)

	rotAcct, err := s.RotateKeys(icpAcct.AID, NumberKeySpec(9999, true), "2025-01-01T12:00:00Z")
	require.NoError(t, err)

	require.Equal(t, 1, rotAcct.Sequence)
	require.Equal(t, "1", rotAcct.LatestEvent.S)
	require.Equal(t, event.TypeRotation, rotAcct.LatestEvent.T)
	require.Equal(t, icpAcct.LatestEvent.D, rotAcct.LatestEvent.P)
	require.Equal(t, vaultBefore.Next.PubQb64, rotAcct.LatestEvent.K[0])

	chain, err := s.GetKelChain(icpAcct.AID)
	require.NoError(t, err)
	require.Len(t, chain, 2)

	vaultAfter, ok := s.Vault.GetKeyset(icpAcct.AID)
	require.True(t, ok)
	require.Equal(t, vaultBefore.Next.PubQb64, vaultAfter.Current.PubQb64)
	require.NotEqual(t, vaultBefore.Next.PubQb64, vaultAfter.Next.PubQb64)
}

func TestAnchorAppendsInteraction(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.CreateAccount("alice", NumberKeySpec(1, true), NumberKeySpec(2, true), "")
	require.NoError(t, err)

	env, err := s.Anchor(acct.AID, []string{"Esomeexternalthing000000000000000000000000"}, "")
	require.NoError(t, err)
	require.Equal(t, event.TypeInteraction, env.Event.T)
	require.Equal(t, "1", env.Event.S)

	seq, err := s.GetLatestSequence(acct.AID)
	require.NoError(t, err)
	require.Equal(t, 1, seq)
}

func TestGetEventProofForRotation(t *testing.T) {
	s := newTestStore(t)
	icpAcct, err := s.CreateAccount("alice", NumberKeySpec(1, true), NumberKeySpec(2, true), "")
	require.NoError(t, err)
	rotAcct, err := s.RotateKeys(icpAcct.AID, NumberKeySpec(3, true), "")
	require.NoError(t, err)

	proof, err := s.GetEventProof(rotAcct.LatestEvent.D)
	require.NoError(t, err)

	result, err := envelope.VerifyEventProof(proof)
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestDelegatedChildLifecycle(t *testing.T) {
	s := newTestStore(t)
	parent, err := s.CreateAccount("parent", NumberKeySpec(100, true), NumberKeySpec(101, true), "")
	require.NoError(t, err)

	child, req, err := s.CreateChildAccount(parent.AID, "phone", NumberKeySpec(200, true), NumberKeySpec(201, true), "")
	require.NoError(t, err)
	require.Equal(t, event.TypeDelegatedInception, child.LatestEvent.T)
	require.Equal(t, parent.AID, child.LatestEvent.Di)
	require.Equal(t, "0", child.LatestEvent.S)
	require.Equal(t, child.AID, req.Seal.I)
	require.Equal(t, child.LatestEvent.D, req.Seal.D)

	// Before the parent anchors the seal, an observer must not accept the
	// child event (spec.md S7: "Observers who receive only the child event
	// without the parent's ixn do not accept the child").
	require.ErrorIs(t, s.VerifyDelegatedAcceptance(child.LatestEvent), ErrDelegationNotAnchored)

	env, err := s.AnchorDelegation(req, "")
	require.NoError(t, err)
	require.Equal(t, "1", env.Event.S)
	require.Equal(t, []string{child.LatestEvent.D}, env.Event.A)

	parentSeq, err := s.GetLatestSequence(parent.AID)
	require.NoError(t, err)
	require.Equal(t, 1, parentSeq)

	require.NoError(t, s.VerifyDelegatedAcceptance(child.LatestEvent))
}

func TestDumpStateDigestStableAcrossDumps(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.CreateAccount("alice", NumberKeySpec(1, true), NumberKeySpec(2, true), "")
	require.NoError(t, err)
	_, err = s.RotateKeys(acct.AID, NumberKeySpec(3, true), "")
	require.NoError(t, err)

	snap1, err := s.DumpState(true, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	snap2, err := s.DumpState(true, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, snap1.Digest, snap2.Digest)
}

func TestLoadStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.CreateAccount("alice", NumberKeySpec(1, true), NumberKeySpec(2, true), "")
	require.NoError(t, err)
	_, err = s.RotateKeys(acct.AID, NumberKeySpec(3, true), "")
	require.NoError(t, err)

	snap, err := s.DumpState(true, "2024-01-01T00:00:00Z")
	require.NoError(t, err)

	fresh := newTestStore(t)
	require.NoError(t, fresh.LoadState(snap, true, true))

	snap2, err := fresh.DumpState(true, "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, snap.Digest, snap2.Digest)

	loadedAcct, err := fresh.GetAccount(acct.AID)
	require.NoError(t, err)
	require.Equal(t, acct.Sequence, loadedAcct.Sequence)
}

func TestLoadStateRejectsDigestMismatch(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateAccount("alice", NumberKeySpec(1, true), NumberKeySpec(2, true), "")
	require.NoError(t, err)
	snap, err := s.DumpState(false, "")
	require.NoError(t, err)
	snap.Digest = "Etampered0000000000000000000000000000000000"

	fresh := newTestStore(t)
	err = fresh.LoadState(snap, false, true)
	require.ErrorIs(t, err, ErrSnapshotDigestMismatch)
}

func TestLoadStateRejectsSecretsWhenNotAllowed(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateAccount("alice", NumberKeySpec(1, true), NumberKeySpec(2, true), "")
	require.NoError(t, err)
	snap, err := s.DumpState(true, "")
	require.NoError(t, err)

	fresh := newTestStore(t)
	err = fresh.LoadState(snap, false, true)
	require.ErrorIs(t, err, ErrSecretsNotAllowed)
}
