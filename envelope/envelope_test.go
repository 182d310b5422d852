package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaronp/kerigo/event"
	"github.com/aaronp/kerigo/keys"
)

func mustKeypair(t *testing.T, n int) *keys.Keypair {
	t.Helper()
	kp, err := keys.KeypairFromNumber(n, true)
	require.NoError(t, err)
	return kp
}

func TestSignAndVerifyInception(t *testing.T) {
	k0 := mustKeypair(t, 1)
	k1 := mustKeypair(t, 2)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys: []string{k0.Qb64},
		NextKeys:    []string{k1.Qb64},
	})
	require.NoError(t, err)

	signerSet, err := DefaultSignerSet(icp, nil)
	require.NoError(t, err)
	require.Equal(t, SignerSetCurrent, signerSet.Kind)

	env, err := SignEnvelope(icp, signerSet, []SigningKey{
		{KeyIndex: 0, Seed: k0.Seed, Transferable: k0.Transferable},
	})
	require.NoError(t, err)

	result, err := VerifyEnvelope(env, nil, nil)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, 1, result.ValidSignatures)
	require.Equal(t, 1, result.RequiredSignatures)
}

func TestSignAndVerifyRotation(t *testing.T) {
	k0 := mustKeypair(t, 10)
	k1 := mustKeypair(t, 11)
	k2 := mustKeypair(t, 12)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys: []string{k0.Qb64},
		NextKeys:    []string{k1.Qb64},
	})
	require.NoError(t, err)

	rot, err := event.BuildRotation(event.RotationParams{
		Controller:        icp.I,
		PreviousEventSAID: icp.D,
		Sequence:          1,
		CurrentKeys:       []string{k1.Qb64},
		NextKeys:          []string{k2.Qb64},
	})
	require.NoError(t, err)

	signerSet, err := DefaultSignerSet(rot, icp)
	require.NoError(t, err)
	require.Equal(t, SignerSetPrior, signerSet.Kind)
	require.Equal(t, 0, signerSet.Sn)

	env, err := SignEnvelope(rot, signerSet, []SigningKey{
		{KeyIndex: 0, Seed: k0.Seed, Transferable: k0.Transferable},
	})
	require.NoError(t, err)

	result, err := VerifyEnvelope(env, icp, nil)
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestVerifyRotationRejectsCommitmentMismatch(t *testing.T) {
	k0 := mustKeypair(t, 20)
	k1 := mustKeypair(t, 21)
	wrongNext := mustKeypair(t, 22)
	k2 := mustKeypair(t, 23)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys: []string{k0.Qb64},
		NextKeys:    []string{k1.Qb64},
	})
	require.NoError(t, err)

	// Rotation reveals a key that does not match the inception's next
	// commitment.
	rot, err := event.BuildRotation(event.RotationParams{
		Controller:        icp.I,
		PreviousEventSAID: icp.D,
		Sequence:          1,
		CurrentKeys:       []string{wrongNext.Qb64},
		NextKeys:          []string{k2.Qb64},
	})
	require.NoError(t, err)

	env, err := SignEnvelope(rot, SignerSet{Kind: SignerSetPrior, Sn: 0}, []SigningKey{
		{KeyIndex: 0, Seed: wrongNext.Seed, Transferable: wrongNext.Transferable},
	})
	require.NoError(t, err)

	_, err = VerifyEnvelope(env, icp, nil)
	require.ErrorIs(t, err, ErrCommitmentMismatch)
}

func TestVerifyRejectsSaidMismatch(t *testing.T) {
	k0 := mustKeypair(t, 30)
	k1 := mustKeypair(t, 31)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys: []string{k0.Qb64},
		NextKeys:    []string{k1.Qb64},
	})
	require.NoError(t, err)

	env, err := SignEnvelope(icp, SignerSet{Kind: SignerSetCurrent}, []SigningKey{
		{KeyIndex: 0, Seed: k0.Seed, Transferable: k0.Transferable},
	})
	require.NoError(t, err)

	env.Event.D = "Etampered000000000000000000000000000000000"

	_, err = VerifyEnvelope(env, nil, nil)
	require.ErrorIs(t, err, ErrSaidMismatch)
}

func TestVerifyInsufficientSignatures(t *testing.T) {
	k0 := mustKeypair(t, 40)
	k1 := mustKeypair(t, 41)
	k2 := mustKeypair(t, 42)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:  []string{k0.Qb64, k1.Qb64},
		NextKeys:     []string{k2.Qb64},
		KeyThreshold: "2",
	})
	require.NoError(t, err)

	env, err := SignEnvelope(icp, SignerSet{Kind: SignerSetCurrent}, []SigningKey{
		{KeyIndex: 0, Seed: k0.Seed, Transferable: k0.Transferable},
	})
	require.NoError(t, err)

	result, err := VerifyEnvelope(env, nil, nil)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Equal(t, 1, result.ValidSignatures)
	require.Equal(t, 2, result.RequiredSignatures)
}

func TestEventProofRoundTrip(t *testing.T) {
	k0 := mustKeypair(t, 50)
	k1 := mustKeypair(t, 51)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys: []string{k0.Qb64},
		NextKeys:    []string{k1.Qb64},
	})
	require.NoError(t, err)

	env, err := SignEnvelope(icp, SignerSet{Kind: SignerSetCurrent}, []SigningKey{
		{KeyIndex: 0, Seed: k0.Seed, Transferable: k0.Transferable},
	})
	require.NoError(t, err)

	proof, err := BuildEventProof(env, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, icp.D, proof.Said)
	require.Equal(t, 1, proof.RequiredThreshold)
	require.Len(t, proof.Signers, 1)
	require.Equal(t, k0.Qb64, proof.Signers[0].PublicKey)

	result, err := VerifyEventProof(proof)
	require.NoError(t, err)
	require.True(t, result.Valid)
}

func TestEventProofInsufficientSignatures(t *testing.T) {
	k0 := mustKeypair(t, 60)
	k1 := mustKeypair(t, 61)
	k2 := mustKeypair(t, 62)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:  []string{k0.Qb64, k1.Qb64},
		NextKeys:     []string{k2.Qb64},
		KeyThreshold: "2",
	})
	require.NoError(t, err)

	env, err := SignEnvelope(icp, SignerSet{Kind: SignerSetCurrent}, []SigningKey{
		{KeyIndex: 0, Seed: k0.Seed, Transferable: k0.Transferable},
	})
	require.NoError(t, err)

	proof, err := BuildEventProof(env, nil, nil, nil)
	require.NoError(t, err)

	result, err := VerifyEventProof(proof)
	require.NoError(t, err)
	require.False(t, result.Valid)
	reasons := make([]string, 0, len(result.PerSignatureResult))
	for _, r := range result.PerSignatureResult {
		reasons = append(reasons, r.Reason)
	}
	require.Contains(t, reasons, "Insufficient signatures: 1/2")
}
