package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aaronp/kerigo/envelope"
	"github.com/aaronp/kerigo/event"
	"github.com/aaronp/kerigo/keys"
)

// twoOfTwoFixture builds an icp with two current keys under a 2-of-2
// threshold and a rot event revealing its committed next keys, matching
// spec.md scenario S3.
type twoOfTwoFixture struct {
	icp  *event.Event
	rot  *event.Event
	kp0  *keys.Keypair
	kp1  *keys.Keypair
	next *keys.Keypair
}

func buildTwoOfTwoFixture(t *testing.T) twoOfTwoFixture {
	t.Helper()

	kp0, err := keys.KeypairFromNumber(7001, true)
	require.NoError(t, err)
	kp1, err := keys.KeypairFromNumber(7002, true)
	require.NoError(t, err)
	next, err := keys.KeypairFromNumber(7003, true)
	require.NoError(t, err)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:   []string{kp0.Qb64, kp1.Qb64},
		NextKeys:      []string{kp0.Qb64, kp1.Qb64},
		KeyThreshold:  "2",
		NextThreshold: "2",
		Transferable:  true,
	})
	require.NoError(t, err)

	rot, err := event.BuildRotation(event.RotationParams{
		Controller:        icp.I,
		PreviousEventSAID: icp.D,
		Sequence:          1,
		CurrentKeys:       []string{kp0.Qb64, kp1.Qb64},
		NextKeys:          []string{next.Qb64},
		KeyThreshold:      "2",
		NextThreshold:     "1",
	})
	require.NoError(t, err)

	return twoOfTwoFixture{icp: icp, rot: rot, kp0: kp0, kp1: kp1, next: next}
}

func signRotation(t *testing.T, f twoOfTwoFixture, kp *keys.Keypair) string {
	t.Helper()
	canonical, err := envelope.CanonicalBytes(f.rot)
	require.NoError(t, err)
	sig, err := keys.Sign(canonical, kp.Seed, kp.Transferable)
	require.NoError(t, err)
	return sig
}

func TestCoordinatorFastPathWhenInitiatorControlsThreshold(t *testing.T) {
	f := buildTwoOfTwoFixture(t)

	var appended *envelope.Envelope
	cfg := Config{
		RotEvent:   f.rot,
		PriorEvent: f.icp,
		Cosigners:  nil,
		InitiatorKeys: []envelope.SigningKey{
			{KeyIndex: 0, Seed: f.kp0.Seed, Transferable: f.kp0.Transferable},
			{KeyIndex: 1, Seed: f.kp1.Seed, Transferable: f.kp1.Transferable},
		},
		AppendFn: func(env *envelope.Envelope) error {
			appended = env
			return nil
		},
	}
	c, err := Preflight(cfg)
	require.NoError(t, err)

	status, err := c.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseFinalized, status.Phase)
	require.NotNil(t, appended)
	require.Len(t, appended.Signatures, 2)
}

func TestCoordinatorSlowPathCollectsCosignerOverTransport(t *testing.T) {
	f := buildTwoOfTwoFixture(t)
	transport := NewInMemoryTransport()

	var appended *envelope.Envelope
	cfg := Config{
		RotEvent:   f.rot,
		PriorEvent: f.icp,
		Cosigners:  []Cosigner{{KeyIndex: 1, AID: "cosigner-aid", Pub: f.kp1.Qb64}},
		InitiatorKeys: []envelope.SigningKey{
			{KeyIndex: 0, Seed: f.kp0.Seed, Transferable: f.kp0.Transferable},
		},
		Transport: transport,
		Deadline:  time.Hour,
		AppendFn: func(env *envelope.Envelope) error {
			appended = env
			return nil
		},
	}
	c, err := Preflight(cfg)
	require.NoError(t, err)

	finalized := make(chan Event, 8)
	c.Subscribe(func(ev Event) {
		if ev.Kind == ProgressFinalized {
			finalized <- ev
		}
	})

	cosignerMsgs, _, err := transport.Subscribe("cosigner-aid")
	require.NoError(t, err)

	status, err := c.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseCollecting, status.Phase)

	proposalMsg := <-cosignerMsgs
	require.Equal(t, TypProposal, proposalMsg.Typ)

	sig := signRotation(t, f, f.kp1)
	signMsg, err := newMessage("sign-1", "cosigner-aid", TypSign, SignBody{
		RotationID:      f.rot.D,
		Signer:          "cosigner-aid",
		KeyIndex:        1,
		Sig:             sig,
		Ok:              true,
		CanonicalDigest: f.rot.D,
	})
	require.NoError(t, err)
	require.NoError(t, transport.Send(f.icp.I, signMsg))

	select {
	case <-finalized:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for finalization")
	}

	final := c.Status()
	require.Equal(t, PhaseFinalized, final.Phase)
	require.NotNil(t, appended)
	require.Len(t, appended.Signatures, 2)
}

func TestCoordinatorIngestRejectsReplayedMessageID(t *testing.T) {
	f := buildTwoOfTwoFixture(t)
	cfg := Config{
		RotEvent:   f.rot,
		PriorEvent: f.icp,
		Cosigners:  []Cosigner{{KeyIndex: 1, AID: "cosigner-aid", Pub: f.kp1.Qb64}},
		InitiatorKeys: []envelope.SigningKey{
			{KeyIndex: 0, Seed: f.kp0.Seed, Transferable: f.kp0.Transferable},
		},
	}
	c, err := Preflight(cfg)
	require.NoError(t, err)
	_, err = c.runSlowPath(context.Background())
	require.NoError(t, err)

	sig := signRotation(t, f, f.kp1)
	body := SignBody{RotationID: f.rot.D, Signer: "cosigner-aid", KeyIndex: 1, Sig: sig, Ok: true, CanonicalDigest: f.rot.D}
	msg, err := newMessage("dup-id", "cosigner-aid", TypSign, body)
	require.NoError(t, err)

	require.NoError(t, c.Ingest(msg))
	// The 2-of-2 threshold is met by this single required cosigner
	// signature (the initiator's own key covers the other half), so
	// ingest finalizes synchronously.
	require.Equal(t, PhaseFinalized, c.Status().Phase)

	// Replaying the identical message id must be a silent no-op, not a
	// second acceptance or a second finalize attempt.
	require.NoError(t, c.Ingest(msg))
	status := c.Status()
	require.Equal(t, 1, status.Collected)
	require.Equal(t, PhaseFinalized, status.Phase)
}

func TestCoordinatorIngestRejectsDuplicateSignatureValue(t *testing.T) {
	f := buildTwoOfTwoFixture(t)
	// Index 1 and index 2 are controlled by the same physical key (an
	// unusual but not preflight-rejected setup, e.g. one cosigner
	// registered under two AIDs). That makes one signer's signature
	// string pass Ed25519 verification at the other's key index too, so a
	// copied/replayed signature can't be caught by verification alone —
	// exactly the case the value-level guard exists for.
	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:   []string{f.kp0.Qb64, f.kp1.Qb64, f.kp1.Qb64},
		NextKeys:      []string{f.kp0.Qb64, f.kp1.Qb64, f.kp1.Qb64},
		KeyThreshold:  "3",
		NextThreshold: "3",
		Transferable:  true,
	})
	require.NoError(t, err)
	rot, err := event.BuildRotation(event.RotationParams{
		Controller:        icp.I,
		PreviousEventSAID: icp.D,
		Sequence:          1,
		CurrentKeys:       []string{f.kp0.Qb64, f.kp1.Qb64, f.kp1.Qb64},
		NextKeys:          []string{f.next.Qb64},
		KeyThreshold:      "3",
		NextThreshold:     "1",
	})
	require.NoError(t, err)
	fx := twoOfTwoFixture{icp: icp, rot: rot, kp0: f.kp0, kp1: f.kp1, next: f.next}

	cfg := Config{
		RotEvent:   rot,
		PriorEvent: icp,
		Cosigners: []Cosigner{
			{KeyIndex: 1, AID: "cosigner-1", Pub: f.kp1.Qb64},
			{KeyIndex: 2, AID: "cosigner-2", Pub: f.kp1.Qb64},
		},
		InitiatorKeys: []envelope.SigningKey{
			{KeyIndex: 0, Seed: f.kp0.Seed, Transferable: f.kp0.Transferable},
		},
	}
	c, err := Preflight(cfg)
	require.NoError(t, err)
	_, err = c.runSlowPath(context.Background())
	require.NoError(t, err)

	sig1 := signRotation(t, fx, f.kp1)
	msg1, err := newMessage("m1", "cosigner-1", TypSign, SignBody{
		RotationID: rot.D, Signer: "cosigner-1", KeyIndex: 1, Sig: sig1, Ok: true, CanonicalDigest: rot.D,
	})
	require.NoError(t, err)
	require.NoError(t, c.Ingest(msg1))

	// cosigner-2 submits the exact same signature string already recorded
	// for cosigner-1; the value-level guard must reject it even though
	// the message id and key index both differ from msg1.
	msg2, err := newMessage("m2", "cosigner-2", TypSign, SignBody{
		RotationID: rot.D, Signer: "cosigner-2", KeyIndex: 2, Sig: sig1, Ok: true, CanonicalDigest: rot.D,
	})
	require.NoError(t, err)
	err = c.Ingest(msg2)
	require.ErrorIs(t, err, ErrDuplicateSignature)
}

func TestCoordinatorIngestRejectsSignerAIDMismatch(t *testing.T) {
	f := buildTwoOfTwoFixture(t)
	cfg := Config{
		RotEvent:   f.rot,
		PriorEvent: f.icp,
		Cosigners:  []Cosigner{{KeyIndex: 1, AID: "cosigner-aid", Pub: f.kp1.Qb64}},
		InitiatorKeys: []envelope.SigningKey{
			{KeyIndex: 0, Seed: f.kp0.Seed, Transferable: f.kp0.Transferable},
		},
	}
	c, err := Preflight(cfg)
	require.NoError(t, err)
	_, err = c.runSlowPath(context.Background())
	require.NoError(t, err)

	sig := signRotation(t, f, f.kp1)
	msg, err := newMessage("m1", "impostor-aid", TypSign, SignBody{
		RotationID: f.rot.D, Signer: "impostor-aid", KeyIndex: 1, Sig: sig, Ok: true, CanonicalDigest: f.rot.D,
	})
	require.NoError(t, err)
	err = c.Ingest(msg)
	require.ErrorIs(t, err, ErrSignerAidMismatch)
}

func TestCoordinatorIngestRejectsStaleProposalDigest(t *testing.T) {
	f := buildTwoOfTwoFixture(t)
	cfg := Config{
		RotEvent:   f.rot,
		PriorEvent: f.icp,
		Cosigners:  []Cosigner{{KeyIndex: 1, AID: "cosigner-aid", Pub: f.kp1.Qb64}},
		InitiatorKeys: []envelope.SigningKey{
			{KeyIndex: 0, Seed: f.kp0.Seed, Transferable: f.kp0.Transferable},
		},
	}
	c, err := Preflight(cfg)
	require.NoError(t, err)
	_, err = c.runSlowPath(context.Background())
	require.NoError(t, err)

	sig := signRotation(t, f, f.kp1)
	msg, err := newMessage("m1", "cosigner-aid", TypSign, SignBody{
		RotationID: f.rot.D, Signer: "cosigner-aid", KeyIndex: 1, Sig: sig, Ok: true, CanonicalDigest: "not-the-real-digest",
	})
	require.NoError(t, err)
	err = c.Ingest(msg)
	require.ErrorIs(t, err, ErrStaleProposalDigest)
}

func TestCoordinatorAbortIsIdempotentAndUnsubscribes(t *testing.T) {
	f := buildTwoOfTwoFixture(t)
	transport := NewInMemoryTransport()
	cfg := Config{
		RotEvent:   f.rot,
		PriorEvent: f.icp,
		Cosigners:  []Cosigner{{KeyIndex: 1, AID: "cosigner-aid", Pub: f.kp1.Qb64}},
		InitiatorKeys: []envelope.SigningKey{
			{KeyIndex: 0, Seed: f.kp0.Seed, Transferable: f.kp0.Transferable},
		},
		Transport: transport,
	}
	c, err := Preflight(cfg)
	require.NoError(t, err)
	_, err = c.Start(context.Background())
	require.NoError(t, err)

	c.Abort("operator cancelled")
	require.Equal(t, PhaseAborted, c.Status().Phase)

	// Second abort must not panic or change the recorded phase.
	c.Abort("operator cancelled again")
	require.Equal(t, PhaseAborted, c.Status().Phase)
}

func TestCoordinatorResendOnlyTargetsUnsignedRequiredSigners(t *testing.T) {
	f := buildTwoOfTwoFixture(t)
	transport := NewInMemoryTransport()
	cfg := Config{
		RotEvent:   f.rot,
		PriorEvent: f.icp,
		Cosigners:  []Cosigner{{KeyIndex: 1, AID: "cosigner-aid", Pub: f.kp1.Qb64}},
		InitiatorKeys: []envelope.SigningKey{
			{KeyIndex: 0, Seed: f.kp0.Seed, Transferable: f.kp0.Transferable},
		},
		Transport: transport,
	}
	c, err := Preflight(cfg)
	require.NoError(t, err)

	cosignerMsgs, _, err := transport.Subscribe("cosigner-aid")
	require.NoError(t, err)

	_, err = c.Start(context.Background())
	require.NoError(t, err)
	<-cosignerMsgs // initial proposal

	c.Resend()
	select {
	case msg := <-cosignerMsgs:
		require.Equal(t, TypProposal, msg.Typ)
	case <-time.After(time.Second):
		t.Fatal("expected resend to deliver a second proposal")
	}
}
