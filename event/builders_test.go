package event

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaronp/kerigo/codec"
)

func TestBuildInceptionBasic(t *testing.T) {
	e, err := BuildInception(InceptionParams{
		CurrentKeys: []string{"Dcurrent1"},
		NextKeys:    []string{"Dnext1"},
		Timestamp:   "2024-01-01T00:00:00.000Z",
	})
	require.NoError(t, err)
	require.Equal(t, TypeInception, e.T)
	require.Equal(t, "0", e.S)
	require.Equal(t, "Dcurrent1", e.I)
	require.Equal(t, "1", e.Kt)
	require.Equal(t, "1", e.Nt)
	require.True(t, codec.IsSAID(e.D))
	require.Empty(t, e.P)

	// SAID is stable for identical inputs (determinism).
	e2, err := BuildInception(InceptionParams{
		CurrentKeys: []string{"Dcurrent1"},
		NextKeys:    []string{"Dnext1"},
		Timestamp:   "2024-01-01T00:00:00.000Z",
	})
	require.NoError(t, err)
	require.Equal(t, e.D, e2.D)
}

func TestBuildInceptionRejectsZeroKeys(t *testing.T) {
	_, err := BuildInception(InceptionParams{})
	require.ErrorIs(t, err, ErrNoKeys)
}

func TestBuildInceptionBadThreshold(t *testing.T) {
	_, err := BuildInception(InceptionParams{
		CurrentKeys:  []string{"Dcurrent1"},
		KeyThreshold: "2",
	})
	require.ErrorIs(t, err, ErrThresholdRange)
}

func TestBuildDelegatedInception(t *testing.T) {
	e, err := BuildInception(InceptionParams{
		CurrentKeys: []string{"Dchild1"},
		NextKeys:    []string{"Dchild2"},
		Delegator:   "Eparent",
	})
	require.NoError(t, err)
	require.Equal(t, TypeDelegatedInception, e.T)
	require.Equal(t, "Eparent", e.Di)
	require.Equal(t, e.D, e.I, "delegated inception identifier is its own SAID")
}

func TestBuildRotation(t *testing.T) {
	icp, err := BuildInception(InceptionParams{
		CurrentKeys: []string{"Dcurrent1"},
		NextKeys:    []string{"Dnext1"},
	})
	require.NoError(t, err)

	rot, err := BuildRotation(RotationParams{
		Controller:        icp.I,
		PreviousEventSAID: icp.D,
		Sequence:          1,
		CurrentKeys:       []string{"Dnext1"},
		NextKeys:          []string{"Dnextnext1"},
	})
	require.NoError(t, err)
	require.Equal(t, TypeRotation, rot.T)
	require.Equal(t, "1", rot.S)
	require.Equal(t, icp.D, rot.P)
	require.Equal(t, icp.I, rot.I)

	// The commitment the inception made over its own next keys must equal
	// what a rotation revealing those same keys recomputes.
	commit, err := ComputeNextCommitment([]string{"Dnext1"}, "1")
	require.NoError(t, err)
	require.Equal(t, icp.N, commit)
}

func TestBuildInteraction(t *testing.T) {
	icp, err := BuildInception(InceptionParams{CurrentKeys: []string{"Dcurrent1"}})
	require.NoError(t, err)

	ixn, err := BuildInteraction(InteractionParams{
		Controller:        icp.I,
		PreviousEventSAID: icp.D,
		Sequence:          1,
		Anchors:           []string{"Eanchor1"},
	})
	require.NoError(t, err)
	require.Equal(t, TypeInteraction, ixn.T)
	require.Equal(t, []string{"Eanchor1"}, ixn.A)
	require.Empty(t, ixn.K)
}

func TestSequenceHexHelpers(t *testing.T) {
	e := &Event{S: "a"}
	n, err := e.SequenceInt()
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, "a", SequenceHex(10))
}
