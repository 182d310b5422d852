package event

import "github.com/aaronp/kerigo/codec"

// InceptionParams are the inputs to BuildInception.
type InceptionParams struct {
	CurrentKeys      []string
	NextKeys         []string
	Transferable     bool
	KeyThreshold     string // optional, defaults to len(CurrentKeys)
	NextThreshold    string // optional, defaults to len(NextKeys)
	Witnesses        []string
	WitnessThreshold string
	Delegator        string // non-empty makes this a `dip`
	Timestamp        string
}

// BuildInception constructs an `icp` (or, with Delegator set, `dip`) event.
// The identifier `i` is the first current public key for a plain
// inception, or the event's own SAID for a delegated inception (spec.md
// section 4.3).
func BuildInception(p InceptionParams) (*Event, error) {
	if len(p.CurrentKeys) == 0 {
		return nil, ErrNoKeys
	}
	kt := p.KeyThreshold
	if kt == "" {
		kt = defaultThreshold(p.CurrentKeys)
	}
	if err := ValidateThreshold(kt, len(p.CurrentKeys)); err != nil {
		return nil, err
	}
	nt := p.NextThreshold
	if nt == "" {
		nt = defaultThreshold(p.NextKeys)
	}
	if len(p.NextKeys) > 0 {
		if err := ValidateThreshold(nt, len(p.NextKeys)); err != nil {
			return nil, err
		}
	}

	n, err := ComputeNextCommitment(p.NextKeys, nt)
	if err != nil {
		return nil, err
	}

	e := &Event{
		V:  VersionTag,
		S:  "0",
		K:  p.CurrentKeys,
		Kt: kt,
		N:  n,
		Nt: nt,
		W:  p.Witnesses,
		Wt: p.WitnessThreshold,
		Dt: p.Timestamp,
	}

	delegated := p.Delegator != ""
	if delegated {
		e.T = TypeDelegatedInception
		e.Di = p.Delegator
		e.I = codec.SAIDPlaceholder
	} else {
		e.T = TypeInception
		e.I = p.CurrentKeys[0]
	}
	e.D = codec.SAIDPlaceholder

	said, err := sealSAID(e)
	if err != nil {
		return nil, err
	}
	e.D = said
	if delegated {
		e.I = said
	}
	return e, nil
}

// RotationParams are the inputs to BuildRotation.
type RotationParams struct {
	Controller        string // `i`
	PreviousEventSAID string // `p`
	Sequence          int    // store API supplies chain.Sequence+1; see spec.md section 9
	CurrentKeys       []string
	NextKeys          []string
	KeyThreshold      string
	NextThreshold     string
	Witnesses         []string
	WitnessThreshold  string
	Delegator         string // non-empty makes this a `drt`
	Timestamp         string
}

// BuildRotation constructs a `rot` (or, with Delegator set, `drt`) event.
// The builder does not itself check the reveal against the prior
// commitment; the caller (store.RotateKeys or rotation.Coordinator)
// verifies that downstream via envelope.VerifyEnvelope.
func BuildRotation(p RotationParams) (*Event, error) {
	if len(p.CurrentKeys) == 0 {
		return nil, ErrNoKeys
	}
	kt := p.KeyThreshold
	if kt == "" {
		kt = defaultThreshold(p.CurrentKeys)
	}
	if err := ValidateThreshold(kt, len(p.CurrentKeys)); err != nil {
		return nil, err
	}
	nt := p.NextThreshold
	if nt == "" {
		nt = defaultThreshold(p.NextKeys)
	}
	if len(p.NextKeys) > 0 {
		if err := ValidateThreshold(nt, len(p.NextKeys)); err != nil {
			return nil, err
		}
	}

	n, err := ComputeNextCommitment(p.NextKeys, nt)
	if err != nil {
		return nil, err
	}

	e := &Event{
		V:  VersionTag,
		I:  p.Controller,
		S:  SequenceHex(p.Sequence),
		P:  p.PreviousEventSAID,
		K:  p.CurrentKeys,
		Kt: kt,
		N:  n,
		Nt: nt,
		W:  p.Witnesses,
		Wt: p.WitnessThreshold,
		Dt: p.Timestamp,
	}
	if p.Delegator != "" {
		e.T = TypeDelegatedRotation
		e.Di = p.Delegator
	} else {
		e.T = TypeRotation
	}
	e.D = codec.SAIDPlaceholder

	said, err := sealSAID(e)
	if err != nil {
		return nil, err
	}
	e.D = said
	return e, nil
}

// InteractionParams are the inputs to BuildInteraction.
type InteractionParams struct {
	Controller        string
	PreviousEventSAID string
	Sequence          int
	Anchors           []string
	Timestamp         string
}

// BuildInteraction constructs an `ixn` event anchoring arbitrary SAIDs
// under the controller's current signing authority.
func BuildInteraction(p InteractionParams) (*Event, error) {
	e := &Event{
		V:  VersionTag,
		T:  TypeInteraction,
		I:  p.Controller,
		S:  SequenceHex(p.Sequence),
		P:  p.PreviousEventSAID,
		A:  p.Anchors,
		Dt: p.Timestamp,
	}
	e.D = codec.SAIDPlaceholder

	said, err := sealSAID(e)
	if err != nil {
		return nil, err
	}
	e.D = said
	return e, nil
}

// sealSAID canonicalizes e (with its placeholder `d`, and `i` too when it
// is also a placeholder) and returns the computed SAID. The placeholder
// technique (spec.md section 4.1) requires the placeholder to have the
// exact length of a final SAID so canonical byte length is invariant
// under the later substitution.
func sealSAID(e *Event) (string, error) {
	b, err := codec.Canonicalize(e.ToMap())
	if err != nil {
		return "", err
	}
	return codec.ComputeSAID(b), nil
}
