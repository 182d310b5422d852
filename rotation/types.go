package rotation

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/aaronp/kerigo/envelope"
	"github.com/aaronp/kerigo/event"
)

// Phase is the rotation state machine's position (spec.md section 4.6):
//
//	proposed → collecting → finalizable → finalized (terminal)
//	                  ↘ aborted (terminal)
//	                  ↘ failed (terminal)
type Phase string

const (
	PhaseProposed    Phase = "proposed"
	PhaseCollecting  Phase = "collecting"
	PhaseFinalizable Phase = "finalizable"
	PhaseFinalized   Phase = "finalized"
	PhaseAborted     Phase = "aborted"
	PhaseFailed      Phase = "failed"
)

// IsTerminal reports whether p ends the rotation's lifecycle.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseFinalized, PhaseAborted, PhaseFailed:
		return true
	default:
		return false
	}
}

// Cosigner maps one external prior key index to the AID that controls it.
type Cosigner struct {
	KeyIndex int
	AID      string
	Pub      string
}

// SignerStatus is one row of the rotation status's signers[] table.
type SignerStatus struct {
	KeyIndex  int    `json:"keyIndex"`
	AID       string `json:"aid"`
	Pub       string `json:"pub"`
	Required  bool   `json:"required"`
	Signed    bool   `json:"signed"`
	Signature string `json:"signature,omitempty"`
	SeenAt    string `json:"seenAt,omitempty"`
}

// Status is the durable rotation-status document (spec.md section 4.6).
type Status struct {
	RotationID       string         `json:"rotationId"`
	Controller       string         `json:"controller"`
	Phase            Phase          `json:"phase"`
	Required         int            `json:"required"`
	RequiredExternal int            `json:"requiredExternal"`
	Collected        int            `json:"collected"`
	Missing          int            `json:"missing"`
	Signers          []SignerStatus `json:"signers"`
	Deadline         string         `json:"deadline,omitempty"`

	FinalEnvelope  *envelope.Envelope `json:"finalEnvelope,omitempty"`
	FinalEventSaid string             `json:"finalEventSaid,omitempty"`
	SigCount       int                `json:"sigCount,omitempty"`
}

// RevealInfo is the reveal portion of a Proposal (spec.md section 4.6).
type RevealInfo struct {
	NewKeys      []string `json:"newKeys"`
	NewThreshold string   `json:"newThreshold"`
	NextCommit   struct {
		N  string `json:"n"`
		Nt string `json:"nt"`
	} `json:"nextCommit"`
}

// Proposal is the canonical, persisted rotation proposal broadcast to
// required signers (spec.md section 4.6).
type Proposal struct {
	RotationID      string       `json:"rotationId"`
	Controller      string       `json:"controller"`
	PriorEvent      *event.Event `json:"priorEvent"`
	PriorKeys       []string     `json:"priorKeys"`
	PriorThreshold  string       `json:"priorThreshold"`
	Reveal          RevealInfo   `json:"reveal"`
	CanonicalDigest string       `json:"canonicalDigest"`
	Deadline        string       `json:"deadline,omitempty"`
	Note            string       `json:"note,omitempty"`
}

// Message is the envelope every rotation wire message travels in (spec.md
// section 6): a `typ` tag plus an opaque body, with an optional id used by
// the replay cache.
type Message struct {
	ID   string          `json:"id,omitempty"`
	From string          `json:"from"`
	Typ  string          `json:"typ"`
	Body json.RawMessage `json:"body"`
}

// Message type tags.
const (
	TypProposal = "keri.rot.proposal.v1"
	TypSign     = "keri.rot.sign.v1"
	TypFinalize = "keri.rot.finalize.v1"
	TypAbort    = "keri.rot.abort.v1"
)

// SignBody is the body of a `keri.rot.sign.v1` message.
type SignBody struct {
	RotationID      string `json:"rotationId"`
	Signer          string `json:"signer"`
	KeyIndex        int    `json:"keyIndex"`
	Sig             string `json:"sig"`
	Ok              bool   `json:"ok"`
	CanonicalDigest string `json:"canonicalDigest,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// FinalizeBody is the body of a `keri.rot.finalize.v1` message.
type FinalizeBody struct {
	RotationID   string `json:"rotationId"`
	RotEventSaid string `json:"rotEventSaid"`
}

// AbortBody is the body of a `keri.rot.abort.v1` message.
type AbortBody struct {
	RotationID string `json:"rotationId"`
	Reason     string `json:"reason,omitempty"`
}

// newMessage builds a wire Message, generating a random v4 id when the
// caller doesn't supply one (spec.md section 6: every message gets a
// unique id for the replay cache).
func newMessage(id, from, typ string, body interface{}) (Message, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Message{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	return Message{ID: id, From: from, Typ: typ, Body: raw}, nil
}
