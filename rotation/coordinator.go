package rotation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aaronp/kerigo/codec"
	"github.com/aaronp/kerigo/envelope"
	"github.com/aaronp/kerigo/event"
	"github.com/aaronp/kerigo/keys"
)

// defaultDeadline is the seven-day default await window (spec.md section 4.6).
const defaultDeadline = 7 * 24 * time.Hour

// Config is the input to Preflight. The cosigner map must cover every
// prior key index the initiator does not control.
type Config struct {
	RotEvent      *event.Event
	PriorEvent    *event.Event
	Cosigners     []Cosigner
	InitiatorKeys []envelope.SigningKey

	Transport Transport
	KV        KVStore
	AppendFn  func(*envelope.Envelope) error

	Deadline time.Duration
	Clock    func() time.Time
	Log      *zap.SugaredLogger
}

// Coordinator runs one rotation's signature collection to completion. It
// is naturally a single-consumer actor keyed by rotationId (spec.md
// section 9); this implementation serializes all status mutations behind
// one mutex rather than a task-per-rotation scheduler, matching the
// teacher's single-threaded phased Coordinator (threshold.Coordinator).
type Coordinator struct {
	mu sync.Mutex

	rotEvent   *event.Event
	priorEvent *event.Event
	canonical  []byte
	eventCesr  string

	cosigners     map[int]Cosigner
	initiatorKeys []envelope.SigningKey
	priorSn       int

	status   Status
	proposal *Proposal

	transport   Transport
	kv          KVStore
	appendFn    func(*envelope.Envelope) error
	unsubscribe func()

	replay   *replayCache
	progress *progressBus

	deadlineAt time.Time
	clock      func() time.Time
	log        *zap.SugaredLogger
}

func rotationKey(rotationID string) string { return "rotation:" + rotationID }
func proposalKey(rotationID string) string { return "rotation:" + rotationID + ":proposal" }

// Preflight validates cfg and builds a Coordinator without sending any
// messages (spec.md section 4.6, "Preflight").
func Preflight(cfg Config) (*Coordinator, error) {
	if cfg.RotEvent == nil || cfg.PriorEvent == nil {
		return nil, fmt.Errorf("rotation: RotEvent and PriorEvent are required")
	}
	priorKeys := cfg.PriorEvent.K
	priorKt, err := strconv.Atoi(cfg.PriorEvent.Kt)
	if err != nil {
		return nil, fmt.Errorf("rotation: parsing prior threshold: %w", err)
	}

	initiatorIdx := make(map[int]bool, len(cfg.InitiatorKeys))
	for _, ik := range cfg.InitiatorKeys {
		if ik.KeyIndex < 0 || ik.KeyIndex >= len(priorKeys) {
			return nil, fmt.Errorf("%w: initiator key index %d", ErrInvalidKeyIndex, ik.KeyIndex)
		}
		if initiatorIdx[ik.KeyIndex] {
			return nil, fmt.Errorf("%w: duplicate initiator key index %d", ErrIncompleteCosigners, ik.KeyIndex)
		}
		initiatorIdx[ik.KeyIndex] = true
	}

	cosigners := make(map[int]Cosigner, len(cfg.Cosigners))
	for _, c := range cfg.Cosigners {
		if c.KeyIndex < 0 || c.KeyIndex >= len(priorKeys) {
			return nil, fmt.Errorf("%w: cosigner key index %d", ErrInvalidKeyIndex, c.KeyIndex)
		}
		if _, dup := cosigners[c.KeyIndex]; dup {
			return nil, fmt.Errorf("%w: duplicate cosigner index %d", ErrIncompleteCosigners, c.KeyIndex)
		}
		if c.Pub != priorKeys[c.KeyIndex] {
			return nil, fmt.Errorf("%w: index %d", ErrSignerPubMismatch, c.KeyIndex)
		}
		cosigners[c.KeyIndex] = c
	}

	for i := range priorKeys {
		_, isCosigner := cosigners[i]
		if initiatorIdx[i] == isCosigner {
			// Either neither side covers this index, or both do.
			return nil, fmt.Errorf("%w: index %d", ErrIncompleteCosigners, i)
		}
	}

	commit, err := event.ComputeNextCommitment(cfg.RotEvent.K, cfg.RotEvent.Kt)
	if err != nil {
		return nil, err
	}
	if commit != cfg.PriorEvent.N {
		return nil, fmt.Errorf("rotation: reveal does not match prior commitment")
	}
	if cfg.RotEvent.Kt != cfg.PriorEvent.Nt {
		return nil, fmt.Errorf("rotation: reveal threshold does not match prior next threshold")
	}
	if err := event.ValidateThreshold(cfg.RotEvent.Kt, len(cfg.RotEvent.K)); err != nil {
		return nil, err
	}

	initiatorShare := len(initiatorIdx)
	requiredExternal := priorKt - initiatorShare
	if requiredExternal < 0 {
		requiredExternal = 0
	}

	signers := make([]SignerStatus, 0, len(priorKeys))
	for i, pub := range priorKeys {
		required := !initiatorIdx[i]
		aid := ""
		if c, ok := cosigners[i]; ok {
			aid = c.AID
		}
		signers = append(signers, SignerStatus{KeyIndex: i, AID: aid, Pub: pub, Required: required})
	}
	sort.Slice(signers, func(i, j int) bool { return signers[i].KeyIndex < signers[j].KeyIndex })

	priorSn, err := cfg.PriorEvent.SequenceInt()
	if err != nil {
		return nil, err
	}

	canonical, err := envelope.CanonicalBytes(cfg.RotEvent)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}

	c := &Coordinator{
		rotEvent:      cfg.RotEvent,
		priorEvent:    cfg.PriorEvent,
		canonical:     canonical,
		eventCesr:     codec.ToQb64(canonical),
		cosigners:     cosigners,
		initiatorKeys: cfg.InitiatorKeys,
		priorSn:       priorSn,
		transport:     cfg.Transport,
		kv:            cfg.KV,
		appendFn:      cfg.AppendFn,
		replay:        newReplayCache(replayCacheCap),
		progress:      newProgressBus(),
		deadlineAt:    clock().Add(deadline),
		clock:         clock,
		log:           log,
		status: Status{
			RotationID:       cfg.RotEvent.D,
			Controller:       cfg.RotEvent.I,
			Phase:            PhaseProposed,
			Required:         priorKt,
			RequiredExternal: requiredExternal,
			Collected:        0,
			Missing:          requiredExternal,
			Signers:          signers,
		},
	}
	return c, nil
}

// Subscribe registers a progress listener.
func (c *Coordinator) Subscribe(l Listener) {
	c.progress.Subscribe(l)
}

// Status returns a snapshot copy of the current status document.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start runs preflight's fast path immediately if the initiator alone
// meets the threshold, otherwise persists the proposal, broadcasts it to
// required signers, and begins listening for signature messages on the
// controller's transport channel (spec.md section 4.6).
func (c *Coordinator) Start(ctx context.Context) (Status, error) {
	c.mu.Lock()
	initiatorShare := len(c.initiatorKeys)
	fastPath := initiatorShare >= c.status.Required
	c.mu.Unlock()

	if fastPath {
		return c.runFastPath()
	}
	return c.runSlowPath(ctx)
}

func (c *Coordinator) runFastPath() (Status, error) {
	env, err := envelope.SignEnvelope(c.rotEvent, envelope.SignerSet{Kind: envelope.SignerSetPrior, Sn: c.priorSn}, c.initiatorKeys)
	if err != nil {
		return Status{}, err
	}
	if _, err := envelope.VerifyEnvelope(env, c.priorEvent, nil); err != nil {
		return Status{}, err
	}
	if c.appendFn != nil {
		if err := c.appendFn(env); err != nil {
			return Status{}, err
		}
	}

	c.mu.Lock()
	c.status.Phase = PhaseFinalized
	c.status.FinalEnvelope = env
	c.status.FinalEventSaid = c.rotEvent.D
	c.status.SigCount = len(env.Signatures)
	status := c.status
	c.mu.Unlock()

	c.persistStatus()
	c.progress.emit(Event{Kind: ProgressFinalized, RotationID: status.RotationID, Message: "fast path finalized"})
	c.progress.close()
	return status, nil
}

func (c *Coordinator) runSlowPath(ctx context.Context) (Status, error) {
	reveal := RevealInfo{NewKeys: c.rotEvent.K, NewThreshold: c.rotEvent.Kt}
	reveal.NextCommit.N = c.rotEvent.N
	reveal.NextCommit.Nt = c.rotEvent.Nt

	proposal := &Proposal{
		RotationID:      c.status.RotationID,
		Controller:      c.status.Controller,
		PriorEvent:      c.priorEvent,
		PriorKeys:       c.priorEvent.K,
		PriorThreshold:  c.priorEvent.Kt,
		Reveal:          reveal,
		CanonicalDigest: c.rotEvent.D,
	}

	c.mu.Lock()
	c.proposal = proposal
	c.status.Phase = PhaseCollecting
	status := c.status
	c.mu.Unlock()

	c.persistProposal()
	c.persistStatus()

	if c.transport != nil {
		msgs, unsubscribe, err := c.transport.Subscribe(c.status.Controller)
		if err != nil {
			return Status{}, err
		}
		c.mu.Lock()
		c.unsubscribe = unsubscribe
		c.mu.Unlock()
		go c.consume(msgs)

		body := proposalBody(proposal)
		for _, s := range status.Signers {
			if !s.Required {
				continue
			}
			msg, err := newMessage("", c.status.Controller, TypProposal, body)
			if err != nil {
				return Status{}, err
			}
			if sendErr := c.transport.Send(s.AID, msg); sendErr != nil {
				c.progress.emit(Event{Kind: ProgressSendError, RotationID: c.status.RotationID, Message: sendErr.Error()})
			} else {
				c.progress.emit(Event{Kind: ProgressSendOk, RotationID: c.status.RotationID, Message: "proposal sent to " + s.AID})
			}
		}
	}

	_ = ctx
	return status, nil
}

func proposalBody(p *Proposal) map[string]interface{} {
	return map[string]interface{}{
		"rotationId":      p.RotationID,
		"controller":      p.Controller,
		"priorEvent":      p.PriorEvent,
		"priorKeys":       p.PriorKeys,
		"priorThreshold":  p.PriorThreshold,
		"reveal":          p.Reveal,
		"canonicalDigest": p.CanonicalDigest,
		"deadline":        p.Deadline,
		"note":            p.Note,
	}
}

func (c *Coordinator) consume(msgs <-chan Message) {
	for msg := range msgs {
		if msg.Typ != TypSign {
			continue
		}
		if err := c.Ingest(msg); err != nil {
			c.log.Debugw("rotation ingest error", "err", err)
		}
	}
}

// Ingest processes one `keri.rot.sign.v1` message, implementing steps
// 1-12 of spec.md section 4.6.
func (c *Coordinator) Ingest(msg Message) error {
	msgKey := msg.ID
	if msgKey == "" {
		digest := codec.Digest(msg.Body)
		msgKey = fmt.Sprintf("%s|%s|%s", msg.From, msg.Typ, codec.ToQb64(digest[:]))
	}
	if c.replay.seenBefore(msgKey) {
		return nil // step 1: silent drop
	}

	var body SignBody
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return err
	}

	c.mu.Lock()

	if body.RotationID != c.status.RotationID {
		c.emitErrorLocked("rotation id mismatch")
		c.mu.Unlock()
		return ErrRotationWrongID
	}
	if c.status.Phase != PhaseCollecting && c.status.Phase != PhaseFinalizable {
		c.emitErrorLocked("not accepting signatures in current phase")
		c.mu.Unlock()
		return ErrWrongPhase
	}
	if body.KeyIndex < 0 || body.KeyIndex >= len(c.priorEvent.K) {
		c.emitErrorLocked("signature key index out of range")
		c.mu.Unlock()
		return ErrInvalidKeyIndex
	}
	if c.proposal == nil || c.proposal.CanonicalDigest != c.rotEvent.D {
		c.emitErrorLocked("no matching cached proposal")
		c.mu.Unlock()
		return fmt.Errorf("rotation: no cached proposal")
	}

	idx := findSigner(c.status.Signers, body.KeyIndex)
	if idx < 0 {
		c.emitErrorLocked("no signer mapped to key index")
		c.mu.Unlock()
		return ErrUnknownSigner
	}
	signer := &c.status.Signers[idx]
	if signer.Signed {
		c.emitErrorLocked("signer already signed")
		c.mu.Unlock()
		return ErrAlreadySigned
	}
	if signer.AID != body.Signer || msg.From != signer.AID {
		c.emitErrorLocked("signer AID mismatch")
		c.mu.Unlock()
		return ErrSignerAidMismatch
	}
	if !body.Ok {
		c.progressEmitLocked(Event{Kind: ProgressSignatureRejected, RotationID: c.status.RotationID,
			Message: fmt.Sprintf("signer %s declined: %s", body.Signer, body.Reason)})
		c.mu.Unlock()
		return nil
	}
	if body.CanonicalDigest != c.proposal.CanonicalDigest {
		c.emitErrorLocked("canonical digest mismatch")
		c.mu.Unlock()
		return ErrStaleProposalDigest
	}
	ok, err := keys.Verify(body.Sig, c.canonical, c.priorEvent.K[body.KeyIndex])
	if err != nil || !ok {
		c.emitErrorLocked("signature verification failed")
		c.mu.Unlock()
		return fmt.Errorf("rotation: signature verification failed for index %d", body.KeyIndex)
	}
	for i := range c.status.Signers {
		if c.status.Signers[i].Signed && constantTimeStringEqual(c.status.Signers[i].Signature, body.Sig) {
			c.emitErrorLocked("duplicate signature")
			c.mu.Unlock()
			return ErrDuplicateSignature
		}
	}

	signer.Signed = true
	signer.Signature = body.Sig
	signer.SeenAt = c.clock().Format(time.RFC3339)

	if signer.Required {
		collected := 0
		for _, s := range c.status.Signers {
			if s.Required && s.Signed {
				collected++
			}
		}
		c.status.Collected = collected
		missing := c.status.RequiredExternal - collected
		if missing < 0 {
			missing = 0
		}
		c.status.Missing = missing
		if collected >= c.status.RequiredExternal {
			c.status.Phase = PhaseFinalizable
		}
		c.progressEmitLocked(Event{Kind: ProgressSignatureAccepted, RotationID: c.status.RotationID,
			Message: fmt.Sprintf("signature accepted from %s @%d", body.Signer, body.KeyIndex)})
	} else {
		c.progressEmitLocked(Event{Kind: ProgressSignatureStoredNonreq, RotationID: c.status.RotationID,
			Message: fmt.Sprintf("non-required signature stored from %s @%d", body.Signer, body.KeyIndex)})
	}

	shouldFinalize := c.status.Phase == PhaseFinalizable
	c.persistStatusLocked()
	c.mu.Unlock()

	if shouldFinalize {
		c.tryFinalizeUnlocked()
	}
	return nil
}

func findSigner(signers []SignerStatus, keyIndex int) int {
	for i, s := range signers {
		if s.KeyIndex == keyIndex {
			return i
		}
	}
	return -1
}

// emitErrorLocked emits an `error` progress event; caller holds c.mu.
func (c *Coordinator) emitErrorLocked(msg string) {
	c.progressEmitLocked(Event{Kind: ProgressError, RotationID: c.status.RotationID, Message: msg})
}

func (c *Coordinator) progressEmitLocked(ev Event) {
	c.progress.emit(ev)
}

// tryFinalizeUnlocked re-checks the phase, merges cosigner and self
// signatures, verifies the final envelope, appends it, and publishes the
// finalize message (spec.md section 4.6, "tryFinalize").
func (c *Coordinator) tryFinalizeUnlocked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.tryFinalizeLocked(); err != nil {
		c.log.Debugw("rotation finalize failed", "err", err)
	}
}

func (c *Coordinator) tryFinalizeLocked() error {
	if c.status.Phase != PhaseFinalizable {
		return ErrRotationNotFinalizable
	}

	sigs := make([]envelope.Signature, 0, len(c.status.Signers))
	for _, s := range c.status.Signers {
		if s.Required && s.Signed {
			sigs = append(sigs, envelope.Signature{
				KeyIndex:  s.KeyIndex,
				Qb64Sig:   s.Signature,
				SignerSet: envelope.SignerSet{Kind: envelope.SignerSetPrior, Sn: c.priorSn},
			})
		}
	}

	selfEnv, err := envelope.SignEnvelope(c.rotEvent, envelope.SignerSet{Kind: envelope.SignerSetPrior, Sn: c.priorSn}, c.initiatorKeys)
	if err != nil {
		return err
	}

	merged := map[int]envelope.Signature{}
	for _, sig := range sigs {
		merged[sig.KeyIndex] = sig
	}
	for _, sig := range selfEnv.Signatures {
		merged[sig.KeyIndex] = sig // initiator signatures are last-write-wins
	}
	finalSigs := make([]envelope.Signature, 0, len(merged))
	for _, sig := range merged {
		finalSigs = append(finalSigs, sig)
	}
	sort.Slice(finalSigs, func(i, j int) bool { return finalSigs[i].KeyIndex < finalSigs[j].KeyIndex })

	finalEnv := &envelope.Envelope{Event: c.rotEvent, EventCesr: c.eventCesr, Signatures: finalSigs}
	result, err := envelope.VerifyEnvelope(finalEnv, c.priorEvent, nil)
	if err != nil {
		c.progressEmitLocked(Event{Kind: ProgressFinalizeInvalid, RotationID: c.status.RotationID, Message: err.Error()})
		return err
	}
	if !result.Valid {
		c.progressEmitLocked(Event{Kind: ProgressFinalizeInvalid, RotationID: c.status.RotationID,
			Message: fmt.Sprintf("insufficient signatures %d/%d", result.ValidSignatures, result.RequiredSignatures)})
		return ErrRotationNotFinalizable
	}

	if c.appendFn != nil {
		if err := c.appendFn(finalEnv); err != nil {
			return err
		}
	}

	c.status.Phase = PhaseFinalized
	c.status.FinalEnvelope = finalEnv
	c.status.FinalEventSaid = c.rotEvent.D
	c.status.SigCount = len(finalSigs)
	c.persistStatusLocked()

	if c.transport != nil {
		finMsg, err := newMessage("", c.status.Controller, TypFinalize, FinalizeBody{RotationID: c.status.RotationID, RotEventSaid: c.rotEvent.D})
		if err == nil {
			if sendErr := c.transport.Send(c.status.Controller, finMsg); sendErr != nil {
				c.progressEmitLocked(Event{Kind: ProgressSendError, RotationID: c.status.RotationID, Message: sendErr.Error()})
			}
		}
	}
	c.progressEmitLocked(Event{Kind: ProgressFinalized, RotationID: c.status.RotationID, Message: "finalized"})
	c.progress.close()

	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	return nil
}

// AwaitAll polls with linear backoff (800ms, +400ms, cap 5000ms) until the
// rotation reaches a terminal phase or its deadline elapses (spec.md
// section 4.6).
func (c *Coordinator) AwaitAll(ctx context.Context) (Status, error) {
	backoff := 800 * time.Millisecond
	const step = 400 * time.Millisecond
	const cap_ = 5000 * time.Millisecond
	warnedNear := false

	for {
		status := c.Status()
		if status.Phase.IsTerminal() {
			return status, nil
		}

		c.mu.Lock()
		deadline := c.deadlineAt
		c.mu.Unlock()
		now := c.clock()
		if now.After(deadline) {
			c.mu.Lock()
			c.status.Phase = PhaseFailed
			final := c.status
			c.mu.Unlock()
			if c.unsubscribe != nil {
				c.unsubscribe()
			}
			c.persistStatus()
			c.progress.close()
			return final, ErrRotationTimedOut
		}
		if !warnedNear && deadline.Sub(now) <= 24*time.Hour {
			warnedNear = true
			c.progress.emit(Event{Kind: ProgressDeadlineNear, RotationID: c.status.RotationID, Message: "deadline within 24h"})
		}

		select {
		case <-ctx.Done():
			return c.Status(), ctx.Err()
		case <-time.After(backoff):
		}
		backoff += step
		if backoff > cap_ {
			backoff = cap_
		}
	}
}

// Abort transitions the rotation to aborted, broadcasts an abort message,
// and unsubscribes. Idempotent if already terminal.
func (c *Coordinator) Abort(reason string) {
	c.mu.Lock()
	if c.status.Phase.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.status.Phase = PhaseAborted
	rotationID := c.status.RotationID
	controller := c.status.Controller
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	c.persistStatus()
	if c.transport != nil {
		msg, err := newMessage("", controller, TypAbort, AbortBody{RotationID: rotationID, Reason: reason})
		if err == nil {
			if sendErr := c.transport.Send(controller, msg); sendErr != nil {
				c.progress.emit(Event{Kind: ProgressSendError, RotationID: rotationID, Message: sendErr.Error()})
			}
		}
	}
	c.progress.emit(Event{Kind: ProgressAborted, RotationID: rotationID, Message: reason})
	c.progress.close()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Resend re-sends the persisted proposal to every required signer that
// has not yet signed. Never re-sends to already-signed signers.
func (c *Coordinator) Resend() {
	c.mu.Lock()
	proposal := c.proposal
	signers := append([]SignerStatus(nil), c.status.Signers...)
	rotationID := c.status.RotationID
	c.mu.Unlock()

	if proposal == nil || c.transport == nil {
		return
	}
	body := proposalBody(proposal)
	for _, s := range signers {
		if !s.Required || s.Signed {
			continue
		}
		msg, err := newMessage("", proposal.Controller, TypProposal, body)
		if err != nil {
			continue
		}
		if err := c.transport.Send(s.AID, msg); err != nil {
			c.progress.emit(Event{Kind: ProgressSendError, RotationID: rotationID, Message: err.Error()})
		}
	}
	c.progress.emit(Event{Kind: ProgressResendProposal, RotationID: rotationID, Message: "proposal resent"})
}

func (c *Coordinator) persistStatus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistStatusLocked()
}

func (c *Coordinator) persistStatusLocked() {
	if c.kv == nil {
		return
	}
	raw, err := json.Marshal(c.status)
	if err != nil {
		return
	}
	c.kv.Set(rotationKey(c.status.RotationID), raw)
}

func (c *Coordinator) persistProposal() {
	if c.kv == nil || c.proposal == nil {
		return
	}
	raw, err := json.Marshal(c.proposal)
	if err != nil {
		return
	}
	c.kv.Set(proposalKey(c.proposal.RotationID), raw)
}
