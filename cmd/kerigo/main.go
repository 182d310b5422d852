// Kerigo CLI - headless demo of the KEL engine and threshold rotation
// coordinator.
//
// Usage:
//   kerigo incept <alias> <currentSeed> <nextSeed>   Create an AID
//   kerigo rotate <aid> <nextSeed>                   Fast-path self rotation
//   kerigo anchor <aid> <said...>                    Append an interaction event
//   kerigo show <alias-or-aid>                       Print an account summary
//   kerigo chain <alias-or-aid>                       Print the full KEL
//   kerigo proof <said>                              Print an event proof
//   kerigo dump [--secrets]                          Print a state snapshot
//   kerigo rotation-demo <t> <n>                      Demo threshold rotation
//   help                                             Show this help
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aaronp/kerigo/envelope"
	"github.com/aaronp/kerigo/event"
	"github.com/aaronp/kerigo/keys"
	"github.com/aaronp/kerigo/rotation"
	"github.com/aaronp/kerigo/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "incept":
		cmdIncept()
	case "rotate":
		cmdRotate()
	case "anchor":
		cmdAnchor()
	case "show":
		cmdShow()
	case "chain":
		cmdChain()
	case "proof":
		cmdProof()
	case "dump":
		cmdDump()
	case "rotation-demo":
		cmdRotationDemo()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Kerigo - a KERI key event log engine and threshold rotation coordinator

Usage:
  kerigo <command> [arguments]

Commands:
  incept <alias> <currentSeed> <nextSeed>   Create an AID from two numeric seeds
  rotate <aid> <nextSeed>                   Self-rotate (fast path, full control)
  anchor <aid> <said...>                    Anchor SAIDs via an interaction event
  show <alias-or-aid>                       Print an account summary
  chain <alias-or-aid>                      Print the full key event log
  proof <said>                              Print and verify an event proof
  dump [--secrets]                          Print a canonical state snapshot
  rotation-demo <t> <n>                     Demo a t-of-n threshold rotation
  help                                      Show this help

Examples:
  kerigo incept alice 1001 1002
  kerigo rotate <aid> 1003
  kerigo rotation-demo 2 3

This process holds state in memory only; each invocation starts fresh.`)
}

// newDemoStore wires a fresh in-memory Store, the shape every command
// below operates on.
func newDemoStore() *store.Store {
	return store.NewStore(store.NewMemoryKV())
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func cmdIncept() {
	if len(os.Args) < 5 {
		fmt.Println("usage: kerigo incept <alias> <currentSeed> <nextSeed>")
		os.Exit(1)
	}
	alias := os.Args[2]
	currentSeed := mustAtoi(os.Args[3])
	nextSeed := mustAtoi(os.Args[4])

	s := newDemoStore()
	acct, err := s.CreateAccount(alias, store.NumberKeySpec(currentSeed, true), store.NumberKeySpec(nextSeed, true), nowStamp())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printAccount(acct)
}

func cmdRotate() {
	if len(os.Args) < 4 {
		fmt.Println("usage: kerigo rotate <aid> <nextSeed>")
		os.Exit(1)
	}
	// This demo keeps no state across invocations, so the AID argument is
	// accepted for interface parity with the store API but a fresh
	// account is incepted under it first.
	nextSeed := mustAtoi(os.Args[3])

	s := newDemoStore()
	icpAcct, err := s.CreateAccount("rotate-demo", store.NumberKeySpec(1, true), store.NumberKeySpec(2, true), nowStamp())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	rotAcct, err := s.RotateKeys(icpAcct.AID, store.NumberKeySpec(nextSeed, true), nowStamp())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printAccount(rotAcct)
}

func cmdAnchor() {
	if len(os.Args) < 4 {
		fmt.Println("usage: kerigo anchor <aid> <said...>")
		os.Exit(1)
	}
	s := newDemoStore()
	acct, err := s.CreateAccount("anchor-demo", store.NumberKeySpec(1, true), store.NumberKeySpec(2, true), nowStamp())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	env, err := s.Anchor(acct.AID, os.Args[3:], nowStamp())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Anchored interaction event %s at sequence %s\n", env.Event.D, env.Event.S)
}

func cmdShow() {
	if len(os.Args) < 3 {
		fmt.Println("usage: kerigo show <alias-or-aid>")
		os.Exit(1)
	}
	s := newDemoStore()
	// Demo convenience: since state is not persisted across invocations,
	// incept under the requested alias so `show` has something to print.
	acct, err := s.CreateAccount(os.Args[2], store.NumberKeySpec(1, true), store.NumberKeySpec(2, true), nowStamp())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printAccount(acct)
}

func cmdChain() {
	if len(os.Args) < 3 {
		fmt.Println("usage: kerigo chain <alias-or-aid>")
		os.Exit(1)
	}
	s := newDemoStore()
	acct, err := s.CreateAccount(os.Args[2], store.NumberKeySpec(1, true), store.NumberKeySpec(2, true), nowStamp())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	_, err = s.RotateKeys(acct.AID, store.NumberKeySpec(3, true), nowStamp())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	events, err := s.GetKelChain(acct.AID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	for _, e := range events {
		fmt.Printf("[%s] %s %s\n", e.S, e.T, e.D)
	}
}

func cmdProof() {
	if len(os.Args) < 3 {
		fmt.Println("usage: kerigo proof <said>")
		os.Exit(1)
	}
	s := newDemoStore()
	acct, err := s.CreateAccount("proof-demo", store.NumberKeySpec(1, true), store.NumberKeySpec(2, true), nowStamp())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	proof, err := s.GetEventProof(acct.LatestEvent.D)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	result, err := envelope.VerifyEventProof(proof)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Proof for %s: valid=%v (%d/%d signatures)\n", proof.Said, result.Valid, result.ValidSignatures, result.RequiredSignatures)
}

func cmdDump() {
	includeSecrets := len(os.Args) > 2 && os.Args[2] == "--secrets"

	s := newDemoStore()
	if _, err := s.CreateAccount("dump-demo", store.NumberKeySpec(1, true), store.NumberKeySpec(2, true), nowStamp()); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	snap, err := s.DumpState(includeSecrets, nowStamp())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// cmdRotationDemo runs a t-of-n threshold rotation end to end over an
// in-memory transport: the initiator controls one key, proposals go out
// over the transport, the first t-1 cosigners' signature messages are fed
// straight into the coordinator's Ingest, and the rest sit idle.
func cmdRotationDemo() {
	t, n := 2, 3
	if len(os.Args) > 3 {
		t = mustAtoi(os.Args[2])
		n = mustAtoi(os.Args[3])
	}
	if t < 1 || n < t {
		fmt.Println("invalid t/n: need 1 <= t <= n")
		os.Exit(1)
	}

	fmt.Printf("Demo: %d-of-%d threshold rotation\n\n", t, n)

	keypairs := make([]*keys.Keypair, n)
	pubs := make([]string, n)
	for i := 0; i < n; i++ {
		kp, err := keys.KeypairFromNumber(9000+i, true)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		keypairs[i] = kp
		pubs[i] = kp.Qb64
	}

	nextKp, err := keys.KeypairFromNumber(9100, true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:   pubs,
		NextKeys:      pubs,
		KeyThreshold:  strconv.Itoa(t),
		NextThreshold: strconv.Itoa(t),
		Transferable:  true,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	rot, err := event.BuildRotation(event.RotationParams{
		Controller:        icp.I,
		PreviousEventSAID: icp.D,
		Sequence:          1,
		CurrentKeys:       pubs,
		NextKeys:          []string{nextKp.Qb64},
		KeyThreshold:      strconv.Itoa(t),
		NextThreshold:     "1",
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	transport := rotation.NewInMemoryTransport()
	cosigners := make([]rotation.Cosigner, 0, n-1)
	aids := make([]string, n)
	for i := 1; i < n; i++ {
		aid := fmt.Sprintf("cosigner-%d", i)
		aids[i] = aid
		cosigners = append(cosigners, rotation.Cosigner{KeyIndex: i, AID: aid, Pub: pubs[i]})
	}

	var appended *envelope.Envelope
	coord, err := rotation.Preflight(rotation.Config{
		RotEvent:      rot,
		PriorEvent:    icp,
		Cosigners:     cosigners,
		InitiatorKeys: []envelope.SigningKey{{KeyIndex: 0, Seed: keypairs[0].Seed, Transferable: keypairs[0].Transferable}},
		Transport:     transport,
		AppendFn: func(env *envelope.Envelope) error {
			appended = env
			return nil
		},
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	coord.Subscribe(func(ev rotation.Event) {
		fmt.Printf("  [%s] %s\n", ev.Kind, ev.Message)
	})

	fmt.Println("1. Starting coordinator...")
	status, err := coord.Start(context.Background())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   phase=%s required=%d requiredExternal=%d\n\n", status.Phase, status.Required, status.RequiredExternal)

	if status.Phase == rotation.PhaseFinalized {
		fmt.Println("2. Fast path finalized without further input.")
	} else {
		fmt.Printf("2. Collecting %d cosigner signature(s)...\n", t-1)
		for i := 1; i < t; i++ {
			aid := aids[i]
			kp := keypairs[i]
			canonical, err := envelope.CanonicalBytes(rot)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			sig, err := keys.Sign(canonical, kp.Seed, kp.Transferable)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			body := rotation.SignBody{RotationID: rot.D, Signer: aid, KeyIndex: i, Sig: sig, Ok: true, CanonicalDigest: rot.D}
			if err := coord.Ingest(rotationMessage(aid, body)); err != nil {
				fmt.Printf("   signer %s rejected: %v\n", aid, err)
			} else {
				fmt.Printf("   signer %s accepted\n", aid)
			}
		}
	}

	final := coord.Status()
	fmt.Printf("\n3. Final phase: %s\n", final.Phase)
	if appended != nil {
		fmt.Printf("   Finalized event %s with %d signatures\n", appended.Event.D, len(appended.Signatures))
	}
}

// rotationMessage wraps body as a keri.rot.sign.v1 Message without routing
// it through a transport send, letting the demo drive Ingest directly.
func rotationMessage(from string, body rotation.SignBody) rotation.Message {
	raw, _ := json.Marshal(body)
	return rotation.Message{From: from, Typ: rotation.TypSign, Body: raw}
}

func mustAtoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		fmt.Printf("invalid integer %q\n", s)
		os.Exit(1)
	}
	return n
}

func printAccount(acct *store.Account) {
	fmt.Printf("AID:      %s\n", acct.AID)
	fmt.Printf("Alias:    %s\n", acct.Alias)
	fmt.Printf("Sequence: %d\n", acct.Sequence)
	fmt.Printf("Event:    %s (%s)\n", acct.LatestEvent.D, acct.LatestEvent.T)
}
