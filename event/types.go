package event

import "strconv"

// Event kinds (spec.md section 3).
const (
	TypeInception          = "icp"
	TypeRotation           = "rot"
	TypeInteraction        = "ixn"
	TypeDelegatedInception = "dip"
	TypeDelegatedRotation  = "drt"
)

// VersionTag is the fixed version string carried in every event's `v` field.
const VersionTag = "KERI10JSON0001aa_"

// Event is a KERI key event. Fields follow spec.md section 3 exactly;
// json tags match the wire field names and use omitempty so that absent
// optional fields (e.g. `p` on inception) are left out of the stored JSON.
// Canonical bytes are built from ToMap, not from these tags.
type Event struct {
	V  string   `json:"v"`
	T  string   `json:"t"`
	D  string   `json:"d"`
	I  string   `json:"i"`
	S  string   `json:"s"`
	P  string   `json:"p,omitempty"`
	K  []string `json:"k,omitempty"`
	Kt string   `json:"kt,omitempty"`
	N  string   `json:"n,omitempty"`
	Nt string   `json:"nt,omitempty"`
	W  []string `json:"w,omitempty"`
	Wt string   `json:"wt,omitempty"`
	A  []string `json:"a,omitempty"`
	Di string   `json:"di,omitempty"`
	Dt string   `json:"dt,omitempty"`
}

// IsEstablishment reports whether the event changes signing authority.
func (e *Event) IsEstablishment() bool {
	switch e.T {
	case TypeInception, TypeRotation, TypeDelegatedInception, TypeDelegatedRotation:
		return true
	default:
		return false
	}
}

// SequenceInt parses the hex sequence field `s` into an int (spec.md
// section 9: `s` is hex in the event, arithmetic uses base-10 in code).
func (e *Event) SequenceInt() (int, error) {
	n, err := strconv.ParseInt(e.S, 16, 64)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// SequenceHex renders a base-10 sequence number as the event's hex `s` field.
func SequenceHex(n int) string {
	return strconv.FormatInt(int64(n), 16)
}

// ToMap converts the event to the ordered-field map used for
// canonicalization. Only fields that are meaningful for this event's type
// are included; zero-value optional fields are omitted entirely (not
// emitted as null or empty string/array), matching spec.md's event shape.
func (e *Event) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"v": e.V,
		"t": e.T,
		"d": e.D,
		"i": e.I,
		"s": e.S,
	}
	if e.P != "" {
		m["p"] = e.P
	}
	if len(e.K) > 0 {
		m["k"] = stringsToIface(e.K)
		m["kt"] = e.Kt
	}
	if e.N != "" {
		m["n"] = e.N
		m["nt"] = e.Nt
	}
	if len(e.W) > 0 {
		m["w"] = stringsToIface(e.W)
		m["wt"] = e.Wt
	}
	if len(e.A) > 0 {
		m["a"] = stringsToIface(e.A)
	}
	if e.Di != "" {
		m["di"] = e.Di
	}
	if e.Dt != "" {
		m["dt"] = e.Dt
	}
	return m
}

func stringsToIface(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
