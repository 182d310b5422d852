package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Canonicalize produces a deterministic byte sequence for v: object keys
// sorted lexicographically, no insignificant whitespace, stable number and
// string encodings. It is insensitive to the key order of the input value
// (maps are always re-sorted), matching RFC 8785 JCS semantics.
func Canonicalize(v interface{}) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf, err := appendCanonical(buf, v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func appendCanonical(buf []byte, v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if val {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case string:
		return appendCanonicalString(buf, val)
	case int:
		return append(buf, strconv.Itoa(val)...), nil
	case int64:
		return append(buf, strconv.FormatInt(val, 10)...), nil
	case float64:
		// Canonical JSON numbers in kerits events are always integral
		// (sequence counts, timestamps are strings); reject anything else
		// rather than silently losing precision.
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("%w: non-integral number %v", ErrUnserializable, val)
		}
		return append(buf, strconv.FormatInt(int64(val), 10)...), nil
	case map[string]interface{}:
		return appendCanonicalObject(buf, val)
	case []interface{}:
		return appendCanonicalArray(buf, val)
	case []string:
		arr := make([]interface{}, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return appendCanonicalArray(buf, arr)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrUnserializable, v)
	}
}

func appendCanonicalObject(buf []byte, m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf = append(buf, '{')
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		buf, err = appendCanonicalString(buf, k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, ':')
		buf, err = appendCanonical(buf, m[k])
		if err != nil {
			return nil, err
		}
	}
	buf = append(buf, '}')
	return buf, nil
}

func appendCanonicalArray(buf []byte, arr []interface{}) ([]byte, error) {
	buf = append(buf, '[')
	for i, v := range arr {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		buf, err = appendCanonical(buf, v)
		if err != nil {
			return nil, err
		}
	}
	buf = append(buf, ']')
	return buf, nil
}

func appendCanonicalString(buf []byte, s string) ([]byte, error) {
	// encoding/json's string escaping is stable and matches JCS for the
	// ASCII-heavy alphabet kerits events use (qb64 codes, hex, ISO-8601).
	enc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnserializable, err)
	}
	return append(buf, enc...), nil
}
