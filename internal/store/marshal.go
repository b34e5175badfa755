package store

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/personmod/internal/ir"
)

// marshalArgs converts args to canonical JSON TEXT for storage.
func marshalArgs(args ir.IRObject) (string, error) {
	if args == nil {
		args = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", errors.Wrap(err, "marshal args")
	}
	return string(data), nil
}

// unmarshalArgs parses canonical JSON TEXT into an IRObject. Integers are
// decoded through json.Number, so values above 2^53 keep their precision.
func unmarshalArgs(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, errors.Wrap(err, "unmarshal args")
	}
	return obj, nil
}

func marshalCaller(c ir.Caller) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return "", errors.Wrap(err, "marshal caller")
	}
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalCaller(data string) (ir.Caller, error) {
	var c ir.Caller
	if data == "" || data == "{}" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return ir.Caller{}, errors.Wrap(err, "unmarshal caller")
	}
	return c, nil
}
