package ir

import (
	"math"

	"github.com/cockroachdb/errors"
)

// ErrTypeMismatch is returned when a value does not fit its declared type.
var ErrTypeMismatch = errors.New("type mismatch")

// CheckValue reports whether v is representable as typ. Only the type's own
// range is enforced; there is no plausibility check on values.
func CheckValue(typ string, v IRValue) error {
	switch typ {
	case TypeString:
		if _, ok := v.(IRString); ok {
			return nil
		}
	case TypeBool:
		if _, ok := v.(IRBool); ok {
			return nil
		}
	case TypeU32:
		if n, ok := v.(IRInt); ok {
			if n < 0 || n > math.MaxUint32 {
				return errors.Wrapf(ErrTypeMismatch, "value %d out of u32 range", int64(n))
			}
			return nil
		}
	case TypeU64:
		if n, ok := v.(IRInt); ok {
			if n < 0 {
				return errors.Wrapf(ErrTypeMismatch, "value %d out of u64 range", int64(n))
			}
			return nil
		}
	default:
		return errors.Newf("unknown type %q", typ)
	}
	return errors.Wrapf(ErrTypeMismatch, "expected %s, got %s", typ, typeName(v))
}

func typeName(v IRValue) string {
	switch v.(type) {
	case IRString:
		return "string"
	case IRInt:
		return "integer"
	case IRBool:
		return "bool"
	case IRObject:
		return "object"
	case nil:
		return "nothing"
	default:
		return "unknown"
	}
}
