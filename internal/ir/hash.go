package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"
	"slices"

	"github.com/cockroachdb/errors"
)

// Domain prefixes for content-addressed ids. The version suffix allows the
// algorithm to change without colliding with old ids.
const (
	DomainInvocation = "personmod/invocation/v1"
	DomainCompletion = "personmod/completion/v1"
	DomainModule     = "personmod/module/v1"
	DomainState      = "personmod/state/v1"
)

// newDomainHash starts a SHA-256 with domain separation:
// SHA256(domain || 0x00 || data...).
func newDomainHash(domain string) hash.Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return h
}

func hashWithDomain(domain string, data []byte) string {
	h := newDomainHash(domain)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationID computes the id of a call-log invocation. The caller is not
// part of the id: the id says what ran, not who asked.
func InvocationID(requestID, reducer string, args IRObject, seq int64) (string, error) {
	if args == nil {
		args = IRObject{}
	}
	canonical, err := MarshalCanonical(IRObject{
		"request_id": IRString(requestID),
		"reducer":    IRString(reducer),
		"args":       args,
		"seq":        IRInt(seq),
	})
	if err != nil {
		return "", errors.Wrap(err, "invocation id")
	}
	return hashWithDomain(DomainInvocation, canonical), nil
}

// CompletionID computes the id of a call-log completion.
func CompletionID(invocationID, outcome, errMsg string, seq int64) (string, error) {
	canonical, err := MarshalCanonical(IRObject{
		"invocation_id": IRString(invocationID),
		"outcome":       IRString(outcome),
		"error":         IRString(errMsg),
		"seq":           IRInt(seq),
	})
	if err != nil {
		return "", errors.Wrap(err, "completion id")
	}
	return hashWithDomain(DomainCompletion, canonical), nil
}

// ModuleHash fingerprints a module definition. Struct field and slice order
// are fixed, so encoding/json output is stable here.
func ModuleHash(def *ModuleDef) (string, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return "", errors.Wrap(err, "module hash")
	}
	return hashWithDomain(DomainModule, data), nil
}

// StateHash fingerprints table contents. Tables are visited in name order;
// rows must already be ordered by primary key.
func StateHash(tables map[string][]IRObject) (string, error) {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	slices.Sort(names)

	h := newDomainHash(DomainState)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0x00})
		for i, row := range tables[name] {
			canonical, err := MarshalCanonical(row)
			if err != nil {
				return "", errors.Wrapf(err, "state hash: %s[%d]", name, i)
			}
			h.Write(canonical)
			h.Write([]byte{'\n'})
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MustInvocationID is like InvocationID but panics on error.
// Use only in tests or with known-good input.
func MustInvocationID(requestID, reducer string, args IRObject, seq int64) string {
	id, err := InvocationID(requestID, reducer, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}
