package host

import (
	"fmt"
	"strings"

	"github.com/roach88/personmod/internal/ir"
)

// checkArgs verifies args against sig: every declared argument present and
// of its type, nothing undeclared. Only type ranges are enforced.
func checkArgs(sig *ir.ReducerSig, args ir.IRObject) error {
	var problems []string

	for _, a := range sig.Args {
		v, ok := args[a.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing argument %q", a.Name))
			continue
		}
		if err := ir.CheckValue(a.Type, v); err != nil {
			problems = append(problems, fmt.Sprintf("argument %q: %v", a.Name, err))
		}
	}

	for _, name := range args.SortedKeys() {
		if !declaresArg(sig, name) {
			problems = append(problems, fmt.Sprintf("unexpected argument %q", name))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &CallError{
		Code:    ErrCodeInvalidArgs,
		Reducer: sig.Name,
		Message: strings.Join(problems, "; "),
	}
}

func declaresArg(sig *ir.ReducerSig, name string) bool {
	for _, a := range sig.Args {
		if a.Name == name {
			return true
		}
	}
	return false
}
