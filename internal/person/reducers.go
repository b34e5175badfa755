package person

import (
	"github.com/cockroachdb/errors"

	"github.com/roach88/personmod/internal/host"
	"github.com/roach88/personmod/internal/ir"
)

// HelloMessage is the diagnostic say_hello emits.
const HelloMessage = "Hello from PersonRegistry!"

// AddPerson inserts a new person. Any name, including empty, and any age in
// the u32 range are accepted; duplicates are allowed. A store failure is
// returned unchanged and the host rolls the call back.
func AddPerson(rc *host.ReducerContext, name string, age uint32) error {
	_, err := Table(rc).Insert(Person{ID: 0, Name: name, Age: age})
	return err
}

// SayHello emits one informational diagnostic. It never touches the table
// and never fails.
func SayHello(rc *host.ReducerContext) error {
	rc.Log.Info(HelloMessage)
	return nil
}

func addPersonReducer(rc *host.ReducerContext, args ir.IRObject) error {
	name, ok := args["name"].(ir.IRString)
	if !ok {
		return errors.Newf("add_person: name must be a string, got %T", args["name"])
	}
	age, ok := args["age"].(ir.IRInt)
	if !ok {
		return errors.Newf("add_person: age must be an integer, got %T", args["age"])
	}
	return AddPerson(rc, string(name), uint32(age))
}

func sayHelloReducer(rc *host.ReducerContext, _ ir.IRObject) error {
	return SayHello(rc)
}
