package person

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/roach88/personmod/internal/host"
	"github.com/roach88/personmod/internal/ir"
	"github.com/roach88/personmod/internal/store"
)

// Person is one row of the person table. ID is assigned by the table's
// sequence on insert; whatever the caller sets is a placeholder.
type Person struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Age  uint32 `json:"age"`
}

func (p Person) row() ir.IRObject {
	return ir.IRObject{
		"id":   ir.IRInt(int64(p.ID)),
		"name": ir.IRString(p.Name),
		"age":  ir.IRInt(int64(p.Age)),
	}
}

// FromRow converts a stored row into a Person.
func FromRow(row ir.IRObject) (Person, error) {
	id, ok := row["id"].(ir.IRInt)
	if !ok || id < 0 {
		return Person{}, errors.Newf("person row: bad id %v", row["id"])
	}
	name, ok := row["name"].(ir.IRString)
	if !ok {
		return Person{}, errors.Newf("person row: bad name %v", row["name"])
	}
	age, ok := row["age"].(ir.IRInt)
	if !ok || age < 0 || age > math.MaxUint32 {
		return Person{}, errors.Newf("person row: bad age %v", row["age"])
	}
	return Person{ID: uint64(id), Name: string(name), Age: uint32(age)}, nil
}

// PersonTable is typed access to the person table within one call.
type PersonTable struct {
	h *host.TableHandle
}

// Table returns the person table as seen by rc's transaction.
func Table(rc *host.ReducerContext) PersonTable {
	return PersonTable{h: rc.DB.Table(TableName)}
}

// Insert stores p and returns it with its assigned ID.
func (t PersonTable) Insert(p Person) (Person, error) {
	row, err := t.h.Insert(p.row())
	if err != nil {
		return Person{}, err
	}
	return FromRow(row)
}

func (t PersonTable) Count() (int64, error) {
	return t.h.Count()
}

// All returns every person in ID order.
func (t PersonTable) All() ([]Person, error) {
	rows, err := t.h.All()
	if err != nil {
		return nil, err
	}
	people := make([]Person, 0, len(rows))
	for _, row := range rows {
		p, err := FromRow(row)
		if err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, nil
}

func (t PersonTable) FindByID(id uint64) (Person, bool, error) {
	row, found, err := t.h.FindByID(id)
	if err != nil || !found {
		return Person{}, false, err
	}
	p, err := FromRow(row)
	if err != nil {
		return Person{}, false, err
	}
	return p, true, nil
}

// List reads every person committed in st, in ID order.
func List(ctx context.Context, st store.Store) ([]Person, error) {
	tx, err := st.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list people")
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.Scan(ctx, TableName)
	if err != nil {
		return nil, errors.Wrap(err, "list people")
	}
	people := make([]Person, 0, len(rows))
	for _, row := range rows {
		p, err := FromRow(row)
		if err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, nil
}
