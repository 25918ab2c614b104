package display

import (
	"reflect"

	"github.com/pkg/errors"
)

// LoadAtoms interns every Atom field of the struct pointed by st. The field
// name is the atom name unless a `loadAtoms:"atomname"` tag is given.
func LoadAtoms(d interface {
	InternAtom(string) (Atom, error)
}, st any) error {
	val := reflect.Indirect(reflect.ValueOf(st))
	typ := val.Type()
	atomType := reflect.TypeOf(AtomNone)
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if sf.Type != atomType {
			continue
		}
		name := sf.Name
		if tag := sf.Tag.Get("loadAtoms"); tag != "" {
			name = tag
		}
		a, err := d.InternAtom(name)
		if err != nil {
			return errors.Wrapf(err, "intern atom %q", name)
		}
		val.Field(i).Set(reflect.ValueOf(a))
	}
	return nil
}
