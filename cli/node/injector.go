package node

import (
	"reflect"
	"sync"

	"golang.org/x/xerrors"
)

// reflectInjector resolves the dependencies by their type. The dependencies
// are kept in the order of injection so that the resolution is deterministic
// when several of them match an interface: the first one wins.
//
// - implements node.Injector
type reflectInjector struct {
	sync.Mutex

	deps []interface{}
}

// NewInjector returns an empty injector.
func NewInjector() Injector {
	return &reflectInjector{}
}

// Resolve implements node.Injector. It populates the pointed value with the
// first dependency assignable to its type.
func (inj *reflectInjector) Resolve(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return xerrors.New("expect a pointer")
	}

	target := rv.Elem()
	if !target.IsValid() {
		return xerrors.Errorf("reflect value '%v' is invalid", rv)
	}

	inj.Lock()
	defer inj.Unlock()

	for _, dep := range inj.deps {
		if reflect.TypeOf(dep).AssignableTo(target.Type()) {
			target.Set(reflect.ValueOf(dep))
			return nil
		}
	}

	return xerrors.Errorf("couldn't find dependency for '%v'", target.Type())
}

// Inject implements node.Injector. A dependency replaces the one of the same
// type, if any.
func (inj *reflectInjector) Inject(v interface{}) {
	if v == nil {
		return
	}

	inj.Lock()
	defer inj.Unlock()

	typ := reflect.TypeOf(v)

	for i, dep := range inj.deps {
		if reflect.TypeOf(dep) == typ {
			inj.deps[i] = v
			return
		}
	}

	inj.deps = append(inj.deps, v)
}
