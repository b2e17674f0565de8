package failfast

import (
	"fmt"
	"reflect"
	"runtime/debug"
)

// Error is the panic value raised by this package. Recover only converts panics of
// this type back into errors; anything else keeps propagating.
type Error struct {
	Err   error
	Stack []byte
}

func (e *Error) Error() string {
	return "fail-fast: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(err error) {
	panic(&Error{Err: err, Stack: debug.Stack()})
}

// Err panics if err != nil
func Err(err error) {
	if err != nil {
		fail(err)
	}
}

// If panics with a formatted message if condition is false
func If(condition bool, message string, args ...interface{}) {
	if !condition {
		fail(fmt.Errorf(message, args...))
	}
}

// NotNil panics if v is nil, including typed nil pointers, funcs, maps and chans
func NotNil(v interface{}, name string) {
	if v == nil {
		fail(fmt.Errorf("%s is nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan, reflect.Interface, reflect.Slice:
		if rv.IsNil() {
			fail(fmt.Errorf("%s is nil", name))
		}
	}
}

// Recover turns a fail-fast panic into an error stored in *errp. Use it deferred at
// an API boundary:
//
//	defer failfast.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	ffErr, ok := r.(*Error)
	if !ok {
		panic(r)
	}
	*errp = ffErr
}
