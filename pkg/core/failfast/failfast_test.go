package failfast

import (
	"errors"
	"testing"
)

func TestErr(t *testing.T) {
	t.Run("no error", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Expected no panic, got: %v", r)
			}
		}()
		Err(nil)
	})

	t.Run("with error", func(t *testing.T) {
		sentinel := errors.New("test error")
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("Expected panic, got none")
			}
			ffErr, ok := r.(*Error)
			if !ok {
				t.Fatalf("Expected *Error, got: %T", r)
			}
			if !errors.Is(ffErr, sentinel) {
				t.Errorf("errors.Is(%v, sentinel) = false, want true", ffErr)
			}
			if len(ffErr.Stack) == 0 {
				t.Error("Expected a captured stack")
			}
		}()
		Err(sentinel)
	})
}

func TestIf(t *testing.T) {
	t.Run("condition true", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Expected no panic, got: %v", r)
			}
		}()
		If(true, "should not panic")
	})

	t.Run("formatted message", func(t *testing.T) {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("Expected panic, got none")
			}
			err, ok := r.(error)
			if !ok {
				t.Fatalf("Expected error type, got: %T", r)
			}
			expected := "fail-fast: workers is 0"
			if err.Error() != expected {
				t.Errorf("Expected %q, got %q", expected, err.Error())
			}
		}()
		If(false, "workers is %d", 0)
	})
}

func TestNotNil(t *testing.T) {
	cases := map[string]interface{}{
		"nil interface": nil,
		"nil pointer":   (*string)(nil),
		"nil func":      (func())(nil),
		"nil chan":      (chan int)(nil),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Fatal("Expected panic, got none")
				}
			}()
			NotNil(v, "v")
		})
	}

	t.Run("not nil", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Expected no panic, got: %v", r)
			}
		}()
		val := "test"
		NotNil(&val, "val")
	})
}

func TestRecover(t *testing.T) {
	t.Run("converts fail-fast panics", func(t *testing.T) {
		run := func() (err error) {
			defer Recover(&err)
			If(false, "bad config")
			return nil
		}
		err := run()
		if err == nil || err.Error() != "fail-fast: bad config" {
			t.Errorf("run() = %v, want fail-fast: bad config", err)
		}
	})

	t.Run("re-panics foreign panics", func(t *testing.T) {
		defer func() {
			if r := recover(); r != "boom" {
				t.Errorf("recover() = %v, want boom", r)
			}
		}()
		run := func() (err error) {
			defer Recover(&err)
			panic("boom")
		}
		_ = run()
	})
}
