package testing_assert

import (
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

// Assert fails the test when the condition does not hold.
func Assert(t *testing.T, condition bool, msg string, v ...interface{}) {
	if !condition {
		_, file, line, _ := runtime.Caller(1)
		t.Fatalf("%s:%d: "+msg, append([]interface{}{filepath.Base(file), line}, v...)...)
	}
}

// Ok fails the test on a non-nil error.
func Ok(t *testing.T, err error) {
	if err != nil {
		_, file, line, _ := runtime.Caller(1)
		t.Fatalf("%s:%d: unexpected error: %s", filepath.Base(file), line, err.Error())
	}
}

// Equals fails the test when exp is not deeply equal to act.
func Equals(t *testing.T, exp interface{}, act interface{}) {
	if !reflect.DeepEqual(exp, act) {
		_, file, line, _ := runtime.Caller(1)
		t.Fatalf("%s:%d:\n\texp: %s\n\tgot: %s", filepath.Base(file), line,
			fmt.Sprintf("%#v", exp), fmt.Sprintf("%#v", act))
	}
}

// NotEquals fails the test when exp is deeply equal to act.
func NotEquals(t *testing.T, exp interface{}, act interface{}) {
	if reflect.DeepEqual(exp, act) {
		_, file, line, _ := runtime.Caller(1)
		t.Fatalf("%s:%d: should differ but both are %#v", filepath.Base(file), line, act)
	}
}
