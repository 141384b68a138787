package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerCaptures(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("channel %s merged %d points", "abc", 3)
	if want := "channel abc merged 3 points"; got != want {
		t.Errorf("captured log = %q, want %q", got, want)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	orig := Logf
	defer SetLogger(orig)

	SetLogger(nil)
	// Must not panic.
	Logf("dropped %d malformed points", 2)
}
