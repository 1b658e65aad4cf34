package monitoring

import (
	"fmt"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// Now set to nil and verify it doesn't call our logger
	called = false
	SetLogger(nil)
	Logf("test")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() {
		Logf = original
		SetProcessName("")
		SetColour(true)
	})
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestGoodBad_ProcessTag(t *testing.T) {
	lines := capture(t)
	SetProcessName("pilot")
	SetColour(false)

	Goodf("loaded %d waypoints", 3)
	Badf("read error")

	if len(*lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(*lines))
	}
	if got, want := (*lines)[0], "[pilot] loaded 3 waypoints"; got != want {
		t.Errorf("Goodf = %q, want %q", got, want)
	}
	if got, want := (*lines)[1], "[pilot] read error"; got != want {
		t.Errorf("Badf = %q, want %q", got, want)
	}
}

func TestGoodBad_Colour(t *testing.T) {
	lines := capture(t)
	SetProcessName("pilot")

	Goodf("ok")
	Badf("fail")

	if !strings.HasPrefix((*lines)[0], termGreen+"[pilot]"+termOff) {
		t.Errorf("Goodf line not green: %q", (*lines)[0])
	}
	if !strings.HasPrefix((*lines)[1], termRed+"[pilot]"+termOff) {
		t.Errorf("Badf line not red: %q", (*lines)[1])
	}
}
