package chat

import (
	"errors"
	"testing"
)

func TestParseTarget(t *testing.T) {
	for _, name := range TargetNames() {
		if _, err := ParseTarget(name); err != nil {
			t.Errorf("ParseTarget(%q) = %v", name, err)
		}
	}
	if _, err := ParseTarget("wizard"); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseModeAndSource(t *testing.T) {
	m, err := ParseMode("")
	if err != nil || m != ModeGPT {
		t.Fatalf("default mode = %v, %v", m, err)
	}
	if ModeGPT.Source() != "internal" || ModePerplexity.Source() != "web" {
		t.Fatal("mode sources wrong")
	}
	if _, err := ParseMode("telepathy"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err = %v", err)
	}
}
