package color

import (
	"bytes"
	"os"
	"testing"
)

func TestPainterOff(t *testing.T) {
	p := For(&bytes.Buffer{})
	if got := p.Error("boom"); got != "boom" {
		t.Errorf("Error() on a buffer = %q, want plain text", got)
	}
}

func TestPainterOn(t *testing.T) {
	p := Painter{on: true}
	tests := []struct {
		name string
		fn   func(string) string
		code string
	}{
		{"Success", p.Success, Green},
		{"Error", p.Error, Red},
		{"Warning", p.Warning, Yellow},
		{"Info", p.Info, Cyan},
		{"Dim", p.Dim, DimCode},
		{"Header", p.Header, Bold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, want := tt.fn("x"), tt.code+"x"+Reset; got != want {
				t.Errorf("%s(x) = %q, want %q", tt.name, got, want)
			}
		})
	}
}

func TestSeverity(t *testing.T) {
	p := Painter{on: true}
	if got := p.Severity("critical"); got != Red+"critical"+Reset {
		t.Errorf("Severity(critical) = %q", got)
	}
	if got := p.Severity("warning"); got != Yellow+"warning"+Reset {
		t.Errorf("Severity(warning) = %q", got)
	}
	if got := p.Severity("info"); got != Cyan+"info"+Reset {
		t.Errorf("Severity(info) = %q", got)
	}
}

func TestEnabledNonTerminal(t *testing.T) {
	Init(false)
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	if Enabled(w) {
		t.Error("a pipe is not a terminal")
	}
}

func TestInitRespectsNoColor(t *testing.T) {
	t.Cleanup(func() { Init(false) })
	t.Setenv("NO_COLOR", "1")
	Init(false)
	if !disabled.Load() {
		t.Error("NO_COLOR should disable colors")
	}
}

func TestInitFlag(t *testing.T) {
	Init(true)
	defer Init(false)
	if Enabled(os.Stdout) {
		t.Error("--no-color should disable colors")
	}
}
