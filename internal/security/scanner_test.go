package security

import (
	"path/filepath"
	"testing"

	clamd "github.com/dutchcoders/go-clamd"
)

func TestDisabledScannerSkipsFiles(t *testing.T) {
	s := NewScanner(false, "tcp://127.0.0.1:3310", nil)
	if s.IsEnabled() {
		t.Fatal("scanner should be disabled")
	}
	res, err := s.ScanFile(filepath.Join(t.TempDir(), "missing.mp3"))
	if err != nil {
		t.Fatalf("disabled scanner must not touch the file: %v", err)
	}
	if res.Scanned || res.Infected {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUnreachableClamdDisablesScanner(t *testing.T) {
	// Nothing listens on a freshly created unix socket path.
	addr := "unix://" + filepath.Join(t.TempDir(), "clamd.sock")
	s := NewScanner(true, addr, nil)
	if s.IsEnabled() {
		t.Fatal("scanner must fall back to disabled when clamd is unreachable")
	}
	if s.Address() != addr {
		t.Fatalf("address = %q", s.Address())
	}
	if _, err := Probe(addr); err == nil {
		t.Fatal("expected probe error")
	}
}

func TestNilScannerIsDisabled(t *testing.T) {
	var s *Scanner
	if s.IsEnabled() {
		t.Fatal("nil scanner is disabled")
	}
}

func TestSummarize(t *testing.T) {
	clean := summarize([]*clamd.ScanResult{{Status: "OK", Description: ""}})
	if !clean.Scanned || clean.Infected || len(clean.Threats) != 0 {
		t.Fatalf("unexpected clean result %+v", clean)
	}
	infected := summarize([]*clamd.ScanResult{
		{Status: "OK"},
		{Status: statusFound, Description: "Eicar-Test-Signature"},
		nil,
	})
	if !infected.Infected || len(infected.Threats) != 1 || infected.Threats[0] != "Eicar-Test-Signature: FOUND" {
		t.Fatalf("unexpected infected result %+v", infected)
	}
}

func TestScanFileOpenError(t *testing.T) {
	s := &Scanner{enabled: true, client: clamd.NewClamd("unix:///nonexistent")}
	if _, err := s.ScanFile(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatalf("expected open error, got %v", err)
	}
}
