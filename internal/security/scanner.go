package security

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	clamd "github.com/dutchcoders/go-clamd"

	"audioconv/internal/logging"
)

const statusFound = "FOUND"

// Scanner provides virus scanning capabilities
type Scanner struct {
	enabled bool
	address string
	client  *clamd.Clamd
	logger  *slog.Logger
}

// ScanResult contains the result of a virus scan
type ScanResult struct {
	Scanned  bool
	Infected bool
	Threats  []string
}

// NewScanner creates a scanner. When enabled but clamd does not answer, the
// scanner is returned disabled and the reason is logged.
func NewScanner(enabled bool, clamdAddress string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Scanner{address: clamdAddress, logger: logger}
	if !enabled {
		return s
	}

	client := clamd.NewClamd(clamdAddress)
	version, err := Probe(clamdAddress)
	if err != nil {
		logger.Warn("ClamAV is not available, disabling input scanning",
			slog.String("address", clamdAddress),
			slog.String("error", err.Error()),
		)
		return s
	}
	logger.Debug("ClamAV connected", slog.String("address", clamdAddress), slog.String("version", version))
	s.enabled = true
	s.client = client
	return s
}

// Probe pings clamd at address and returns its version string.
func Probe(address string) (string, error) {
	client := clamd.NewClamd(address)
	if err := client.Ping(); err != nil {
		return "", fmt.Errorf("ping clamd: %w", err)
	}
	ch, err := client.Version()
	if err != nil {
		return "", fmt.Errorf("clamd version: %w", err)
	}
	var parts []string
	for res := range ch {
		if res != nil && res.Raw != "" {
			parts = append(parts, res.Raw)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("unknown error initializing ClamAV scanner")
	}
	return strings.Join(parts, " "), nil
}

// IsEnabled returns whether the scanner is enabled
func (s *Scanner) IsEnabled() bool {
	return s != nil && s.enabled
}

// Address returns the configured clamd address.
func (s *Scanner) Address() string {
	return s.address
}

// ScanFile scans a file for viruses
func (s *Scanner) ScanFile(filePath string) (*ScanResult, error) {
	if !s.IsEnabled() {
		return &ScanResult{Scanned: false}, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for scanning: %w", err)
	}
	defer file.Close()

	return s.ScanReader(file)
}

// ScanReader scans an io.Reader for viruses
func (s *Scanner) ScanReader(reader io.Reader) (*ScanResult, error) {
	if !s.IsEnabled() {
		return &ScanResult{Scanned: false}, nil
	}

	scanResults, err := s.client.ScanStream(reader, make(chan bool))
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	var results []*clamd.ScanResult
	for sr := range scanResults {
		results = append(results, sr)
	}
	return summarize(results), nil
}

func summarize(results []*clamd.ScanResult) *ScanResult {
	out := &ScanResult{Scanned: true, Threats: []string{}}
	for _, sr := range results {
		if sr != nil && sr.Status == statusFound {
			out.Infected = true
			out.Threats = append(out.Threats, fmt.Sprintf("%s: %s", sr.Description, sr.Status))
		}
	}
	return out
}
