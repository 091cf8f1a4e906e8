// Package scanner implements the DLP content scanner (§4.E): a flat
// label->pattern table scanned over staged release files before sealing.
// The scanner is purely advisory; the governance hub decides quarantine
// policy on a hit. Grounded on the teacher's security.Sanitizer
// regex-table-driven detector, repurposed from prompt-injection patterns
// to sensitive-data patterns.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Violation is one DLP hit within a scanned text.
type Violation struct {
	Type            string `json:"type"`
	Count           int    `json:"count"`
	SampleTruncated string `json:"sample_truncated"`
}

// pattern bundles a label with its compiled regex.
type pattern struct {
	label string
	re    *regexp.Regexp
}

// Scanner holds the compiled DLP pattern table.
type Scanner struct {
	patterns []pattern
}

// safeExtensions are the text-like extensions scanned by ScanFile /
// ScanDirectory; binary artifacts are never scanned.
var safeExtensions = map[string]bool{
	".json": true, ".md": true, ".txt": true, ".csv": true,
	".log": true, ".yaml": true, ".yml": true,
}

// New compiles the default DLP pattern table (email, US SSN,
// credit-card-like, AWS access key, OpenAI-style API key).
func New() *Scanner {
	defs := []struct{ label, expr string }{
		{"email", `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`},
		{"us_ssn", `\b\d{3}-\d{2}-\d{4}\b`},
		{"credit_card", `\b(?:\d[ -]*?){13,16}\b`},
		{"aws_access_key", `\bAKIA[0-9A-Z]{16}\b`},
		{"openai_api_key", `\bsk-[A-Za-z0-9]{20,}\b`},
	}
	s := &Scanner{}
	for _, d := range defs {
		re := regexp.MustCompile(d.expr)
		s.patterns = append(s.patterns, pattern{label: d.label, re: re})
	}
	return s
}

const sampleMaxLen = 24

// ScanText scans a string against every pattern, returning one Violation
// per label with at least one match.
func (s *Scanner) ScanText(text string) []Violation {
	var out []Violation
	for _, p := range s.patterns {
		matches := p.re.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		sample := matches[0]
		if len(sample) > sampleMaxLen {
			sample = sample[:sampleMaxLen] + "..."
		}
		out = append(out, Violation{Type: p.label, Count: len(matches), SampleTruncated: sample})
	}
	return out
}

// ScanFile scans one file if its extension is in the safe set; files with
// other extensions are skipped (not scanned, not flagged).
func (s *Scanner) ScanFile(path string) ([]Violation, error) {
	if !safeExtensions[filepath.Ext(path)] {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.ScanText(string(content)), nil
}

// ScanDirectory walks root and returns violations keyed by path relative
// to root, for every safe-extension file with at least one hit.
func (s *Scanner) ScanDirectory(root string) (map[string][]Violation, error) {
	out := make(map[string][]Violation)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		violations, err := s.ScanFile(path)
		if err != nil {
			return err
		}
		if len(violations) == 0 {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		out[rel] = violations
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan directory %s: %w", root, err)
	}
	return out, nil
}
