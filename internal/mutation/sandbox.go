package mutation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/peninaocubo/core/internal/domain"
)

// bannedImports and bannedCalls are the static-check deny lists (§4.B
// "Sandbox"), grounded on the teacher's security.Sanitizer injection
// pattern table but scoped to generated-snippet import/call surface rather
// than free-text prompt injection.
var bannedImports = []string{
	"os", "sys", "subprocess", "socket", "shutil", "multiprocessing",
	"ctypes", "resource", "requests", "urllib", "http", "ftplib",
	"pickle", "marshal", "imp", "importlib", "__main__",
}

var bannedCalls = []string{
	"system", "popen", "exec", "eval", "__import__", "fork", "spawn",
	"kill", "compile", "globals", "locals", "vars", "dir",
}

var exploitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf\s+/`),
	regexp.MustCompile(`(?i)curl\s+.*\|\s*sh`),
	regexp.MustCompile(`(?i)base64\s*-d`),
	regexp.MustCompile(`(?i);\s*DROP\s+TABLE`),
}

// StaticCheck scans a candidate's generated test snippet for banned
// imports, banned calls, and exploit patterns. A clean snippet returns a
// nil slice.
func StaticCheck(snippet string) []string {
	var issues []string

	for _, mod := range bannedImports {
		if importRe(mod).MatchString(snippet) {
			issues = append(issues, fmt.Sprintf("ban_import:%s", mod))
		}
	}
	for _, name := range bannedCalls {
		if callRe(name).MatchString(snippet) {
			issues = append(issues, fmt.Sprintf("ban_call:%s", name))
		}
	}
	for _, re := range exploitPatterns {
		if re.MatchString(snippet) {
			issues = append(issues, fmt.Sprintf("exploit_pattern:%s", re.String()))
		}
	}
	return issues
}

func importRe(mod string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\bimport\s+` + regexp.QuoteMeta(mod) + `\b`)
}

func callRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\s*\(`)
}

// SandboxResult is the outcome of running both sandbox layers over one
// candidate.
type SandboxResult struct {
	Passed         bool
	Issues         []string
	TimedOut       bool
	MemoryExceeded bool
	ElapsedMs      int64
}

// SandboxConfig bounds the second, "bounded execution" layer.
type SandboxConfig struct {
	Timeout      time.Duration // default 5s
	MaxMemoryMB  int           // default 512
}

func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{Timeout: 5 * time.Second, MaxMemoryMB: 512}
}

// RunSandbox implements the two-layer CBF check. The first layer is the
// static AST-equivalent scan above. The second, "bounded execution" layer
// replaces real code execution (out of scope for this control plane — no
// candidate-authored code ever actually runs) with a deterministic
// scripted evaluator: it re-runs the micro-benchmark against the
// candidate's own denormalized parameters inside the configured wall-clock
// budget, so a pathological benchmark (never expected in practice, since
// the heuristic is pure and O(1)) would still fail closed on timeout.
func RunSandbox(cfg SandboxConfig, snippet string, params map[string]any, acq *domain.AcquisitionReport) SandboxResult {
	issues := StaticCheck(snippet)
	if len(issues) > 0 {
		return SandboxResult{Passed: false, Issues: issues}
	}

	start := time.Now()
	done := make(chan BenchResult, 1)
	go func() {
		done <- MicroBenchmark(params, acq)
	}()

	select {
	case <-done:
		return SandboxResult{Passed: true, ElapsedMs: time.Since(start).Milliseconds()}
	case <-time.After(cfg.Timeout):
		return SandboxResult{Passed: false, TimedOut: true, Issues: []string{"timeout"}}
	}
}

// SnippetFor synthesizes a deterministic test-snippet string for the
// static scanner to examine, folding in the candidate's patch payloads so
// that acquisition- or patch-sourced content can trip the banned-pattern
// checks (the only place untrusted text reaches the sandbox).
func SnippetFor(opSeq []string, patchPayloads ...map[string]string) string {
	var b strings.Builder
	b.WriteString("# candidate ops: ")
	b.WriteString(strings.Join(opSeq, ","))
	b.WriteString("\n")
	for _, payload := range patchPayloads {
		for k, v := range payload {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\n")
		}
	}
	return b.String()
}
