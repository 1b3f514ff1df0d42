package reviewer

import (
	"regexp"
	"strings"
)

// Finding is one detector hit.
type Finding struct {
	Detector string
	Path     string
	Line     int
	Snippet  string
	Exempt   bool
	Weight   int
}

// plausibleButWrongAPIs is the curated list of runtime-availability-
// sensitive APIs detector 4 matches against, per spec.md §4.3.
var plausibleButWrongAPIs = []string{
	"structuredClone(",
	"Array.fromAsync(",
	"Object.groupBy(",
	"Intl.Segmenter(",
	"AbortSignal.timeout(",
	"Object.hasOwn(",
}

// exportRe extracts a top-level exported symbol name from a line such as
// `export function Foo(` or `export const Bar =`.
var exportRe = regexp.MustCompile(`^export\s+(?:async\s+)?(?:function|const|class|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

// hookExemptRe matches framework-hook-style names exempted from the
// unused-export detector (React hooks, event handlers, HTTP verbs).
var hookExemptRe = regexp.MustCompile(`^(use[A-Z]|on[A-Z])`)

var httpVerbNames = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true, "OPTIONS": true,
}

// detectFallback runs detector 1 over every line of content. overrides is
// an optional operator-supplied supplemental pattern table (see
// reload.go) checked in addition to the fixed one.
func detectFallback(path, content string, overrides []FallbackPattern) []Finding {
	var findings []Finding
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if isCommentOnly(line) {
			continue
		}
		exempt := isExempt(line)

		for _, p := range DefaultFallbackPatterns() {
			if p.Regex.MatchString(line) {
				findings = append(findings, Finding{
					Detector: "fallback:" + p.Kind,
					Path:     path,
					Line:     i + 1,
					Snippet:  strings.TrimSpace(line),
					Exempt:   exempt,
					Weight:   weightFor(p.Weight, exempt),
				})
			}
		}
		for _, p := range overrides {
			if p.Regex.MatchString(line) {
				findings = append(findings, Finding{
					Detector: "fallback:" + p.Kind,
					Path:     path,
					Line:     i + 1,
					Snippet:  strings.TrimSpace(line),
					Exempt:   exempt,
					Weight:   weightFor(p.Weight, exempt),
				})
			}
		}
		if hasFallbackChain(line) {
			findings = append(findings, Finding{
				Detector: "fallback:fallback_chain",
				Path:     path,
				Line:     i + 1,
				Snippet:  strings.TrimSpace(line),
				Exempt:   exempt,
				Weight:   weightFor(10, exempt),
			})
		}
	}
	return findings
}

func weightFor(base int, exempt bool) int {
	if exempt {
		return base / 2
	}
	return base
}

// detectUnusedExport runs detector 2: a symbol exported in its own file
// is flagged unused iff it never appears textually in any other file and
// appears at most once in its own file (the declaration itself).
func detectUnusedExport(files map[string]string) []Finding {
	type exportSite struct {
		path string
		line int
		name string
	}
	var exports []exportSite

	for path, content := range files {
		for i, line := range strings.Split(content, "\n") {
			m := exportRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name := m[1]
			if hookExemptRe.MatchString(name) || httpVerbNames[name] {
				continue
			}
			exports = append(exports, exportSite{path: path, line: i + 1, name: name})
		}
	}

	var findings []Finding
	for _, ex := range exports {
		usedElsewhere := false
		for path, content := range files {
			if path == ex.path {
				continue
			}
			if strings.Contains(content, ex.name) {
				usedElsewhere = true
				break
			}
		}
		if usedElsewhere {
			continue
		}
		if strings.Count(files[ex.path], ex.name) > 1 {
			continue
		}
		findings = append(findings, Finding{
			Detector: "unused_export",
			Path:     ex.path,
			Line:     ex.line,
			Snippet:  ex.name,
			Weight:   5,
		})
	}
	return findings
}

// detectScopeCreep runs detector 3: compares the task description's
// tokens against each changed file path's tokens.
func detectScopeCreep(taskDescription string, paths []string, tolerance int) []Finding {
	if taskDescription == "" {
		return nil
	}
	taskTokens := tokenize(taskDescription)
	var findings []Finding
	for _, path := range paths {
		pathTokens := tokenize(path)
		if len(pathTokens) == 0 {
			continue
		}
		overlap := 0
		for t := range pathTokens {
			if taskTokens[t] {
				overlap++
			}
		}
		relevance := float64(overlap) / float64(len(pathTokens))
		threshold := 1.0 - float64(tolerance)
		if relevance < threshold {
			deviation := threshold - relevance
			weight := int(15 * deviation)
			if weight < 1 {
				weight = 1
			}
			findings = append(findings, Finding{
				Detector: "scope_creep",
				Path:     path,
				Snippet:  path,
				Weight:   weight,
			})
		}
	}
	return findings
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f != "" {
			out[f] = true
		}
	}
	return out
}

// detectPlausibleButWrong runs detector 4.
func detectPlausibleButWrong(path, content string) []Finding {
	var findings []Finding
	for i, line := range strings.Split(content, "\n") {
		for _, api := range plausibleButWrongAPIs {
			if strings.Contains(line, api) {
				findings = append(findings, Finding{
					Detector: "plausible_but_wrong",
					Path:     path,
					Line:     i + 1,
					Snippet:  strings.TrimSpace(line),
					Weight:   20,
				})
			}
		}
	}
	return findings
}
