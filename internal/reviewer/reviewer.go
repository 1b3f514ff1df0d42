// Package reviewer implements the AntipatternReviewer (C3): a stateless
// quality gate over a task's changed files, combining four regex-shaped
// detectors into a weighted score and a reject decision.
//
// Internally it is structured the way the signature-scanning lineage
// structures a matching engine (a small Rule/Finding vocabulary feeding
// one scorer) even though the detectors themselves are plain regexp —
// see DESIGN.md for why Aho-Corasick/YARA were not the right fit here.
package reviewer

import (
	"sort"

	"github.com/flowkit/agentctl/internal/task"
)

// Config tunes the reviewer's thresholds, sourced from internal/config.
type Config struct {
	RejectThreshold     int
	ScopeCreepTolerance int
}

// Reviewer evaluates a task's changed files against the fixed detector
// set. It holds no mutable state between calls other than the optional
// hot-reloadable override table (see reload.go) — Review itself is a
// pure function of its inputs and the currently loaded pattern table.
type Reviewer struct {
	cfg      Config
	patterns *PatternWatcher
}

// New constructs a Reviewer with the given thresholds and no supplemental
// override table. Use WithPatternWatcher to attach one.
func New(cfg Config) *Reviewer {
	return &Reviewer{cfg: cfg}
}

// WithPatternWatcher attaches a hot-reloadable supplemental fallback-
// pattern table (see reload.go); pw may be nil to detach one. Returns r
// for chaining at the construction site.
func (r *Reviewer) WithPatternWatcher(pw *PatternWatcher) *Reviewer {
	r.patterns = pw
	return r
}

// overrides returns the currently loaded supplemental pattern table, or
// nil if no PatternWatcher is attached.
func (r *Reviewer) overrides() []FallbackPattern {
	if r.patterns == nil {
		return nil
	}
	return r.patterns.Overrides()
}

// Review runs all four detectors over changedFiles and returns the
// combined ReviewResult, per spec.md §4.3.
func (r *Reviewer) Review(changedFiles map[string]string, taskDescription string) task.ReviewResult {
	var findings []Finding

	paths := make([]string, 0, len(changedFiles))
	for path := range changedFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	overrides := r.overrides()
	for _, path := range paths {
		content := changedFiles[path]
		findings = append(findings, detectFallback(path, content, overrides)...)
		findings = append(findings, detectPlausibleButWrong(path, content)...)
	}
	findings = append(findings, detectUnusedExport(changedFiles)...)
	findings = append(findings, detectScopeCreep(taskDescription, paths, r.cfg.ScopeCreepTolerance)...)

	penalty := 0
	critical := 0
	summary := make([]string, 0, len(findings))
	for _, f := range findings {
		penalty += f.Weight
		if isCritical(f) {
			critical++
		}
		summary = append(summary, f.Detector+" @ "+f.Path)
	}

	score := 100 - penalty
	if score < 0 {
		score = 0
	}

	result := task.ReviewResult{
		Score:         score,
		CriticalCount: critical,
		Findings:      summary,
	}
	if critical >= r.cfg.RejectThreshold {
		result.ShouldReject = true
		result.RejectReason = "antipattern review: critical finding count reached threshold"
	}
	return result
}

// isCritical reports whether a finding counts toward criticalCount, per
// spec.md §4.3: critical = non-exempt fallback + non-exempt unused +
// every plausible-but-wrong.
func isCritical(f Finding) bool {
	switch {
	case f.Detector == "unused_export":
		return !f.Exempt
	case f.Detector == "plausible_but_wrong":
		return true
	case len(f.Detector) > 9 && f.Detector[:9] == "fallback:":
		return !f.Exempt
	default:
		return false
	}
}
