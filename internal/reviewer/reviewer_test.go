package reviewer

import "testing"

func defaultCfg() Config {
	return Config{RejectThreshold: 3, ScopeCreepTolerance: 2}
}

func TestCleanFilesScoreFullMarks(t *testing.T) {
	r := New(defaultCfg())
	result := r.Review(map[string]string{
		"src/widget.go": "package widget\n\nfunc Render() string {\n\treturn \"ok\"\n}\n",
	}, "render widget")
	if result.ShouldReject {
		t.Fatalf("clean file should not be rejected: %+v", result)
	}
	if result.Score != 100 {
		t.Fatalf("expected score 100, got %d", result.Score)
	}
}

func TestFallbackPatternRejected(t *testing.T) {
	r := New(Config{RejectThreshold: 1, ScopeCreepTolerance: 2})
	result := r.Review(map[string]string{
		"src/x.go": `value := input ?? "default"` + "\n",
	}, "")
	if !result.ShouldReject {
		t.Fatalf("expected reject for fallback pattern, got %+v", result)
	}
}

func TestExemptionMarkerHalvesWeightAndIsNeverCritical(t *testing.T) {
	r := New(Config{RejectThreshold: 1, ScopeCreepTolerance: 2})
	result := r.Review(map[string]string{
		"src/x.go": `value := input ?? "default" // intentional` + "\n",
	}, "")
	if result.ShouldReject {
		t.Fatalf("exempt finding must never contribute to criticalCount: %+v", result)
	}
	if result.Score != 95 {
		t.Fatalf("expected halved weight score 95, got %d", result.Score)
	}
}

func TestS4RejectThenFix(t *testing.T) {
	r := New(Config{RejectThreshold: 1, ScopeCreepTolerance: 2})

	first := r.Review(map[string]string{"src/x.go": `x := y ?? "default"` + "\n"}, "")
	if !first.ShouldReject {
		t.Fatal("first attempt with fallback pattern should be rejected")
	}

	second := r.Review(map[string]string{"src/x.go": "x := computeDefault(y)\n"}, "")
	if second.ShouldReject {
		t.Fatalf("second attempt without the pattern should not be rejected: %+v", second)
	}
}

func TestPlausibleButWrongAlwaysCritical(t *testing.T) {
	r := New(Config{RejectThreshold: 1, ScopeCreepTolerance: 2})
	result := r.Review(map[string]string{
		"src/x.go": "const clone = structuredClone(obj); // intentional\n",
	}, "")
	if !result.ShouldReject {
		t.Fatalf("plausible-but-wrong findings are always critical, even with an exemption marker: %+v", result)
	}
}

func TestScopeCreepFlagsUnrelatedFile(t *testing.T) {
	r := New(Config{RejectThreshold: 100, ScopeCreepTolerance: 0})
	result := r.Review(map[string]string{
		"billing/invoice_totals.go": "package billing\n",
	}, "fix the login button color")
	if len(result.Findings) == 0 {
		t.Fatal("expected a scope-creep finding for an unrelated file path")
	}
}
