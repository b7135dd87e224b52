package cover

import (
	"errors"
	"testing"
)

func TestEvaluateTriggerBothSatisfy(t *testing.T) {
	triggered, reason, err := EvaluateTrigger(OperatorLess, 20, 12, 18, 5)
	if err != nil {
		t.Fatalf("evaluate trigger: %v", err)
	}
	if !triggered {
		t.Fatalf("expected trigger to fire when both readings are below threshold")
	}
	if reason != ReasonBothSatisfy {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluateTriggerNeitherSatisfies(t *testing.T) {
	triggered, reason, err := EvaluateTrigger(OperatorLess, 20, 24, 31, 5)
	if err != nil {
		t.Fatalf("evaluate trigger: %v", err)
	}
	if triggered {
		t.Fatalf("expected no trigger when both readings exceed threshold")
	}
	if reason != ReasonNeitherSatisfy {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluateTriggerTieBreakWithinTolerance(t *testing.T) {
	// Readings straddle the threshold, differ by 3mm <= tolerance 5mm; the
	// integer average (19+22)/2 = 20 decides, and 20 <= 20 fires.
	triggered, reason, err := EvaluateTrigger(OperatorLessOrEqual, 20, 19, 22, 5)
	if err != nil {
		t.Fatalf("evaluate trigger: %v", err)
	}
	if !triggered {
		t.Fatalf("expected tie-break average to fire the trigger")
	}
	if reason != ReasonTieBreak {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluateTriggerTieBreakAverageFails(t *testing.T) {
	// Straddle within tolerance but the average lands above a strict
	// threshold: (18+22)/2 = 20 and 20 < 20 is false.
	triggered, reason, err := EvaluateTrigger(OperatorLess, 20, 18, 22, 5)
	if err != nil {
		t.Fatalf("evaluate trigger: %v", err)
	}
	if triggered {
		t.Fatalf("expected average at threshold not to satisfy strict less-than")
	}
	if reason != ReasonTieBreak {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestEvaluateTriggerSourcesDisagree(t *testing.T) {
	_, _, err := EvaluateTrigger(OperatorLessOrEqual, 20, 10, 40, 5)
	if !errors.Is(err, ErrSourcesDisagree) {
		t.Fatalf("expected ErrSourcesDisagree, got %v", err)
	}
}

func TestEvaluateTriggerUnsupportedOperator(t *testing.T) {
	for _, operator := range []string{">", ">=", "==", ""} {
		if _, _, err := EvaluateTrigger(operator, 20, 10, 10, 0); !errors.Is(err, ErrUnsupportedOperator) {
			t.Fatalf("operator %q: expected ErrUnsupportedOperator, got %v", operator, err)
		}
	}
}

func TestEvaluateTriggerZeroTolerance(t *testing.T) {
	// Straddling readings with zero tolerance disagree unless identical.
	if _, _, err := EvaluateTrigger(OperatorLess, 20, 19, 21, 0); !errors.Is(err, ErrSourcesDisagree) {
		t.Fatalf("expected ErrSourcesDisagree with zero tolerance, got %v", err)
	}
}
