package faults

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Classification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		kind  Kind
	}{
		{"not found", NewNotFoundError("workflow not found", nil), IsNotFound, KindNotFound},
		{"already terminal", NewAlreadyTerminalError("workflow is completed", nil), IsAlreadyTerminal, KindAlreadyTerminal},
		{"invalid input", NewInvalidInputError("missing sensors", nil), IsInvalidInput, KindInvalidInput},
		{"worker failure", NewWorkerFailure("diagnosis failed", errors.New("boom")), IsWorkerFailure, KindWorkerFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("Expected predicate to match %v", tt.err)
			}
			if KindOf(tt.err) != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, KindOf(tt.err))
			}

			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !tt.check(wrapped) {
				t.Errorf("Expected predicate to match wrapped error")
			}
		})
	}
}

func TestError_UnwrapKeepsOriginal(t *testing.T) {
	original := errors.New("sensor bus offline")
	err := NewWorkerFailure("analysis failed", original).WithResource("WF-1").WithOperation("analyze")

	if !errors.Is(err, original) {
		t.Error("Expected errors.Is to find the original error")
	}
	if ResourceOf(err) != "WF-1" {
		t.Errorf("Expected resource WF-1, got %q", ResourceOf(err))
	}

	msg := err.Error()
	for _, want := range []string{"worker_failure", "resource=WF-1", "operation=analyze", "sensor bus offline"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in message %q", want, msg)
		}
	}
}

func TestError_Is(t *testing.T) {
	err := NewNotFoundError("vehicle VH-9 not found", nil).WithResource("VH-9")

	if !errors.Is(err, &Error{Kind: KindNotFound, Code: ErrCodeNotFound}) {
		t.Error("Expected errors.Is to match on kind and code")
	}
	if errors.Is(err, &Error{Kind: KindInvalidInput, Code: ErrCodeValidation}) {
		t.Error("Expected errors.Is not to match a different kind")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("Expected plain error not to be classified")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := NewInvalidInputError("bad field", nil).WithDetail("field", "engineTemp")

	if err.Details["field"] != "engineTemp" {
		t.Errorf("Expected detail field=engineTemp, got %v", err.Details["field"])
	}
}

func TestError_PredicatesSeeWrappedKinds(t *testing.T) {
	missing := NewNotFoundError("vehicle VH-9 not found", nil).WithResource("VH-9")
	err := fmt.Errorf("orchestrate: %w",
		NewWorkerFailure("maintenance pipeline failed", missing).WithResource("WF-1"))

	if !IsWorkerFailure(err) {
		t.Error("Expected IsWorkerFailure to match the outer error")
	}
	if !IsNotFound(err) {
		t.Error("Expected IsNotFound to match the wrapped error")
	}
	if IsInvalidInput(err) || IsAlreadyTerminal(err) {
		t.Error("Expected no match for kinds absent from the chain")
	}
	if KindOf(err) != KindWorkerFailure {
		t.Errorf("Expected KindOf to report the outermost kind, got %s", KindOf(err))
	}
	if HasKind(errors.New("plain"), KindNotFound) {
		t.Error("Expected HasKind to be false for an unclassified error")
	}
}
