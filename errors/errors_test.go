package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseProduce,
				Kind:     KindNotShareable,
				GoType:   "chan int",
				Isolate:  4,
				HasOwner: true,
				Detail:   "no producer",
			},
			contains: []string{"[produce]", "not_shareable", "isolate 4", "chan int", "no producer"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseRelease,
				Kind:  KindOwnerGone,
			},
			contains: []string{"[release]", "owner_gone"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseHeap,
				Kind:   KindAllocation,
				Detail: "memory full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[heap]", "allocation", "memory full", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseSession,
		Kind:  KindApplyNamespaceFailed,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseProduce,
		Kind:   KindNotShareable,
		Detail: "x",
	}

	if !err.Is(&Error{Phase: PhaseProduce, Kind: KindNotShareable}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseNamespace, Kind: KindNotShareable}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseProduce, Kind: KindOverflow}) {
		t.Error("Is should not match different kind")
	}
	if err.Is(errors.New("other")) {
		t.Error("Is should not match non-Error types")
	}
}

func TestIsKind(t *testing.T) {
	inner := NotShareable(PhaseProduce, make(chan int), "")
	outer := Wrap(PhaseNamespace, KindOther, inner, "fill")
	wrapped := fmt.Errorf("context: %w", outer)

	if !IsKind(wrapped, KindNotShareable) {
		t.Error("IsKind should find nested kind")
	}
	if !IsKind(wrapped, KindOther) {
		t.Error("IsKind should find outer kind")
	}
	if IsKind(wrapped, KindOverflow) {
		t.Error("IsKind should not find absent kind")
	}
	if IsKind(nil, KindOther) {
		t.Error("IsKind(nil) should be false")
	}

	kind, ok := KindOf(wrapped)
	if !ok || kind != KindOther {
		t.Errorf("KindOf = %q, %v; want other", kind, ok)
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("cause")
	err := New(PhaseSession, KindMainNamespaceUnavailable).
		Isolate(7).
		GoType("*isolate.Bindings").
		Value(42).
		Detail("failed %s", "lookup").
		Cause(cause).
		Build()

	if err.Phase != PhaseSession || err.Kind != KindMainNamespaceUnavailable {
		t.Errorf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if !err.HasOwner || err.Isolate != 7 {
		t.Errorf("isolate not set: %+v", err)
	}
	if err.Detail != "failed lookup" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v", err.Value)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not chained")
	}
}

func TestNotShareableMessage(t *testing.T) {
	generic := NotShareable(PhaseProduce, nil, "")
	if generic.Detail != "object does not support cross-isolate data" {
		t.Errorf("generic detail = %q", generic.Detail)
	}

	withValue := NotShareable(PhaseProduce, []int{1}, "")
	if !strings.Contains(withValue.Detail, "[]int{1} does not support cross-isolate data") {
		t.Errorf("value detail = %q", withValue.Detail)
	}
	if withValue.GoType != "[]int" {
		t.Errorf("GoType = %q", withValue.GoType)
	}

	custom := NotShareable(PhaseProduce, nil, "custom")
	if custom.Detail != "custom" {
		t.Errorf("custom detail = %q", custom.Detail)
	}
	if custom.TypeName() != "NotShareableError" {
		t.Errorf("TypeName = %q", custom.TypeName())
	}
}

func TestWarning(t *testing.T) {
	gone := OwnerGone(3)
	if !gone.Warning() {
		t.Error("OwnerGone should be warning-class")
	}
	if !IsWarning(fmt.Errorf("wrapped: %w", gone)) {
		t.Error("IsWarning should see through wrapping")
	}
	if AlreadyRunning(1).Warning() {
		t.Error("AlreadyRunning is not a warning")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
	}{
		{"AllocationFailed", AllocationFailed(PhaseHeap, 16, nil), PhaseHeap, KindAllocation},
		{"AlreadyRunning", AlreadyRunning(2), PhaseSession, KindAlreadyRunning},
		{"OwnerGone", OwnerGone(2), PhaseRelease, KindOwnerGone},
		{"InvalidHandle", InvalidHandle(PhaseReconstruct, "missing"), PhaseReconstruct, KindInvalidHandle},
		{"Overflow", Overflow(PhaseProduce, 1, "too big"), PhaseProduce, KindOverflow},
		{"InvalidInput", InvalidInput(PhaseNamespace, "empty"), PhaseNamespace, KindInvalidInput},
		{"Registration", Registration("int", "mismatch"), PhaseRegistry, KindRegistration},
		{"Closed", Closed(PhaseIsolate, "isolate 1"), PhaseIsolate, KindClosed},
		{"NotFound", NotFound(PhaseIsolate, "isolate", 9), PhaseIsolate, KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %s, want %s", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", tt.err.Kind, tt.kind)
			}
		})
	}
}

func TestDescribeTruncatesOnRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		v    any
	}{
		{"ascii", strings.Repeat("a", 100)},
		{"two-byte runes", "a" + strings.Repeat("é", 40)},
		{"three-byte runes", strings.Repeat("世", 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describe(tt.v)
			if !utf8.ValidString(got) {
				t.Fatalf("describe split a rune: %q", got)
			}
			if len(got) > 64 || !strings.HasSuffix(got, "...") {
				t.Fatalf("describe = %q (%d bytes)", got, len(got))
			}
		})
	}

	if got := describe(42); got != "42" {
		t.Fatalf("short value = %q", got)
	}
}
