package todo

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindCodesRoundTrip(t *testing.T) {
	kinds := []Kind{KindInternal, KindUnauthorized, KindForbidden, KindNotFound, KindInvalid, KindConflict, KindTransport}
	for _, k := range kinds {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q): got %v, want %v", k.String(), got, k)
		}
	}
	if got := ParseKind("TEAPOT"); got != KindInternal {
		t.Errorf("ParseKind(TEAPOT): got %v, want %v", got, KindInternal)
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed", NewError(KindNotFound, "gone", nil), KindNotFound},
		{"wrapped typed", fmt.Errorf("call: %w", NewError(KindForbidden, "no", cause)), KindForbidden},
		{"plain", cause, KindInternal},
		{"canceled", context.Canceled, KindTransport},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessageHidesCause(t *testing.T) {
	cause := errors.New("pq: duplicate key")
	err := NewError(KindInternal, "Something went wrong, cannot create Todo.", cause)

	if err.Error() != "Something went wrong, cannot create Todo." {
		t.Errorf("Error(): got %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !errors.Is(err, &Error{Kind: KindInternal}) {
		t.Error("expected kind match through errors.Is")
	}
}

func TestRetryable(t *testing.T) {
	if !KindTransport.Retryable() {
		t.Error("transport failures should be retryable")
	}
	if KindNotFound.Retryable() {
		t.Error("not-found should not be retryable")
	}
}

func TestCloneAndIndex(t *testing.T) {
	if got := Clone(nil); got == nil || len(got) != 0 {
		t.Errorf("Clone(nil): got %#v, want empty slice", got)
	}

	src := []Todo{{ID: "a"}, {ID: "b"}}
	cp := Clone(src)
	cp[0].Completed = true
	if src[0].Completed {
		t.Error("Clone shares backing array")
	}
	if Index(src, "b") != 1 || Index(src, "z") != -1 {
		t.Error("Index returned wrong position")
	}
	if ValidTitle("   ") || !ValidTitle("milk") {
		t.Error("ValidTitle misclassified")
	}
}
