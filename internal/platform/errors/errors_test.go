package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeEventIndexGap, "missing index 2")
	target := New(CodeEventIndexGap, "different message")

	if !stderrors.Is(err, target) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(err, New(CodeNotFound, "missing")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(CodePersistence, "write version", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
	if err.Error() != "write version" {
		t.Fatalf("message = %q, want %q", err.Error(), "write version")
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("stage failed: %w", New(CodeRunInFlight, "busy"))
	if code := CodeOf(wrapped); code != CodeRunInFlight {
		t.Fatalf("code = %q, want %q", code, CodeRunInFlight)
	}
	if code := CodeOf(fmt.Errorf("plain")); code != CodeUnknown {
		t.Fatalf("code = %q, want %q", code, CodeUnknown)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeEventIndexGap, http.StatusBadRequest},
		{CodeRunNotFound, http.StatusNotFound},
		{CodeRunInFlight, http.StatusConflict},
		{CodeVersionConflict, http.StatusConflict},
		{CodeStageTimeout, http.StatusGatewayTimeout},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("%s status = %d, want %d", tc.code, got, tc.want)
		}
	}
}
