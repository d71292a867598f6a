package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"missing scrobble", &MissingScrobbleParametersError{Params: []string{"title"}}, MissingScrobbleParameters},
		{"missing entity", &MissingEntityParameterError{}, MissingEntityParameter},
		{"exists", &EntityExistsError{Entity: map[string]any{"artist": "A"}}, EntityExists},
		{"not ready", NotReady, BackendNotReady},
		{"malformed", Malformed("page", "x", errors.New("bad")), MalformedInput},
		{"wrapped", fmt.Errorf("translating: %w", Malformedf("perpage", "0", "must be positive")), MalformedInput},
		{"status", &StatusError{Status: 404, Err: errors.New("gone")}, Unknown},
		{"plain", errors.New("boom"), Unknown},
		{"nil", nil, Unknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("%s: Classify() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMalformedInputError(t *testing.T) {
	err := Malformed("page", "x", errors.New("not a number"))
	if got := err.Error(); got != `malformed page "x": not a number` {
		t.Errorf("Error() = %q", got)
	}
	if got := (&MalformedInputError{}).Error(); got != "malformed input" {
		t.Errorf("Error() without param = %q", got)
	}
}
