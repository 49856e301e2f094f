package lifecycle

import "testing"

func TestSignalName(t *testing.T) {
	tests := []struct {
		ctrl string
		want string
	}{
		{"C", "SIGINT"},
		{"c", "SIGINT"},
		{"\\", "SIGQUIT"},
		{"Z", "SIGTSTP"},
		{"D", "SIGTERM"},
		{"Q", "SIGTERM"}, // unrecognized control char falls back to SIGTERM
	}
	for _, tt := range tests {
		if got := signalName(tt.ctrl); got != tt.want {
			t.Errorf("signalName(%q) = %q, want %q", tt.ctrl, got, tt.want)
		}
	}
}
