package envstatus

import "testing"

func TestParseKnown(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"created", Created},
		{"running", Running},
		{"restarting", Restarting},
		{"paused", Paused},
		{"unknown", Unknown},
		{"booting", Booting},
	}
	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseUnrecognizedCollapsesToUnknown(t *testing.T) {
	for _, in := range []string{"", "exited", "dead", "weird-docker-status"} {
		if got := Parse(in); got != Unknown {
			t.Errorf("Parse(%q) = %v, want Unknown", in, got)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for s := Unknown; s <= Paused; s++ {
		if got := Parse(s.String()); got != s {
			t.Errorf("Parse(%v.String()) = %v, want %v", s, got, s)
		}
	}
}
