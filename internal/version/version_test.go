package version

import (
	"strings"
	"testing"
)

func stubBuild(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, BuildDate
	t.Cleanup(func() { Version, Commit, BuildDate = v, c, d })
	Version, Commit, BuildDate = version, commit, date
}

func TestString(t *testing.T) {
	tests := []struct {
		commit string
		want   string
	}{
		{"abc", "1.0.0+abc"},
		{"1234567", "1.0.0+1234567"},
		{"0123456789abcdef", "1.0.0+0123456"},
	}
	for _, tt := range tests {
		t.Run(tt.commit, func(t *testing.T) {
			stubBuild(t, "1.0.0", tt.commit, "")
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	stubBuild(t, "3.1.4", "deadbeefcafe", "")
	if got := UserAgent(); got != "aisum/3.1.4" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestDetails(t *testing.T) {
	stubBuild(t, "2.0.0", "feedface", "2026-03-01")
	got := Details()
	for _, want := range []string{"aisum 2.0.0+feedfac", "built 2026-03-01"} {
		if !strings.Contains(got, want) {
			t.Errorf("Details() = %q, missing %q", got, want)
		}
	}
}
