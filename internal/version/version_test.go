package version

import "testing"

func TestBuildInfoFormatting(t *testing.T) {
	old := [3]string{version, commit, date}
	t.Cleanup(func() { version, commit, date = old[0], old[1], old[2] })

	version, commit, date = "v1.4.0", "a1b2c3d", "2026-03-01"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "version", got: GetVersion(), want: "v1.4.0"},
		{name: "string", got: String(), want: "version=v1.4.0 commit=a1b2c3d date=2026-03-01"},
		{name: "user agent", got: UserAgent(), want: "shopbot/v1.4.0"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestDefaultsAreNotEmpty(t *testing.T) {
	if GetVersion() == "" || String() == "" {
		t.Fatal("build info must have non-empty defaults")
	}
}
