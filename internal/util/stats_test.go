package util

import "testing"

func TestFormatBytesFixedWidth(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024 * 1024, " 0.1 GiB"},
	}

	for _, tc := range testCases {
		got := formatBytes(tc.in)
		if got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(got) != 8 {
			t.Errorf("formatBytes(%v) width = %d, want 8", tc.in, len(got))
		}
	}
}

func TestFormatStats(t *testing.T) {
	got := formatStats(60, 1536, 0)
	want := "Ticks:  60.0/s | In:  1.5 KiB/s | Out:  0.0   B/s"
	if got != want {
		t.Errorf("formatStats = %q", got)
	}
}
