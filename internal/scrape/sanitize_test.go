package scrape

import "testing"

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Chapter 12", "Chapter_12"},
		{`Ch. 4: "The Fall"`, "Ch._4_The_Fall"},
		{"a/b\\c*d?e", "abcde"},
		{"  spaced   out  ", "spaced_out"},
		{"___", "untitled"},
		{"", "untitled"},
	}

	for _, tc := range cases {
		if got := SanitizeTitle(tc.in); got != tc.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
