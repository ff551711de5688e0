package textutil

import "testing"

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"tenant-a", "tenant-a"},
		{"Tenant A", "tenant_a"},
		{"../evil", "evil"},
		{"a/b\\c", "a_b_c"},
		{"a...b", "a_b"},
		{"", "unknown"},
		{"///", "unknown"},
		{"  Padded  ", "padded"},
	}
	for _, tc := range cases {
		if got := SanitizeToken(tc.in); got != tc.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
