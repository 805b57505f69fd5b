package streamjson

import "testing"

func TestStripANSI(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello", "hello"},
		{"color codes", "\x1b[31mred\x1b[0m", "red"},
		{"cursor movement", "\x1b[2Kline", "line"},
		{"osc title with bel", "\x1b]0;title\x07text", "text"},
		{"osc title with st", "\x1b]0;title\x1b\\text", "text"},
		{"two byte escape", "\x1b=text", "text"},
		{"truncated escape at end", "text\x1b[", "text"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripANSI(tc.in); got != tc.want {
				t.Errorf("stripANSI(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
