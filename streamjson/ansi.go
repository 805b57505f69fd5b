package streamjson

import "strings"

// stripANSI removes ANSI escape sequences from a line. Vendor CLIs sometimes
// interleave terminal control sequences with their JSON output even in
// non-interactive mode; stripping them before decoding keeps the parser
// tolerant of that.
func stripANSI(s string) string {
	if !strings.ContainsRune(s, 0x1b) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		c := s[i]
		if c != 0x1b {
			b.WriteByte(c)
			i++
			continue
		}

		i++
		if i >= len(s) {
			break
		}

		switch s[i] {
		case '[':
			// CSI sequence: parameters and intermediates, then a final byte
			// in the 0x40-0x7e range.
			i++
			for i < len(s) {
				c := s[i]
				i++
				if c >= 0x40 && c <= 0x7e {
					break
				}
			}
		case ']':
			// OSC sequence, terminated by BEL or ST.
			i++
			for i < len(s) {
				if s[i] == 0x07 {
					i++
					break
				}
				if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '\\' {
					i += 2
					break
				}
				i++
			}
		default:
			// Two-byte escape.
			i++
		}
	}

	return b.String()
}
