package decoder

import "strings"

// extractText pulls a fixed-width printable field out of the module image.
// Padding bytes (trailing NULs, then trailing spaces) are stripped. A field
// that is entirely padding, or entirely 0xFF as unprogrammed EEPROMs read, or
// that lies past the end of a truncated image, yields nil rather than an
// empty string so callers can tell "absent" from "blank".
func extractText(img []byte, r fieldRange) *string {
	if r.end() > len(img) {
		return nil
	}
	raw := img[r.Offset:r.end()]

	allFF := true
	for _, b := range raw {
		if b != 0xFF {
			allFF = false
			break
		}
	}
	if allFF {
		return nil
	}

	s := strings.TrimRight(string(raw), "\x00")
	s = strings.TrimRight(s, " \t")
	if s == "" {
		return nil
	}
	return &s
}
