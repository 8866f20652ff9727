package resolver

import (
	"path/filepath"
	"strings"
	"unicode"
)

// camera and phone prefixes that carry no meaning
var noiseTokens = map[string]bool{
	"img": true, "dsc": true, "dscn": true, "dscf": true, "pxl": true,
	"vid": true, "mvimg": true, "screenshot": true, "photo": true, "copy": true,
	"edited": true, "final": true,
}

// CaptionFromFilename derives a caption from a file name: the extension is
// dropped, separators become spaces, and numeric or camera tokens are removed.
// Names made only of such tokens yield an empty caption.
func CaptionFromFilename(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == '+' || unicode.IsSpace(r)
	})

	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if noiseTokens[strings.ToLower(f)] || isNumeric(f) {
			continue
		}
		words = append(words, f)
	}
	if len(words) == 0 {
		return ""
	}

	caption := strings.Join(words, " ")
	r := []rune(caption)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// isNumeric also treats camera counters such as "0042(1)" as numeric
func isNumeric(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits > 0
}
