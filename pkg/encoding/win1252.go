package encoding

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ToUTF8 returns b as UTF-8. Catalog files exported from the prefeitura's legacy
// spreadsheets come in Windows-1252; anything that is already valid UTF-8 is
// returned untouched.
func ToUTF8(b []byte) []byte {
	if len(b) == 0 || utf8.Valid(b) {
		return b
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		// Fallback: keep the raw bytes, the YAML parser will report the problem
		return b
	}

	return decoded
}
