package cloud

import (
	"fmt"
	"strings"
)

// Decode maps every code of x to its character, row-major.
// An entry outside dom indicates a solver defect and fails with ErrOutOfDomain.
func Decode(x HiddenMatrix, dom Domain) (string, error) {
	var sb strings.Builder
	sb.Grow(len(x) * 3)
	for i, row := range x {
		for j, code := range row {
			if !dom.Contains(code) {
				return "", fmt.Errorf("%w: row %d col %d = %d not in [%d, %d]", ErrOutOfDomain, i, j, code, dom.Min, dom.Max)
			}
			sb.WriteRune(rune(code))
		}
	}
	return sb.String(), nil
}

// Encode lays text out row-major over a 3-wide matrix, padding the last row
// with pad. It is the inverse of Decode for in-domain text.
func Encode(text string, pad rune) HiddenMatrix {
	runes := []rune(text)
	rows := (len(runes) + 2) / 3
	x := make(HiddenMatrix, rows)
	for i := range x {
		for j := 0; j < 3; j++ {
			k := i*3 + j
			if k < len(runes) {
				x[i][j] = int(runes[k])
			} else {
				x[i][j] = int(pad)
			}
		}
	}
	return x
}
