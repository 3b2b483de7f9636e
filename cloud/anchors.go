package cloud

import (
	"fmt"
	"strconv"
	"strings"
)

// AnchorsFromPrefix lays a known plaintext prefix row-major over the 3-wide
// hidden matrix. "ictf{" pins row 0 to "ict" and row 1 cols 0..1 to "f{".
func AnchorsFromPrefix(prefix string) []Anchor {
	anchors := make([]Anchor, 0, len(prefix))
	for i, r := range []rune(prefix) {
		anchors = append(anchors, Anchor{Row: i / 3, Col: i % 3, Value: int(r)})
	}
	return anchors
}

// ParseAnchorSpec parses the --anchors CLI format.
// Format: "ROW:COL=VALUE,ROW:COL=VALUE" where VALUE is a decimal code or a single
// quoted character ('{'). Whitespace around entries is ignored.
func ParseAnchorSpec(spec string) ([]Anchor, error) {
	var anchors []Anchor
	if strings.TrimSpace(spec) == "" {
		return anchors, nil
	}

	for i, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		pos, val, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("anchor %d %q: missing '='", i, entry)
		}
		rowStr, colStr, ok := strings.Cut(pos, ":")
		if !ok {
			return nil, fmt.Errorf("anchor %d %q: position must be ROW:COL", i, entry)
		}

		row, err := strconv.Atoi(strings.TrimSpace(rowStr))
		if err != nil {
			return nil, fmt.Errorf("anchor %d %q: row: %w", i, entry, err)
		}
		col, err := strconv.Atoi(strings.TrimSpace(colStr))
		if err != nil {
			return nil, fmt.Errorf("anchor %d %q: col: %w", i, entry, err)
		}
		value, err := parseAnchorValue(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("anchor %d %q: value: %w", i, entry, err)
		}

		anchors = append(anchors, Anchor{Row: row, Col: col, Value: value})
	}

	return anchors, nil
}

// parseAnchorValue accepts "123" or "'c'"
func parseAnchorValue(s string) (int, error) {
	if len(s) >= 3 && s[0] == '\'' && s[len(s)-1] == '\'' {
		inner := []rune(s[1 : len(s)-1])
		if len(inner) != 1 {
			return 0, fmt.Errorf("quoted value %s must hold one character", s)
		}
		return int(inner[0]), nil
	}
	return strconv.Atoi(s)
}

// MergeAnchors concatenates anchor sets; later entries win for the same cell
func MergeAnchors(sets ...[]Anchor) []Anchor {
	type cell struct{ row, col int }
	index := make(map[cell]int)
	var merged []Anchor
	for _, set := range sets {
		for _, a := range set {
			key := cell{a.Row, a.Col}
			if i, ok := index[key]; ok {
				merged[i] = a
				continue
			}
			index[key] = len(merged)
			merged = append(merged, a)
		}
	}
	return merged
}

// validateAnchors checks anchors against the domain and the 3-wide layout
func validateAnchors(anchors []Anchor, dom Domain) error {
	for i, a := range anchors {
		if a.Row < 0 {
			return fmt.Errorf("%w: anchors[%d].row %d is negative", ErrInvalidConfig, i, a.Row)
		}
		if a.Col < 0 || a.Col > 2 {
			return fmt.Errorf("%w: anchors[%d].col %d outside 0..2", ErrInvalidConfig, i, a.Col)
		}
		if !dom.Contains(a.Value) {
			return fmt.Errorf("%w: anchors[%d].value %d outside [%d, %d]", ErrInvalidConfig, i, a.Value, dom.Min, dom.Max)
		}
	}
	return nil
}

// applyAnchors overwrites anchored cells; rows past the end of x are skipped
func applyAnchors(x HiddenMatrix, anchors []Anchor) {
	for _, a := range anchors {
		if a.Row < len(x) {
			x[a.Row][a.Col] = a.Value
		}
	}
}
