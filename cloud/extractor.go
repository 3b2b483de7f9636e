package cloud

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
)

const (
	// GroupWidth is the number of tokens per observation tuple
	GroupWidth = 4

	// skippedOffset is the auxiliary scalar dropped from each tuple (quaternion w)
	skippedOffset = 0
)

// decimalToken matches signed decimals with a fractional part and optional exponent.
// Bare integers are ignored so row labels and counters in the text are skipped.
var decimalToken = regexp.MustCompile(`[-+]?\d+\.\d+(?:[eE][-+]?\d+)?`)

// ParseObservationFile reads and parses an observation text file
func ParseObservationFile(path string) ([]Vec3, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ExtractVectors(string(data))
}

// ParseObservations reads all of r and parses it as observation text
func ParseObservations(r io.Reader) ([]Vec3, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading observations: %w", err)
	}
	return ExtractVectors(string(data))
}

// ExtractVectors pulls every decimal token out of text in order, groups them into
// 4-tuples and keeps components 1..3 of each tuple.
func ExtractVectors(text string) ([]Vec3, error) {
	tokens := decimalToken.FindAllString(text, -1)
	if len(tokens) < GroupWidth {
		return nil, fmt.Errorf("%w: found %d numeric tokens, need at least %d", ErrMalformedInput, len(tokens), GroupWidth)
	}
	if len(tokens)%GroupWidth != 0 {
		return nil, fmt.Errorf("%w: %d numeric tokens is not a multiple of %d", ErrMalformedInput, len(tokens), GroupWidth)
	}

	vectors := make([]Vec3, 0, len(tokens)/GroupWidth)
	for i := 0; i < len(tokens); i += GroupWidth {
		var v Vec3
		k := 0
		for j := 0; j < GroupWidth; j++ {
			if j == skippedOffset {
				continue
			}
			f, err := strconv.ParseFloat(tokens[i+j], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: token %d %q: %v", ErrMalformedInput, i+j, tokens[i+j], err)
			}
			v[k] = f
			k++
		}
		vectors = append(vectors, v)
	}

	return vectors, nil
}

// FormatObservations renders points as quaternion-style 4-tuples with a zero
// scalar part, the inverse of ExtractVectors
func FormatObservations(points []Vec3) string {
	var out []byte
	for _, p := range points {
		out = fmt.Appendf(out, "(0.0, %.10f, %.10f, %.10f)\n", p[0], p[1], p[2])
	}
	return string(out)
}
