package cloud

import "math/rand"

// SynthConfig describes how to forge observations from a known message
type SynthConfig struct {
	Scale       float64
	Rotation    *Mat3   // nil draws a random rotation from RNG
	Translation Vec3
	Noise       float64 // standard deviation of gaussian noise added per component
	RNG         *rand.Rand
}

// Synthesize encodes text row-major into a hidden matrix (padding with spaces)
// and maps it through a rigid transform: Y = s·B·Xᵗ + t (+ noise).
// It returns the observations and the transform used.
func Synthesize(text string, cfg SynthConfig) ([]Vec3, RigidTransform) {
	rng := cfg.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	var rotation Mat3
	if cfg.Rotation != nil {
		rotation = *cfg.Rotation
	} else {
		rotation = randomRotation(rng)
	}

	transform := RigidTransform{
		Rotation:    rotation,
		Scale:       cfg.Scale,
		Translation: cfg.Translation,
	}

	observed := transform.ApplyAll(Encode(text, ' ').Points())
	if cfg.Noise > 0 {
		for i := range observed {
			for j := 0; j < 3; j++ {
				observed[i][j] += rng.NormFloat64() * cfg.Noise
			}
		}
	}
	return observed, transform
}
