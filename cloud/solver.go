package cloud

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// SolverConfig holds configuration for the alternating snap/fit solver.
type SolverConfig struct {
	Scale        float64  // Known scale s in y = s·B·x + t
	Iterations   int      // Snap/refit iterations per restart (K)
	Restarts     int      // Independent restarts (M)
	Domain       Domain   // Valid symbol codes
	Initial      int      // Starting value for every cell
	UseMidpoint  bool     // Start from the domain midpoint instead of Initial
	Anchors      []Anchor // Known plaintext cells, reapplied after every snap
	Seed         int64    // Restart m draws from rand.NewSource(Seed + m)
	Jitter       int      // Max per-entry offset added to the initial guess of restarts m > 0
	Workers      int      // Concurrent restarts; <= 0 means GOMAXPROCS
	Polish       bool     // Run single-cell ±1 descent after the iterations
	PolishSweeps int      // Cap on polish sweeps
	Verbose      bool     // Log one line per restart

	// OnIteration, if set, receives a copy of the working matrix after every
	// snap + anchor step. It is called from worker goroutines and must be
	// safe for concurrent use when Workers > 1.
	OnIteration func(IterationState)
}

// IterationState is the snapshot handed to SolverConfig.OnIteration
type IterationState struct {
	Restart   int
	Iteration int
	Matrix    HiddenMatrix
}

// DefaultSolverConfig returns scale 1.25, 250 iterations and 50 restarts over
// printable ASCII, starting every cell at 95.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Scale:        1.25,
		Iterations:   250,
		Restarts:     50,
		Domain:       PrintableASCII(),
		Initial:      95,
		Seed:         0,
		Jitter:       8,
		Workers:      runtime.GOMAXPROCS(0),
		Polish:       true,
		PolishSweeps: 50,
	}
}

// Validate checks that the config describes a runnable solve
func (c SolverConfig) Validate() error {
	if !(c.Scale > 0) || math.IsInf(c.Scale, 0) {
		return fmt.Errorf("%w: scale must be positive and finite, got %v", ErrInvalidConfig, c.Scale)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be >= 1, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.Restarts < 1 {
		return fmt.Errorf("%w: restarts must be >= 1, got %d", ErrInvalidConfig, c.Restarts)
	}
	if c.Domain.Min > c.Domain.Max {
		return fmt.Errorf("%w: domain min %d > max %d", ErrInvalidConfig, c.Domain.Min, c.Domain.Max)
	}
	if !c.UseMidpoint && !c.Domain.Contains(c.Initial) {
		return fmt.Errorf("%w: initial value %d outside [%d, %d]", ErrInvalidConfig, c.Initial, c.Domain.Min, c.Domain.Max)
	}
	if c.Jitter < 0 {
		return fmt.Errorf("%w: jitter must be >= 0, got %d", ErrInvalidConfig, c.Jitter)
	}
	if c.PolishSweeps < 0 {
		return fmt.Errorf("%w: polish sweeps must be >= 0, got %d", ErrInvalidConfig, c.PolishSweeps)
	}
	return validateAnchors(c.Anchors, c.Domain)
}

// Solve recovers the hidden integer matrix behind obs.
// Restarts run on a bounded worker pool; the lowest residual wins and ties go
// to the lowest restart index, so the result does not depend on scheduling.
// When the anchors pin two rows, restarts 1.. start from the rotations
// anchorSeeds derives; the remaining restarts start from random rotations.
// Cancelling ctx abandons unfinished restarts and returns ctx.Err().
func Solve(ctx context.Context, obs []Vec3, cfg SolverConfig) (*SolveResult, error) {
	if len(obs) == 0 {
		return nil, ErrNoObservations
	}
	for i, y := range obs {
		for j, v := range y {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: observation %d component %d is %v", ErrMalformedInput, i, j, v)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seeds := anchorSeeds(obs, cfg, cfg.Restarts-1)
	if cfg.Verbose {
		log.Printf("Solve: %d anchor seeds", len(seeds))
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]RestartResult, cfg.Restarts)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for m := 0; m < cfg.Restarts; m++ {
		var start *Mat3
		if m > 0 && m <= len(seeds) {
			start = &seeds[m-1]
		}
		g.Go(func() error {
			res, err := newRestart(obs, cfg, m, start).run(gctx)
			if err != nil {
				return err
			}
			if cfg.Verbose {
				log.Printf("Restart %d (seed %d): residual=%.6f", m, res.Seed, res.Residual)
			}
			results[m] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	for m := 1; m < len(results); m++ {
		if results[m].Residual < results[best].Residual {
			best = m
		}
	}

	if cfg.Verbose {
		log.Printf("Solve: %d rows, %d restarts, best restart=%d residual=%.6f",
			len(obs), cfg.Restarts, best, results[best].Residual)
	}

	return &SolveResult{
		Matrix:      results[best].Matrix.Clone(),
		Transform:   results[best].Transform,
		Residual:    results[best].Residual,
		BestRestart: best,
		Restarts:    results,
	}, nil
}

// phase is the state of a single restart
type phase int

const (
	phaseInit phase = iota
	phaseIterate
	phasePolish
	phaseScore
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseInit:
		return "init"
	case phaseIterate:
		return "iterate"
	case phasePolish:
		return "polish"
	case phaseScore:
		return "score"
	case phaseDone:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// restart owns all mutable state of one optimization attempt
type restart struct {
	index int
	seed  int64
	cfg   SolverConfig
	obs   []Vec3
	obsC  Vec3 // centroid of obs
	rng   *rand.Rand
	start *Mat3 // seeded starting rotation, nil for identity or random

	phase     phase
	iteration int
	x         HiddenMatrix
	transform RigidTransform
	residual  float64
}

func newRestart(obs []Vec3, cfg SolverConfig, index int, start *Mat3) *restart {
	seed := cfg.Seed + int64(index)
	return &restart{
		index: index,
		seed:  seed,
		cfg:   cfg,
		obs:   obs,
		obsC:  Centroid(obs),
		rng:   rand.New(rand.NewSource(seed)),
		start: start,
		phase: phaseInit,
	}
}

// run drives the restart through Init → Iterate×K → Polish → Score
func (r *restart) run(ctx context.Context) (RestartResult, error) {
	for r.phase != phaseDone {
		if err := ctx.Err(); err != nil {
			return RestartResult{}, err
		}
		switch r.phase {
		case phaseInit:
			r.initialize()
			r.phase = phaseIterate
		case phaseIterate:
			if r.iteration >= r.cfg.Iterations {
				r.phase = phasePolish
				continue
			}
			r.step()
			r.iteration++
		case phasePolish:
			if r.cfg.Polish {
				r.polish()
			}
			r.phase = phaseScore
		case phaseScore:
			r.transform, r.residual = fitResidual(r.obs, r.x, r.cfg.Scale)
			r.phase = phaseDone
		}
	}

	return RestartResult{
		Restart:   r.index,
		Seed:      r.seed,
		Matrix:    r.x,
		Transform: r.transform,
		Residual:  r.residual,
	}, nil
}

// initialize sets the starting guess. Restart 0 is the plain constant matrix
// with identity rotation; later restarts jitter every entry and start from
// their seeded rotation or a random one.
func (r *restart) initialize() {
	dom := r.cfg.Domain
	mid := r.cfg.Initial
	if r.cfg.UseMidpoint {
		mid = dom.Midpoint()
	}
	r.x = make(HiddenMatrix, len(r.obs))
	for i := range r.x {
		for j := 0; j < 3; j++ {
			v := mid
			if r.index > 0 && r.cfg.Jitter > 0 {
				v += r.rng.Intn(2*r.cfg.Jitter+1) - r.cfg.Jitter
			}
			r.x[i][j] = dom.Clip(v)
		}
	}
	applyAnchors(r.x, r.cfg.Anchors)

	rotation := Identity3()
	switch {
	case r.start != nil:
		rotation = *r.start
	case r.index > 0:
		rotation = randomRotation(r.rng)
	}
	r.transform = RigidTransform{Rotation: rotation, Scale: r.cfg.Scale}
	r.transform.Translation = r.translation(rotation)
}

// step performs one snap → anchor → refit iteration
func (r *restart) step() {
	// Undo the transform and snap to the integer domain
	for i, y := range r.obs {
		est := r.transform.Invert(y)
		for j := 0; j < 3; j++ {
			r.x[i][j] = r.cfg.Domain.Clip(int(math.RoundToEven(est[j])))
		}
	}
	applyAnchors(r.x, r.cfg.Anchors)

	if r.cfg.OnIteration != nil {
		r.cfg.OnIteration(IterationState{Restart: r.index, Iteration: r.iteration, Matrix: r.x.Clone()})
	}

	// Refit rotation between centered X and the normalized observations
	normalized := make([]Vec3, len(r.obs))
	for i, y := range r.obs {
		normalized[i] = y.Sub(r.transform.Translation).Scale(1 / r.cfg.Scale)
	}
	rotation := Kabsch(CenterPoints(r.x.Points()), normalized)

	r.transform.Rotation = rotation
	r.transform.Translation = r.translation(rotation)
}

// translation places the hidden centroid on the observed centroid:
// t = mean(Y) − s·B·m. Each component of m is the column mean of the current
// matrix, except that columns holding anchors take the centroid implied by the
// anchors themselves (value − Bᵗ(y − mean(Y))/s).
func (r *restart) translation(rotation Mat3) Vec3 {
	return anchoredTranslation(r.obs, r.obsC, Centroid(r.x.Points()), rotation, r.cfg.Scale, r.cfg.Anchors)
}

// anchoredTranslation computes mean(Y) − s·B·m where m starts as hiddenC and
// each anchored column is replaced by the anchors' implied centroid
func anchoredTranslation(obs []Vec3, obsC, hiddenC Vec3, rotation Mat3, scale float64, anchors []Anchor) Vec3 {
	m := hiddenC

	var sums Vec3
	var counts [3]int
	for _, a := range anchors {
		if a.Row >= len(obs) {
			continue
		}
		z := rotation.T().MulVec(obs[a.Row].Sub(obsC)).Scale(1 / scale)
		sums[a.Col] += float64(a.Value) - z[a.Col]
		counts[a.Col]++
	}
	for j := 0; j < 3; j++ {
		if counts[j] > 0 {
			m[j] = sums[j] / float64(counts[j])
		}
	}

	return obsC.Sub(rotation.MulVec(m).Scale(scale))
}

// polish runs first-improvement coordinate descent: every free cell tries ±1
// and keeps the move when the refitted residual drops. It stops after a sweep
// with no accepted move or after PolishSweeps sweeps.
func (r *restart) polish() {
	anchored := make(map[[2]int]bool, len(r.cfg.Anchors))
	for _, a := range r.cfg.Anchors {
		anchored[[2]int{a.Row, a.Col}] = true
	}

	_, best := fitResidual(r.obs, r.x, r.cfg.Scale)
	for sweep := 0; sweep < r.cfg.PolishSweeps; sweep++ {
		moved := false
		for i := range r.x {
			for j := 0; j < 3; j++ {
				if anchored[[2]int{i, j}] {
					continue
				}
				orig := r.x[i][j]
				for _, d := range [2]int{-1, 1} {
					v := orig + d
					if !r.cfg.Domain.Contains(v) {
						continue
					}
					r.x[i][j] = v
					if _, res := fitResidual(r.obs, r.x, r.cfg.Scale); res < best {
						best = res
						orig = v
						moved = true
						break
					}
					r.x[i][j] = orig
				}
			}
		}
		if !moved {
			return
		}
	}
}

// fitResidual fits the best rigid transform of x onto obs at the given scale and
// returns it with the Frobenius residual ‖Y − (s·B·Xᵗ)ᵗ − t‖.
func fitResidual(obs []Vec3, x HiddenMatrix, scale float64) (RigidTransform, float64) {
	pts := x.Points()
	rotation := Kabsch(CenterPoints(pts), CenterPoints(obs))
	rt := RigidTransform{
		Rotation:    rotation,
		Scale:       scale,
		Translation: centroidTranslation(rotation, scale, pts, obs),
	}
	return rt, Residual(obs, rt.ApplyAll(pts))
}

// randomRotation draws a uniformly distributed rotation from a random unit quaternion
func randomRotation(rng *rand.Rand) Mat3 {
	return RotationFromQuaternion(rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64())
}
