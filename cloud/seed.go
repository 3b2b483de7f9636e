package cloud

import (
	"math"
	"sort"
)

const (
	// spinSteps is the number of angles tried about the anchored axis
	spinSteps = 2048

	// seedCandidates is how many scan minima get refined
	seedCandidates = 4

	// completionTolerance is the allowed gap, in code units, between the
	// length of a completed anchor pair and its observed length
	completionTolerance = 1.0

	refineStartDeg = 0.5
	refineMinDeg   = 0.002
)

// anchoredRow holds the anchored cells of one hidden row
type anchoredRow struct {
	value [3]int
	known [3]bool
}

func (a anchoredRow) count() int {
	n := 0
	for _, k := range a.known {
		if k {
			n++
		}
	}
	return n
}

// anchorPair is two hidden points whose observations fix an axis of the rotation
type anchorPair struct {
	from, to   int
	xFrom, xTo Vec3
}

// seedCandidate is a starting transform ranked by its lattice score
type seedCandidate struct {
	rotation    Mat3
	translation Vec3
	score       float64
}

// anchorSeeds derives starting rotations from the anchors.
// A fully anchored row and a second row that is complete (or missing a single
// cell, which is enumerated) fix the direction between two hidden points. The
// spin about that direction is scanned, and the best minima are refined by
// step-halving descent on the lattice score. At most limit rotations are
// returned, best first; nil when the anchors do not pin two rows.
func anchorSeeds(obs []Vec3, cfg SolverConfig, limit int) []Mat3 {
	if limit <= 0 {
		return nil
	}
	rows := anchoredRows(len(obs), cfg.Anchors)
	pairs := anchorPairs(obs, rows, cfg)
	if len(pairs) == 0 {
		return nil
	}

	var candidates []seedCandidate
	for _, p := range pairs {
		candidates = append(candidates, spinScan(obs, rows, cfg, p)...)
	}
	sortCandidates(candidates)
	if len(candidates) > seedCandidates {
		candidates = candidates[:seedCandidates]
	}

	for i, c := range candidates {
		candidates[i] = refineSeed(obs, rows, cfg, c.rotation, c.translation)
	}
	sortCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	seeds := make([]Mat3, len(candidates))
	for i, c := range candidates {
		seeds[i] = c.rotation
	}
	return seeds
}

func sortCandidates(c []seedCandidate) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].score < c[j].score })
}

// anchoredRows groups anchors by row; rows past the observations are dropped
func anchoredRows(n int, anchors []Anchor) map[int]anchoredRow {
	rows := make(map[int]anchoredRow)
	for _, a := range anchors {
		if a.Row >= n {
			continue
		}
		r := rows[a.Row]
		r.value[a.Col] = a.Value
		r.known[a.Col] = true
		rows[a.Row] = r
	}
	return rows
}

// anchorPairs picks the first complete row and pairs it with the farthest other
// complete row. Without one, the farthest row missing a single cell is paired
// once per domain value whose length matches the observed distance.
func anchorPairs(obs []Vec3, rows map[int]anchoredRow, cfg SolverConfig) []anchorPair {
	ids := make([]int, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	from := -1
	for _, id := range ids {
		if rows[id].count() == 3 {
			from = id
			break
		}
	}
	if from < 0 {
		return nil
	}
	xFrom := rowPoint(rows[from].value)
	dist := func(id int) float64 {
		return obs[id].Sub(obs[from]).Norm() / cfg.Scale
	}

	best, bestPartial := -1, -1
	for _, id := range ids {
		if id == from || dist(id) < 1e-9 {
			continue
		}
		switch rows[id].count() {
		case 3:
			if best < 0 || dist(id) > dist(best) {
				best = id
			}
		case 2:
			if bestPartial < 0 || dist(id) > dist(bestPartial) {
				bestPartial = id
			}
		}
	}
	if best >= 0 {
		return []anchorPair{{from: from, to: best, xFrom: xFrom, xTo: rowPoint(rows[best].value)}}
	}
	if bestPartial < 0 {
		return nil
	}

	partial := rows[bestPartial]
	missing := 0
	for j, k := range partial.known {
		if !k {
			missing = j
		}
	}
	var pairs []anchorPair
	for v := cfg.Domain.Min; v <= cfg.Domain.Max; v++ {
		value := partial.value
		value[missing] = v
		xTo := rowPoint(value)
		if math.Abs(xTo.Sub(xFrom).Norm()-dist(bestPartial)) <= completionTolerance {
			pairs = append(pairs, anchorPair{from: from, to: bestPartial, xFrom: xFrom, xTo: xTo})
		}
	}
	return pairs
}

// spinScan aligns the pair direction and returns the local minima of the
// lattice score over a full turn about it
func spinScan(obs []Vec3, rows map[int]anchoredRow, cfg SolverConfig, p anchorPair) []seedCandidate {
	axis := obs[p.to].Sub(obs[p.from]).Scale(1 / cfg.Scale)
	base := rotationBetween(p.xTo.Sub(p.xFrom), axis)
	midX := p.xFrom.Add(p.xTo).Scale(0.5)
	midY := obs[p.from].Add(obs[p.to]).Scale(0.5)

	ring := make([]seedCandidate, spinSteps)
	for k := 0; k < spinSteps; k++ {
		rotation := RotationAboutAxis(axis, 2*math.Pi*float64(k)/spinSteps).Mul(base)
		rt := RigidTransform{
			Rotation:    rotation,
			Scale:       cfg.Scale,
			Translation: midY.Sub(rotation.MulVec(midX).Scale(cfg.Scale)),
		}
		score, _ := latticeScore(obs, rows, cfg.Domain, rt)
		ring[k] = seedCandidate{rotation: rotation, translation: rt.Translation, score: score}
	}

	var minima []seedCandidate
	for k, c := range ring {
		prev := ring[(k+spinSteps-1)%spinSteps].score
		next := ring[(k+1)%spinSteps].score
		if c.score <= prev && c.score <= next {
			minima = append(minima, c)
		}
	}
	return minima
}

// refineSeed nudges the rotation about the coordinate axes, halving the step
// whenever no nudge lowers the lattice score
func refineSeed(obs []Vec3, rows map[int]anchoredRow, cfg SolverConfig, rotation Mat3, t Vec3) seedCandidate {
	best, t := latticeFit(obs, rows, cfg, rotation, t)
	axes := [3]Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	for step := refineStartDeg * math.Pi / 180; step > refineMinDeg*math.Pi/180; step /= 2 {
		for improved := true; improved; {
			improved = false
			for _, axis := range axes {
				for _, sign := range [2]float64{1, -1} {
					candidate := RotationAboutAxis(axis, sign*step).Mul(rotation)
					score, ct := latticeFit(obs, rows, cfg, candidate, t)
					if score < best {
						best, rotation, t = score, candidate, ct
						improved = true
					}
				}
			}
		}
	}
	return seedCandidate{rotation: rotation, translation: t, score: best}
}

// latticeFit snaps under (rotation, t), re-centers the translation on the
// snapped matrix and scores again
func latticeFit(obs []Vec3, rows map[int]anchoredRow, cfg SolverConfig, rotation Mat3, t Vec3) (float64, Vec3) {
	rt := RigidTransform{Rotation: rotation, Scale: cfg.Scale, Translation: t}
	_, x := latticeScore(obs, rows, cfg.Domain, rt)
	rt.Translation = centroidTranslation(rotation, cfg.Scale, x.Points(), obs)
	score, _ := latticeScore(obs, rows, cfg.Domain, rt)
	return score, rt.Translation
}

// latticeScore maps every observation back into hidden space and sums the
// squared distance to its snapped cell. Anchored cells snap to their value.
func latticeScore(obs []Vec3, rows map[int]anchoredRow, dom Domain, rt RigidTransform) (float64, HiddenMatrix) {
	x := make(HiddenMatrix, len(obs))
	var score float64
	for i, y := range obs {
		est := rt.Invert(y)
		anchored, hasAnchors := rows[i]
		for j := 0; j < 3; j++ {
			v := dom.Clip(int(math.RoundToEven(est[j])))
			if hasAnchors && anchored.known[j] {
				v = anchored.value[j]
			}
			d := est[j] - float64(v)
			score += d * d
			x[i][j] = v
		}
	}
	return score, x
}

// rotationBetween returns the shortest rotation turning the direction of a onto b
func rotationBetween(a, b Vec3) Mat3 {
	na, nb := a.Norm(), b.Norm()
	if na < 1e-12 || nb < 1e-12 {
		return Identity3()
	}
	a, b = a.Scale(1/na), b.Scale(1/nb)
	axis := a.Cross(b)
	sin, cos := axis.Norm(), a.Dot(b)
	if sin < 1e-12 {
		if cos > 0 {
			return Identity3()
		}
		// Half turn about any axis perpendicular to a
		perp := a.Cross(Vec3{1, 0, 0})
		if perp.Norm() < 1e-6 {
			perp = a.Cross(Vec3{0, 1, 0})
		}
		return RotationAboutAxis(perp, math.Pi)
	}
	return RotationAboutAxis(axis, math.Atan2(sin, cos))
}

func rowPoint(v [3]int) Vec3 {
	return Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
}
