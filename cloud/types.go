package cloud

// Vec3 is a point or direction in 3-D space
type Vec3 [3]float64

// Mat3 is a row-major 3x3 matrix
type Mat3 [3][3]float64

// HiddenMatrix is the N×3 integer matrix being recovered.
// Row order matches observation order.
type HiddenMatrix [][3]int

// Domain is the closed interval of valid symbol codes
type Domain struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// PrintableASCII is the default domain: space (32) through tilde (126).
func PrintableASCII() Domain {
	return Domain{Min: 32, Max: 126}
}

// Contains reports whether v lies within the domain bounds
func (d Domain) Contains(v int) bool {
	return v >= d.Min && v <= d.Max
}

// Clip clamps v into the domain
func (d Domain) Clip(v int) int {
	if v < d.Min {
		return d.Min
	}
	if v > d.Max {
		return d.Max
	}
	return v
}

// Midpoint returns the neutral starting code for the domain
func (d Domain) Midpoint() int {
	return d.Min + (d.Max-d.Min+1)/2
}

// Anchor pins one entry of the hidden matrix to a known value
type Anchor struct {
	Row   int `yaml:"row" json:"row"`
	Col   int `yaml:"col" json:"col"`
	Value int `yaml:"value" json:"value"`
}

// RigidTransform maps hidden points into observation space: y = s·B·x + t.
// Scale is supplied by the caller and never estimated.
type RigidTransform struct {
	Rotation    Mat3    `json:"rotation"`
	Scale       float64 `json:"scale"`
	Translation Vec3    `json:"translation"`
}

// RestartResult is the outcome of a single restart
type RestartResult struct {
	Restart   int            `json:"restart"`
	Seed      int64          `json:"seed"`
	Matrix    HiddenMatrix   `json:"-"`
	Transform RigidTransform `json:"transform"`
	Residual  float64        `json:"residual"`
}

// SolveResult is the best restart plus a summary of every restart
type SolveResult struct {
	Matrix      HiddenMatrix    `json:"matrix"`
	Transform   RigidTransform  `json:"transform"`
	Residual    float64         `json:"residual"`
	BestRestart int             `json:"bestRestart"`
	Restarts    []RestartResult `json:"restarts"`
}

// Clone returns a deep copy of the matrix
func (x HiddenMatrix) Clone() HiddenMatrix {
	if x == nil {
		return nil
	}
	out := make(HiddenMatrix, len(x))
	copy(out, x)
	return out
}

// Points converts the integer matrix to float points
func (x HiddenMatrix) Points() []Vec3 {
	pts := make([]Vec3, len(x))
	for i, row := range x {
		pts[i] = Vec3{float64(row[0]), float64(row[1]), float64(row[2])}
	}
	return pts
}
