package baseline

import "math"

// MinLandmarks is the face-mesh size required for a geometric analysis.
const MinLandmarks = 468

// Landmark is one face-mesh point in normalized image coordinates.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Face-mesh indices of the points used for symmetry.
const (
	idxLeftCheek      = 234
	idxRightCheek     = 454
	idxChin           = 152
	idxForeheadTop    = 10
	idxLeftEyeInner   = 133
	idxLeftEyeOuter   = 33
	idxRightEyeInner  = 362
	idxRightEyeOuter  = 263
	idxNoseBottom     = 2
	idxNoseBridge     = 6
	idxLeftJaw        = 172
	idxRightJaw       = 397
	idxLeftCheekbone  = 123
	idxRightCheekbone = 352
)

const goldenRatio = 1.618

type FacialThirds struct {
	Upper   float64 `json:"upper"`
	Middle  float64 `json:"middle"`
	Lower   float64 `json:"lower"`
	Balance float64 `json:"balance"`
}

type LeftRightComparison struct {
	EyeSymmetry       float64 `json:"eyeSymmetry"`
	CheekboneSymmetry float64 `json:"cheekboneSymmetry"`
	JawlineSymmetry   float64 `json:"jawlineSymmetry"`
	OverallBalance    float64 `json:"overallBalance"`
}

type SymmetryResult struct {
	OverallSymmetry  float64             `json:"overallSymmetry"`
	GoldenRatio      float64             `json:"goldenRatio"`
	GoldenRatioScore float64             `json:"goldenRatioScore"`
	FacialThirds     FacialThirds        `json:"facialThirds"`
	LeftRight        LeftRightComparison `json:"leftRightComparison"`
	FromLandmarks    bool                `json:"fromLandmarks"`
}

// ReferenceSymmetry is returned when no usable face mesh accompanies a scan.
func ReferenceSymmetry() SymmetryResult {
	return SymmetryResult{
		OverallSymmetry:  94.2,
		GoldenRatio:      1.618,
		GoldenRatioScore: 98.5,
		FacialThirds:     FacialThirds{Upper: 33.2, Middle: 33.5, Lower: 33.3, Balance: 98.5},
		LeftRight: LeftRightComparison{
			EyeSymmetry:       96.8,
			CheekboneSymmetry: 94.5,
			JawlineSymmetry:   93.2,
			OverallBalance:    94.8,
		},
	}
}

// Symmetry scores facial proportions from a face mesh. Meshes shorter than
// MinLandmarks, or with degenerate geometry, yield ReferenceSymmetry.
func Symmetry(landmarks []Landmark) SymmetryResult {
	if len(landmarks) < MinLandmarks {
		return ReferenceSymmetry()
	}
	p := func(i int) Landmark { return landmarks[i] }

	center := midpoint(p(idxLeftCheek), p(idxRightCheek))

	faceLength := dist2D(p(idxForeheadTop), p(idxChin))
	faceWidth := dist2D(p(idxLeftCheek), p(idxRightCheek))
	if faceLength == 0 || faceWidth == 0 {
		return ReferenceSymmetry()
	}
	ratio := faceLength / faceWidth
	ratioScore := math.Max(0, 100-math.Abs(ratio-goldenRatio)*100)

	upper := dist2D(p(idxForeheadTop), p(idxNoseBridge))
	middle := dist2D(p(idxNoseBridge), p(idxNoseBottom))
	lower := dist2D(p(idxNoseBottom), p(idxChin))
	total := upper + middle + lower
	if total == 0 {
		return ReferenceSymmetry()
	}
	ideal := total / 3
	deviation := (math.Abs(upper-ideal) + math.Abs(middle-ideal) + math.Abs(lower-ideal)) / total
	thirdsBalance := math.Max(0, 100-deviation*200)

	eye := balance(dist2D(p(idxLeftEyeInner), p(idxLeftEyeOuter)), dist2D(p(idxRightEyeInner), p(idxRightEyeOuter)))
	cheek := balance(dist2D(center, p(idxLeftCheekbone)), dist2D(center, p(idxRightCheekbone)))
	jaw := balance(dist2D(center, p(idxLeftJaw)), dist2D(center, p(idxRightJaw)))
	lr := (eye + cheek + jaw) / 3

	overall := ratioScore*0.25 + thirdsBalance*0.25 + lr*0.5

	return SymmetryResult{
		OverallSymmetry:  round1(overall),
		GoldenRatio:      round(ratio*1000) / 1000,
		GoldenRatioScore: round1(ratioScore),
		FacialThirds: FacialThirds{
			Upper:   round1(upper / total * 100),
			Middle:  round1(middle / total * 100),
			Lower:   round1(lower / total * 100),
			Balance: round1(thirdsBalance),
		},
		LeftRight: LeftRightComparison{
			EyeSymmetry:       round1(eye),
			CheekboneSymmetry: round1(cheek),
			JawlineSymmetry:   round1(jaw),
			OverallBalance:    round1(lr),
		},
		FromLandmarks: true,
	}
}

// balance is the smaller/larger ratio of two distances as a percentage.
func balance(a, b float64) float64 {
	hi := math.Max(a, b)
	if hi == 0 {
		return 100
	}
	return math.Min(a, b) / hi * 100
}

func dist2D(a, b Landmark) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func midpoint(a, b Landmark) Landmark {
	return Landmark{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2, Z: (a.Z + b.Z) / 2}
}
