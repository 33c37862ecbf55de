package fusion

import (
	"math"

	"skinscan-backend/internal/vision"
)

var textureByType = map[string]float64{
	"normal":      80,
	"combination": 65,
	"oily":        55,
	"dry":         50,
}

var poresByType = map[string]float64{
	"normal":      75,
	"dry":         80,
	"combination": 55,
	"oily":        45,
}

const (
	defaultTexture = 65
	defaultPores   = 60

	scorePigmented    = 50
	scoreInflamed     = 47.5
	scoreConditionNil = 75
)

var pigmentConditions = map[string]bool{"keratosis": true, "milia": true, "brown spots": true}
var inflammatoryConditions = map[string]bool{"rosacea": true, "eczema": true, "redness": true}

// SignalScore normalizes one model signal onto the 0-100 scale used by
// the signal tier.
func SignalScore(s vision.ModelSignal, age int) float64 {
	switch s.Task {
	case vision.TaskSkinType:
		return texture(s.Label)
	case vision.TaskAge:
		return ageScore(s.Value, age)
	case vision.TaskCondition:
		switch {
		case hasCondition(s, pigmentConditions):
			return scorePigmented
		case hasCondition(s, inflammatoryConditions):
			return scoreInflamed
		default:
			return scoreConditionNil
		}
	case vision.TaskAcne:
		return acneScore(s.Value)
	default:
		return scoreConditionNil
	}
}

// SignalMetrics derives the eight skin metrics from fan-out signals.
// Missing signals fall back to fixed neutral values.
func SignalMetrics(signals []vision.ModelSignal, age int) map[string]float64 {
	var (
		brown, red   bool
		skinType     *vision.ModelSignal
		ageSig, acne *vision.ModelSignal
	)
	for i := range signals {
		s := &signals[i]
		switch s.Task {
		case vision.TaskSkinType:
			skinType = s
		case vision.TaskAge:
			ageSig = s
		case vision.TaskAcne:
			acne = s
		case vision.TaskCondition:
			brown = brown || hasCondition(*s, pigmentConditions)
			red = red || hasCondition(*s, inflammatoryConditions)
		}
	}

	out := make(map[string]float64, 8)

	out["spots"] = 75
	out["brownSpots"] = 77.5
	if brown {
		out["spots"] = 50
		out["brownSpots"] = 45
	}

	out["wrinkles"] = 60
	if ageSig != nil {
		out["wrinkles"] = ageScore(ageSig.Value, age)
	}

	out["texture"] = defaultTexture
	out["pores"] = defaultPores
	if skinType != nil {
		out["texture"] = texture(skinType.Label)
		out["pores"] = pores(skinType.Label)
	}

	uv := math.Max(30, 90-float64(age-25)*1.5)
	if brown {
		uv -= 15
	}
	out["uvSpots"] = uv

	acneLevel := 0.0
	if acne != nil {
		acneLevel = acne.Value
	}
	if red {
		out["redAreas"] = 47.5
	} else {
		out["redAreas"] = math.Max(50, 85-acneLevel*10)
	}

	out["porphyrins"] = 85
	if acne != nil {
		out["porphyrins"] = acneScore(acne.Value)
	}
	return out
}

func texture(label string) float64 {
	if v, ok := textureByType[label]; ok {
		return v
	}
	return defaultTexture
}

func pores(label string) float64 {
	if v, ok := poresByType[label]; ok {
		return v
	}
	return defaultPores
}

func ageScore(estimated float64, age int) float64 {
	return math.Max(20, math.Min(95, 75-(estimated-float64(age))*3))
}

func acneScore(level float64) float64 {
	return math.Max(30, 90-level*15)
}

func hasCondition(s vision.ModelSignal, set map[string]bool) bool {
	for _, c := range s.Conditions {
		if set[c.Name] {
			return true
		}
	}
	return false
}
