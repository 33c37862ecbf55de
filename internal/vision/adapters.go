package vision

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrNoPredictions is returned when a classifier answers with an empty list.
var ErrNoPredictions = errors.New("no predictions")

const (
	defaultEstimatedAge = 35
	conditionThreshold  = 0.1
	defaultAcneLevel    = 1
)

var acneLevels = map[string]int{
	"clear":       0,
	"mild":        1,
	"moderate":    2,
	"severe":      3,
	"very severe": 4,
	"very_severe": 4,
}

type adapter func(m Model, preds []Prediction) (ModelSignal, error)

var adapters = map[Task]adapter{
	TaskSkinType:  adaptSkinType,
	TaskAge:       adaptAge,
	TaskCondition: adaptCondition,
	TaskAcne:      adaptAcne,
}

// Interpret converts raw predictions for m into a ModelSignal.
func Interpret(m Model, preds []Prediction) (ModelSignal, error) {
	fn, ok := adapters[m.Task]
	if !ok {
		return ModelSignal{}, errors.New("unsupported task " + string(m.Task))
	}
	if len(preds) == 0 {
		return ModelSignal{}, ErrNoPredictions
	}
	sorted := append([]Prediction(nil), preds...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	sig, err := fn(m, sorted)
	if err != nil {
		return ModelSignal{}, err
	}
	sig.ModelID = m.ID
	sig.Name = m.Name
	sig.Task = m.Task
	sig.OK = true
	return sig, nil
}

func adaptSkinType(_ Model, preds []Prediction) (ModelSignal, error) {
	top := preds[0]
	return ModelSignal{
		Label:      strings.ToLower(strings.TrimSpace(top.Label)),
		Confidence: top.Score,
	}, nil
}

var ageRangeRe = regexp.MustCompile(`(\d+)\s*-\s*(\d+)`)
var agePlusRe = regexp.MustCompile(`(\d+)\s*\+`)

func adaptAge(_ Model, preds []Prediction) (ModelSignal, error) {
	top := preds[0]
	return ModelSignal{
		Label:      top.Label,
		AgeRange:   top.Label,
		Value:      float64(EstimateAge(top.Label)),
		Confidence: top.Score,
	}, nil
}

// EstimateAge turns an age bucket label into a point estimate: the rounded
// midpoint of "30-39", five over an open bucket like "70+", or 35.
func EstimateAge(label string) int {
	if m := ageRangeRe.FindStringSubmatch(label); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		return int(math.Floor(float64(lo+hi)/2 + 0.5))
	}
	if m := agePlusRe.FindStringSubmatch(label); m != nil {
		lo, _ := strconv.Atoi(m[1])
		return lo + 5
	}
	return defaultEstimatedAge
}

func adaptCondition(_ Model, preds []Prediction) (ModelSignal, error) {
	var conds []Condition
	for _, p := range preds {
		if p.Score > conditionThreshold {
			conds = append(conds, Condition{Name: strings.ToLower(strings.TrimSpace(p.Label)), Confidence: p.Score})
		}
	}
	sig := ModelSignal{Conditions: conds}
	if len(conds) > 0 {
		sig.Label = conds[0].Name
		sig.Confidence = conds[0].Confidence
	}
	return sig, nil
}

func adaptAcne(_ Model, preds []Prediction) (ModelSignal, error) {
	top := preds[0]
	label := strings.ToLower(strings.TrimSpace(top.Label))
	level, ok := acneLevels[label]
	if !ok {
		level = defaultAcneLevel
	}
	return ModelSignal{
		Label:      label,
		Value:      float64(level),
		Confidence: top.Score,
	}, nil
}
