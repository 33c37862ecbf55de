// Package fusion merges whatever signals a scan produced into one scored
// result, walking a fixed ladder from the primary analyzer down to the
// deterministic baselines.
package fusion

import (
	"math"

	"github.com/shopspring/decimal"

	"skinscan-backend/internal/baseline"
	"skinscan-backend/internal/llm"
	"skinscan-backend/internal/vision"
)

// Tier identifies the ladder rung that produced the overall score.
type Tier int

const (
	TierCache    Tier = 1
	TierPrimary  Tier = 2
	TierSignals  Tier = 3
	TierBaseline Tier = 4
)

// String returns the metric label for t.
func (t Tier) String() string {
	switch t {
	case TierCache:
		return "cache"
	case TierPrimary:
		return "primary"
	case TierSignals:
		return "signals"
	case TierBaseline:
		return "baseline"
	default:
		return "unknown"
	}
}

// Confidence is fixed per tier.
const (
	ConfidencePrimary  = 96.5
	ConfidenceSignals  = 88.0
	ConfidenceBaseline = 75.0
)

// Weights of the signal tier.
const (
	signalWeightAverage  = 0.60
	signalWeightSymmetry = 0.15
	signalWeightAging    = 0.25
)

// Weights of the baseline tier.
const (
	baselineWeightSymmetry = 0.15
	baselineWeightMetrics  = 0.55
	baselineWeightAging    = 0.30
)

// Skin age sources.
const (
	SkinAgeFromPrimary  = "primary"
	SkinAgeFromSignal   = "age_model"
	SkinAgeFromBaseline = "baseline"
)

var homecare = []string{
	"Apply SPF50+ sunscreen every day",
	"Use a vitamin C serum in the morning",
	"Drink 2-3 liters of water a day",
}

// QuotaInfo is the quota snapshot attached to a billable scan.
type QuotaInfo struct {
	Remaining        int  `json:"remaining"`
	WouldIncurCharge bool `json:"wouldIncurCharge"`
}

// Recommendations groups treatment suggestions.
type Recommendations struct {
	Immediate []string `json:"immediate"`
	Homecare  []string `json:"homecare"`
}

// Result is the fused analysis returned to callers and cached.
type Result struct {
	OverallScore      int                        `json:"overallScore"`
	SkinAge           int                        `json:"skinAge"`
	SkinAgeSource     string                     `json:"skinAgeSource"`
	SkinAgeDifference int                        `json:"skinAgeDifference"`
	SkinType          string                     `json:"skinType,omitempty"`
	Headline          string                     `json:"headline"`
	Metrics           map[string]baseline.Metric `json:"metrics"`
	Strengths         []string                   `json:"strengths"`
	Conditions        []string                   `json:"conditions"`
	Recommendations   Recommendations            `json:"recommendations"`
	Symmetry          baseline.SymmetryResult    `json:"symmetry"`
	Wrinkles          baseline.WrinkleResult     `json:"wrinkleAnalysis"`
	Tier              Tier                       `json:"tier"`
	Confidence        float64                    `json:"confidence"`
	ModelsUsed        []string                   `json:"modelsUsed"`
	ProcessingTimeMs  int64                      `json:"processingTimeMs"`
	UsedCache         bool                       `json:"usedCache"`
	AIPowered         bool                       `json:"aiPowered"`
	AICostUSD         decimal.Decimal            `json:"aiCostUsd"`
	QuotaInfo         *QuotaInfo                 `json:"quotaInfo"`
}

// Input is everything the ladder may draw from. A zero Primary (OK false)
// and empty Signals select the baseline tier.
type Input struct {
	Age          int
	Signals      []vision.ModelSignal
	Primary      llm.Parsed
	PrimaryModel string
	Landmarks    []baseline.Landmark
}

// Fuse runs the ladder. It is pure and always returns a score in [0,100].
func Fuse(in Input) Result {
	sym := baseline.Symmetry(in.Landmarks)
	wr := baseline.Wrinkles()
	base := baseline.SkinMetrics(in.Age)
	usable := Usable(in.Signals)
	invertedAging := 100 - wr.OverallAgingLevel*10

	res := Result{
		Symmetry:  sym,
		Wrinkles:  wr,
		AICostUSD: decimal.Zero,
	}

	if score, ok := primaryScore(in.Primary); ok {
		res.Tier = TierPrimary
		res.Confidence = ConfidencePrimary
		res.OverallScore = score
	} else if len(usable) > 0 {
		var sum float64
		for _, s := range usable {
			sum += SignalScore(s, in.Age)
		}
		avg := sum / float64(len(usable))
		raw := signalWeightAverage*avg + signalWeightSymmetry*sym.OverallSymmetry + signalWeightAging*invertedAging
		res.Tier = TierSignals
		res.Confidence = ConfidenceSignals
		res.OverallScore = clampScore(raw)
	} else {
		raw := baselineWeightSymmetry*sym.OverallSymmetry + baselineWeightMetrics*float64(base.OverallScore) + baselineWeightAging*invertedAging
		res.Tier = TierBaseline
		res.Confidence = ConfidenceBaseline
		res.OverallScore = clampScore(raw)
	}
	res.AIPowered = res.Tier == TierPrimary || res.Tier == TierSignals

	res.SkinAge, res.SkinAgeSource = skinAge(in.Primary, usable, base)
	res.SkinAgeDifference = res.SkinAge - in.Age

	metrics := base
	switch {
	case in.Primary.OK && len(in.Primary.Metrics) > 0:
		metrics = baseline.SkinMetricsFromSignals(in.Age, in.Primary.Metrics)
	case len(usable) > 0:
		metrics = baseline.SkinMetricsFromSignals(in.Age, SignalMetrics(usable, in.Age))
	}
	res.Metrics = metrics.Metrics
	res.Strengths = nonNil(metrics.Strengths)

	res.SkinType = in.Primary.SkinType
	if res.SkinType == "" {
		if s, ok := find(usable, vision.TaskSkinType); ok {
			res.SkinType = s.Label
		}
	}

	switch {
	case len(in.Primary.Concerns) > 0:
		res.Conditions = in.Primary.Concerns
	case len(conditionNames(usable)) > 0:
		res.Conditions = conditionNames(usable)
	default:
		res.Conditions = nonNil(metrics.Concerns)
	}

	immediate := in.Primary.Recommendations
	if len(immediate) == 0 {
		immediate = metrics.PriorityTreatments
	}
	res.Recommendations = Recommendations{
		Immediate: nonNil(immediate),
		Homecare:  append([]string(nil), homecare...),
	}

	if res.OverallScore >= 70 {
		res.Headline = "Your skin is in good condition"
	} else {
		res.Headline = "Your skin needs additional care"
	}

	res.ModelsUsed = modelsUsed(usable, in.Primary.OK, in.PrimaryModel)
	return res
}

// Usable keeps the successful signals, preserving order.
func Usable(signals []vision.ModelSignal) []vision.ModelSignal {
	out := make([]vision.ModelSignal, 0, len(signals))
	for _, s := range signals {
		if s.OK {
			out = append(out, s)
		}
	}
	return out
}

func primaryScore(p llm.Parsed) (int, bool) {
	if !p.OK || p.OverallScore == nil {
		return 0, false
	}
	v := *p.OverallScore
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
		return 0, false
	}
	return int(math.Floor(v + 0.5)), true
}

func skinAge(p llm.Parsed, usable []vision.ModelSignal, base baseline.SkinMetricsResult) (int, string) {
	if p.OK && p.SkinAge != nil && *p.SkinAge > 0 {
		return *p.SkinAge, SkinAgeFromPrimary
	}
	if s, ok := find(usable, vision.TaskAge); ok && s.Value > 0 {
		return int(math.Floor(s.Value + 0.5)), SkinAgeFromSignal
	}
	return base.SkinAge, SkinAgeFromBaseline
}

func modelsUsed(usable []vision.ModelSignal, primaryOK bool, primaryModel string) []string {
	seen := map[string]bool{}
	out := []string{}
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, s := range usable {
		add(s.Name)
	}
	if primaryOK {
		add(primaryModel)
	}
	add(baseline.SymmetryModelID)
	add(baseline.WrinkleModelID)
	return out
}

func conditionNames(usable []vision.ModelSignal) []string {
	var out []string
	for _, s := range usable {
		if s.Task != vision.TaskCondition {
			continue
		}
		for _, c := range s.Conditions {
			out = append(out, c.Name)
		}
	}
	return out
}

func find(signals []vision.ModelSignal, task vision.Task) (vision.ModelSignal, bool) {
	for _, s := range signals {
		if s.Task == task {
			return s, true
		}
	}
	return vision.ModelSignal{}, false
}

func clampScore(v float64) int {
	return int(math.Max(0, math.Min(100, math.Floor(v+0.5))))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
