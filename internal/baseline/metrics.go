package baseline

import (
	"maps"
	"slices"
)

// Metric names in reporting order.
var MetricNames = []string{"spots", "wrinkles", "texture", "pores", "uvSpots", "brownSpots", "redAreas", "porphyrins"}

var metricBaselines = map[string]float64{
	"spots":      78,
	"wrinkles":   72,
	"texture":    75,
	"pores":      70,
	"uvSpots":    73,
	"brownSpots": 74,
	"redAreas":   70,
	"porphyrins": 68,
}

var metricWeights = map[string]float64{
	"spots":      0.12,
	"wrinkles":   0.18,
	"texture":    0.12,
	"pores":      0.13,
	"uvSpots":    0.15,
	"brownSpots": 0.10,
	"redAreas":   0.10,
	"porphyrins": 0.10,
}

var metricTreatments = map[string][]string{
	"spots":      {"Vitamin C Serum", "Chemical Peel", "IPL Treatment"},
	"wrinkles":   {"Botox", "Retinol", "Laser Resurfacing"},
	"texture":    {"Hydrafacial", "Microneedling", "AHA/BHA"},
	"pores":      {"Deep Cleansing", "Carbon Peel", "Niacinamide"},
	"uvSpots":    {"Sunscreen SPF50+", "Antioxidants", "Picosecond Laser"},
	"brownSpots": {"Tranexamic Acid", "Pico Laser", "Brightening Serum"},
	"redAreas":   {"Azelaic Acid", "Vascular Laser", "Anti-redness Cream"},
	"porphyrins": {"Blue Light Therapy", "Salicylic Acid", "Antibacterial Cleanser"},
}

// Metric is one scored skin dimension.
type Metric struct {
	Score    int    `json:"score"`
	Severity string `json:"severity"`
}

type SkinMetricsResult struct {
	Metrics            map[string]Metric `json:"metrics"`
	OverallScore       int               `json:"overallScore"`
	SkinAge            int               `json:"skinAge"`
	Strengths          []string          `json:"strengths"`
	Concerns           []string          `json:"concerns"`
	PriorityTreatments []string          `json:"priorityTreatments"`
}

// Severity buckets a 0-100 score.
func Severity(score int) string {
	switch {
	case score >= 85:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 50:
		return "average"
	case score >= 30:
		return "concern"
	default:
		return "severe"
	}
}

// SkinMetrics returns the age-adjusted baseline for every metric.
func SkinMetrics(age int) SkinMetricsResult {
	return SkinMetricsFromSignals(age, nil)
}

// SkinMetricsFromSignals scores each metric from signals when present
// (clamped to 0-100) and from the age-adjusted baseline otherwise.
func SkinMetricsFromSignals(age int, signals map[string]float64) SkinMetricsResult {
	ageFactor := clamp((60-float64(age))/40, 0, 1)

	metrics := make(map[string]Metric, len(MetricNames))
	for _, name := range MetricNames {
		var score int
		if v, ok := signals[name]; ok {
			score = int(round(clamp(v, 0, 100)))
		} else {
			score = int(round(clamp(metricBaselines[name]*(0.7+ageFactor*0.3), 15, 95)))
		}
		metrics[name] = Metric{Score: score, Severity: Severity(score)}
	}

	overall := OverallFromMetrics(metrics)
	res := SkinMetricsResult{
		Metrics:      metrics,
		OverallScore: overall,
		SkinAge:      SkinAgeFromScore(age, overall),
	}
	for _, name := range MetricNames {
		m := metrics[name]
		switch {
		case m.Score >= 80:
			res.Strengths = append(res.Strengths, name)
		case m.Score < 60:
			res.Concerns = append(res.Concerns, name)
			res.PriorityTreatments = append(res.PriorityTreatments, metricTreatments[name][:2]...)
		}
	}
	return res
}

// OverallFromMetrics is the weighted average of the metric scores. Metrics
// outside the known set get an even 1/8 weight.
func OverallFromMetrics(metrics map[string]Metric) int {
	var sum float64
	for _, name := range MetricNames {
		if m, ok := metrics[name]; ok {
			sum += float64(m.Score) * metricWeights[name]
		}
	}
	for _, name := range slices.Sorted(maps.Keys(metrics)) {
		if _, known := metricWeights[name]; !known {
			sum += float64(metrics[name].Score) * 0.125
		}
	}
	return int(round(sum))
}

// SkinAgeFromScore shifts the actual age by three years per ten points of
// deviation from an average score of 70, within 18-80.
func SkinAgeFromScore(age, overall int) int {
	deviation := (float64(overall) - 70) / 10
	return int(round(clamp(float64(age)-deviation*3, 18, 80)))
}
