package baseline

import "sort"

type WrinkleZone struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	AgingLevel      float64  `json:"agingLevel"`
	Depth           string   `json:"depth"`
	Count           int      `json:"count"`
	Coverage        int      `json:"coverage"`
	Recommendations []string `json:"recommendations"`
}

type TreatmentPlan struct {
	Immediate  []string `json:"immediate"`
	Preventive []string `json:"preventive"`
}

type WrinkleResult struct {
	OverallAgingLevel float64       `json:"overallAgingLevel"`
	Zones             []WrinkleZone `json:"zones"`
	TotalWrinkleCount int           `json:"totalWrinkleCount"`
	AverageDepth      string        `json:"averageDepth"`
	SkinAgeImpact     int           `json:"skinAgeImpact"`
	PriorityZones     []string      `json:"priorityZones"`
	TreatmentPlan     TreatmentPlan `json:"treatmentPlan"`
}

var zoneWeights = map[string]float64{
	"forehead":   0.15,
	"gabellar":   0.10,
	"nasolabial": 0.20,
	"tearTrough": 0.15,
	"marionette": 0.10,
	"crowsFeet":  0.15,
	"frown":      0.15,
}

func referenceZones() []WrinkleZone {
	return []WrinkleZone{
		{ID: "forehead", Name: "Forehead Lines", AgingLevel: 7, Depth: "moderate", Count: 12, Coverage: 35, Recommendations: []string{"Botox", "Retinol Serum", "Hydration"}},
		{ID: "gabellar", Name: "Gabellar Lines", AgingLevel: 6, Depth: "moderate", Count: 4, Coverage: 25, Recommendations: []string{"Botox", "Filler", "Relaxation Exercises"}},
		{ID: "nasolabial", Name: "Nasolabial Folds", AgingLevel: 5, Depth: "moderate", Count: 2, Coverage: 40, Recommendations: []string{"Hyaluronic Acid Filler", "Thread Lift", "RF Therapy"}},
		{ID: "tearTrough", Name: "Tear Troughs", AgingLevel: 7, Depth: "deep", Count: 2, Coverage: 50, Recommendations: []string{"Under-eye Filler", "PRP Therapy", "Eye Cream"}},
		{ID: "marionette", Name: "Marionette Lines", AgingLevel: 4, Depth: "fine", Count: 2, Coverage: 20, Recommendations: []string{"Filler", "Botox", "Thread Lift"}},
		{ID: "crowsFeet", Name: "Crow's Feet", AgingLevel: 7, Depth: "moderate", Count: 18, Coverage: 45, Recommendations: []string{"Botox", "Fractional Laser", "Eye Cream"}},
		{ID: "frown", Name: "Frown Lines", AgingLevel: 7, Depth: "deep", Count: 3, Coverage: 30, Recommendations: []string{"Botox", "Dysport", "Stress Management"}},
	}
}

// Wrinkles maps the seven facial wrinkle zones and their aging levels.
func Wrinkles() WrinkleResult {
	zones := referenceZones()
	level := OverallAgingLevel(zones)

	total := 0
	depthSum := 0
	for _, z := range zones {
		total += z.Count
		switch z.Depth {
		case "fine":
			depthSum += 1
		case "moderate":
			depthSum += 2
		default:
			depthSum += 3
		}
	}

	return WrinkleResult{
		OverallAgingLevel: level,
		Zones:             zones,
		TotalWrinkleCount: total,
		AverageDepth:      averageDepth(float64(depthSum) / float64(len(zones))),
		SkinAgeImpact:     int(round(level * 0.8)),
		PriorityZones:     priorityZones(zones),
		TreatmentPlan:     treatmentPlan(zones),
	}
}

// OverallAgingLevel is the weighted zone level on a 0-10 scale, one decimal.
func OverallAgingLevel(zones []WrinkleZone) float64 {
	var sum float64
	for _, z := range zones {
		w, ok := zoneWeights[z.ID]
		if !ok {
			w = 0.14
		}
		sum += z.AgingLevel * w
	}
	return round1(sum)
}

func averageDepth(avg float64) string {
	switch {
	case avg < 1.5:
		return "fine"
	case avg < 2.5:
		return "moderate"
	default:
		return "deep"
	}
}

// priorityZones returns up to three zones at level 6 or above, worst first.
func priorityZones(zones []WrinkleZone) []string {
	var picked []WrinkleZone
	for _, z := range zones {
		if z.AgingLevel >= 6 {
			picked = append(picked, z)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].AgingLevel > picked[j].AgingLevel })
	if len(picked) > 3 {
		picked = picked[:3]
	}
	out := make([]string, 0, len(picked))
	for _, z := range picked {
		out = append(out, z.Name)
	}
	return out
}

func treatmentPlan(zones []WrinkleZone) TreatmentPlan {
	var plan TreatmentPlan
	seenImmediate := map[string]bool{}
	seenPreventive := map[string]bool{}
	for _, z := range zones {
		if z.AgingLevel >= 6 {
			for _, r := range z.Recommendations[:2] {
				if !seenImmediate[r] {
					seenImmediate[r] = true
					plan.Immediate = append(plan.Immediate, r)
				}
			}
			continue
		}
		r := z.Recommendations[0]
		if !seenPreventive[r] {
			seenPreventive[r] = true
			plan.Preventive = append(plan.Preventive, r)
		}
	}
	if len(plan.Immediate) > 4 {
		plan.Immediate = plan.Immediate[:4]
	}
	if len(plan.Preventive) > 3 {
		plan.Preventive = plan.Preventive[:3]
	}
	return plan
}
