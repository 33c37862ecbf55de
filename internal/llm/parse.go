package llm

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Parsed is the structured view of a primary analyzer answer. OK is false
// when no JSON object could be recovered; every other field is then zero.
type Parsed struct {
	OK              bool               `json:"ok"`
	OverallScore    *float64           `json:"overallScore,omitempty"`
	SkinAge         *int               `json:"skinAge,omitempty"`
	SkinType        string             `json:"skinType,omitempty"`
	Concerns        []string           `json:"concerns,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

var (
	fenceRe         = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParsePrimary recovers the first JSON object embedded in free-form model
// output. It never panics; anything unrecoverable yields Parsed{OK: false}.
func ParsePrimary(raw string) (p Parsed) {
	defer func() {
		if recover() != nil {
			p = Parsed{}
		}
	}()

	body, ok := extractObject(raw)
	if !ok {
		return Parsed{}
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		cleaned := trailingCommaRe.ReplaceAllString(body, "$1")
		if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
			return Parsed{}
		}
	}

	p.OK = true
	if v, ok := lenientNumber(doc["overallScore"]); ok {
		p.OverallScore = &v
	}
	if v, ok := lenientNumber(doc["skinAge"]); ok && v > 0 {
		age := int(math.Floor(v + 0.5))
		p.SkinAge = &age
	}
	p.SkinType = strings.ToLower(strings.TrimSpace(lenientString(doc["skinType"])))
	p.Concerns = stringList(doc["concerns"])
	p.Recommendations = stringList(doc["recommendations"])
	p.Metrics = metricScores(doc["metrics"])
	return p
}

func extractObject(raw string) (string, bool) {
	s := fenceRe.ReplaceAllString(raw, "")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// lenientNumber accepts a JSON number or a numeric string such as "72" or "72%".
func lenientNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func lenientString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// stringList accepts an array of strings, an array of {"name": ...}
// objects, or a single string.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := strings.TrimSpace(lenientString(raw)); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(lenientString(item)); s != "" {
			out = append(out, s)
			continue
		}
		var named struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &named); err == nil && strings.TrimSpace(named.Name) != "" {
			out = append(out, strings.TrimSpace(named.Name))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// metricScores reads {"name": 72} or {"name": {"score": 72, ...}}.
func metricScores(raw json.RawMessage) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for name, v := range m {
		if f, ok := lenientNumber(v); ok {
			out[name] = f
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(v, &obj); err != nil {
			continue
		}
		if f, ok := lenientNumber(obj["score"]); ok {
			out[name] = f
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
