package llm

import (
	"fmt"
	"strings"

	"skinscan-backend/internal/vision"
)

const maxContextConditions = 3

// BuildContext renders successful fan-out signals as a short brief for the
// primary analyzer. No usable signals yields "".
func BuildContext(signals []vision.ModelSignal) string {
	var lines []string
	used := 0
	for _, s := range signals {
		if !s.OK {
			continue
		}
		used++
		switch s.Task {
		case vision.TaskSkinType:
			lines = append(lines, fmt.Sprintf("Skin Type: %s (%s confidence)", s.Label, percent(s.Confidence)))
		case vision.TaskAge:
			lines = append(lines, fmt.Sprintf("Estimated Skin Age: %.0f years (range: %s)", s.Value, s.AgeRange))
		case vision.TaskCondition:
			if len(s.Conditions) == 0 {
				continue
			}
			conds := s.Conditions
			if len(conds) > maxContextConditions {
				conds = conds[:maxContextConditions]
			}
			parts := make([]string, 0, len(conds))
			for _, c := range conds {
				parts = append(parts, fmt.Sprintf("%s (%s)", c.Name, percent(c.Confidence)))
			}
			lines = append(lines, "Detected Conditions: "+strings.Join(parts, ", "))
		case vision.TaskAcne:
			lines = append(lines, fmt.Sprintf("Acne Severity: Level %.0f/4 (%s)", s.Value, s.Label))
		}
	}
	if used == 0 {
		return ""
	}
	lines = append(lines, fmt.Sprintf("Models Used: %d", used))
	return strings.Join(lines, "\n")
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
