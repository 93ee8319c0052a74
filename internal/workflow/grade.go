package workflow

// Letter maps a score against its maximum onto the school's letter scale.
// Boundary percentages belong to the higher band. The function is total over
// 0 <= score <= maxScore; out-of-range inputs are the caller's job to reject.
func Letter(score, maxScore int) string {
	if maxScore <= 0 {
		return "F"
	}
	pct := 100 * float64(score) / float64(maxScore)
	switch {
	case pct >= 90:
		return "A+"
	case pct >= 80:
		return "A"
	case pct >= 70:
		return "B+"
	case pct >= 60:
		return "B"
	case pct >= 50:
		return "C+"
	case pct >= 40:
		return "C"
	case pct >= 30:
		return "D"
	default:
		return "F"
	}
}
