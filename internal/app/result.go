package app

// Result summarizes a scored attempt for display.
type Result struct {
	Score     int
	Total     int
	TimeTaken int
	Percent   float64
	Feedback  string
	CanRetry  bool
}

// Result builds the summary of the last scored attempt.
func (s State) Result() Result {
	r := Result{
		Score:     s.Score,
		Total:     len(s.Questions),
		TimeTaken: s.ElapsedSeconds,
		CanRetry:  s.CanRetry,
	}
	if r.Total > 0 {
		r.Percent = float64(r.Score) / float64(r.Total) * 100
	}
	r.Feedback = feedback(r.Percent)
	return r
}

func feedback(percent float64) string {
	switch {
	case percent <= 40:
		return "C'est un début, continuez à apprendre !"
	case percent <= 60:
		return "Pas mal, mais vous pouvez faire mieux !"
	case percent <= 80:
		return "Bien joué, vous avez de bonnes connaissances !"
	default:
		return "Excellent ! Vous êtes un expert en cybersécurité !"
	}
}
