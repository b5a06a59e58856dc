package curriculum

import "math"

// Score is the result of grading one attempt at a lesson's practice questions.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Perfect reports whether every question was answered correctly.
func (s Score) Perfect() bool {
	return s.Correct == s.Total
}

// Grade counts correct answers. answers maps practice id to the chosen option
// index; unanswered or unknown ids count as wrong.
func Grade(lesson Lesson, answers map[int]int) Score {
	s := Score{Total: len(lesson.Practices)}
	for _, p := range lesson.Practices {
		if chosen, ok := answers[p.ID]; ok && chosen == p.Correct {
			s.Correct++
		}
	}
	return s
}

// EarnedXP scales a lesson's base reward by accuracy: half the reward for any
// completed attempt, rising linearly to the full reward for a perfect score.
// A lesson without questions awards the full reward.
func EarnedXP(xpReward, correct, total int) int {
	if total <= 0 {
		return xpReward
	}
	correct = min(max(correct, 0), total)
	fraction := float64(correct) / float64(total)
	return int(math.Round(float64(xpReward) * (0.5 + 0.5*fraction)))
}

// EarnedXP returns the XP this score earns on lesson.
func (s Score) EarnedXP(lesson Lesson) int {
	return EarnedXP(lesson.XPReward, s.Correct, s.Total)
}
