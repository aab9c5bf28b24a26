package domain

// Leaderboard is the best score of every student who submitted a quiz,
// sorted by score in descending order.
type Leaderboard struct {
	QuizID  string             `json:"quizId"`
	Entries []LeaderboardEntry `json:"entries"`
}

type LeaderboardEntry struct {
	StudentID string  `json:"studentId"`
	Score     float64 `json:"score"`
}
