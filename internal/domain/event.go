package domain

const (
	EventNameSubmissionRecorded = "submission.recorded"
	EventNameSubmissionGraded   = "submission.graded"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventSubmissionRecorded struct {
	Submission Submission
	// TimedOut is true when the attempt was completed by its timer.
	TimedOut bool
}

func (EventSubmissionRecorded) Name() string { return EventNameSubmissionRecorded }

type EventSubmissionGraded struct {
	Submission Submission
	GradedBy   string
}

func (EventSubmissionGraded) Name() string { return EventNameSubmissionGraded }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
