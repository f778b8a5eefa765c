package model

import "encoding/json"

// SubmitResult is returned by POST /api/submit_exam/{id}.
type SubmitResult struct {
	Message        string           `json:"message"`
	Score          int              `json:"score"`
	TotalQuestions int              `json:"total_questions"`
	Percentage     float64          `json:"percentage"`
	Results        []QuestionResult `json:"results"`
}

// QuestionResult is the graded outcome of one question.
type QuestionResult struct {
	QuestionNo     string  `json:"question-no"`
	Question       string  `json:"question"`
	IsCorrect      bool    `json:"is_correct"`
	SelectedAnswer string  `json:"selected_answer"`
	CorrectAnswer  string  `json:"correct_answer"`
	Solution       *string `json:"solution"`
}

// ExamSummary is one row of the exam history.
type ExamSummary struct {
	ExamID      string   `json:"exam-id"`
	Subject     string   `json:"subject"`
	Lessons     []string `json:"lessons"`
	IsSubmitted bool     `json:"is_submitted"`
	Score       int      `json:"score"`
	Percentage  float64  `json:"percentage"`
	Timestamp   string   `json:"timestamp"`
	Test        bool     `json:"test"`
}

// Leaderboard is the monthly ranking.
type Leaderboard struct {
	Month   string             `json:"month"`
	Entries []LeaderboardEntry `json:"leaderboard"`
	Zero    bool               `json:"zero"`
	Class   string             `json:"class,omitempty"`
}

// ID identifies a leaderboard edition for "already seen" bookkeeping.
func (l Leaderboard) ID() string {
	return l.Month + "|" + l.Class
}

// LeaderboardEntry is one ranked student.
type LeaderboardEntry struct {
	Rank              int     `json:"rank"`
	Name              string  `json:"name"`
	Division          string  `json:"division"`
	TotalExams        int     `json:"total_exams"`
	AveragePercentage float64 `json:"average_percentage"`
	EloScore          float64 `json:"elo_score"`
	HasTakenExam      bool    `json:"has_taken_exam"`
}

// Update is an entry of the product update log.
type Update struct {
	Version string   `json:"version"`
	Date    string   `json:"date"`
	Changes []string `json:"changes"`
}

// StatTile is one figure of the home screen summary. The server sends Value
// as a number or as preformatted text.
type StatTile struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// UnmarshalJSON accepts a numeric or string value.
func (s *StatTile) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title string          `json:"title"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Title = raw.Title
	s.Value = rawNumberOrString(raw.Value)
	return nil
}

// Coins is the reward balance and the tasks that earn more.
type Coins struct {
	Coins int         `json:"coins"`
	Tasks []CoinsTask `json:"tasks,omitempty"`
}

// CoinsTask is one way to earn coins.
type CoinsTask struct {
	Title     string `json:"title"`
	Reward    int    `json:"reward"`
	Completed bool   `json:"completed"`
}

// Breakdown totals a group of submitted exams.
type Breakdown struct {
	TotalExams     int     `json:"total_exams"`
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
	AverageScore   float64 `json:"average_score"`
}

// OverviewStats is the performance analysis across all subjects.
type OverviewStats struct {
	Breakdown
	Subjects    map[string]Breakdown `json:"subject_stats"`
	RecentExams []ExamSummary        `json:"recent_exams"`
}

// SubjectStats is the performance analysis of one subject.
type SubjectStats struct {
	Subject string `json:"subject,omitempty"`
	Breakdown
	HighestPercentage float64              `json:"highestMark"`
	LowestPercentage  float64              `json:"lowestMark"`
	Lessons           map[string]Breakdown `json:"lesson_stats"`
	RecentExams       []ExamSummary        `json:"recent_exams"`
}

// UnmarshalJSON also accepts the per-subject record of the user profile,
// which names the totals attempted, marksAttempted, marksGained and avgPercentage.
func (s *SubjectStats) UnmarshalJSON(data []byte) error {
	type plain SubjectStats
	var raw struct {
		plain
		Attempted      int     `json:"attempted"`
		MarksAttempted int     `json:"marksAttempted"`
		MarksGained    int     `json:"marksGained"`
		AvgPercentage  float64 `json:"avgPercentage"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SubjectStats(raw.plain)
	if s.TotalExams == 0 {
		s.TotalExams = raw.Attempted
	}
	if s.TotalQuestions == 0 {
		s.TotalQuestions = raw.MarksAttempted
	}
	if s.CorrectAnswers == 0 {
		s.CorrectAnswers = raw.MarksGained
	}
	if s.AverageScore == 0 {
		s.AverageScore = raw.AvgPercentage
	}
	return nil
}

// AssignedTest is a test a teacher published for the student's class.
type AssignedTest struct {
	Subject   string   `json:"subject"`
	TestID    string   `json:"test-id"`
	Lessons   []string `json:"lessons"`
	Questions int      `json:"questions"`
}

// TestList is returned by GET /api/tests. Tests the student already
// completed are left out by the server.
type TestList struct {
	Tests          []AssignedTest `json:"tests"`
	Teacher        bool           `json:"teacher"`
	TeacherSubject string         `json:"teacher_subject,omitempty"`
}
