// Package api exposes the backend's endpoints as typed methods over the gateway.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pavelanni/aceplus/internal/gateway"
	"github.com/pavelanni/aceplus/internal/model"
)

// Client is safe for concurrent use.
type Client struct {
	gw *gateway.Client
}

// New returns a Client using gw.
func New(gw *gateway.Client) *Client {
	return &Client{gw: gw}
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, userID, password string) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	if err := c.gw.Post(ctx, "api/login", model.LoginRequest{UserID: userID, Password: password}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("login response carried no token")
	}
	return &resp, nil
}

// Register creates an account and signs in.
func (c *Client) Register(ctx context.Context, userID, password string) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	if err := c.gw.Post(ctx, "api/register", model.LoginRequest{UserID: userID, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Lessons lists the lessons of a subject.
func (c *Client) Lessons(ctx context.Context, subject string, class10 bool) ([]string, error) {
	q := url.Values{"subject": {subject}}
	if class10 {
		q.Set("class10", "true")
	}
	var lessons []string
	if err := c.gw.Get(ctx, "api/lessons?"+q.Encode(), &lessons); err != nil {
		return nil, err
	}
	return lessons, nil
}

// CreateExam starts a new exam and returns its id.
func (c *Client) CreateExam(ctx context.Context, req model.CreateExamRequest) (string, error) {
	var resp model.CreateExamResponse
	if err := c.gw.Post(ctx, "api/create_exam", req, &resp); err != nil {
		return "", err
	}
	if resp.ExamID == "" {
		return "", errors.New("server returned no exam id")
	}
	return resp.ExamID, nil
}

// GetExam fetches an exam. Answers are present only after submission.
func (c *Client) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	var exam model.Exam
	if err := c.gw.Get(ctx, "api/exam/"+url.PathEscape(examID), &exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

// SubmitExam sends the answer sheet and returns the graded result.
func (c *Client) SubmitExam(ctx context.Context, examID string, req model.SubmitRequest) (*model.SubmitResult, error) {
	var res model.SubmitResult
	if err := c.gw.Post(ctx, "api/submit_exam/"+url.PathEscape(examID), req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UserExams returns the signed-in user's exam history.
func (c *Client) UserExams(ctx context.Context) ([]model.ExamSummary, error) {
	var exams []model.ExamSummary
	if err := c.gw.Get(ctx, "api/user_exams", &exams); err != nil {
		return nil, err
	}
	return exams, nil
}

// UnsubmittedExams returns recent exams that were started but never submitted.
func (c *Client) UnsubmittedExams(ctx context.Context) ([]model.ExamSummary, error) {
	var exams []model.ExamSummary
	if err := c.gw.Get(ctx, "api/unsubmitted_exams", &exams); err != nil {
		return nil, err
	}
	return exams, nil
}

// DeleteUnsubmittedExam discards an exam that was never submitted.
func (c *Client) DeleteUnsubmittedExam(ctx context.Context, examID string) error {
	return c.gw.Delete(ctx, "api/delete_unsubmitted_exam/"+url.PathEscape(examID), nil)
}

// Leaderboard returns one page of the monthly ranking. Pages start at 1.
func (c *Client) Leaderboard(ctx context.Context, page, pageSize int) (*model.Leaderboard, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	endpoint := fmt.Sprintf("api/leaderboard?page=%d&page_size=%d", page, pageSize)
	var lb model.Leaderboard
	if err := c.gw.Get(ctx, endpoint, &lb); err != nil {
		return nil, err
	}
	return &lb, nil
}

// Updates returns the latest product update.
func (c *Client) Updates(ctx context.Context) (*model.Update, error) {
	var u model.Update
	if err := c.gw.Get(ctx, "api/updates", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserStats returns the home screen figures.
func (c *Client) UserStats(ctx context.Context) ([]model.StatTile, error) {
	var tiles []model.StatTile
	if err := c.gw.Get(ctx, "api/user_stats", &tiles); err != nil {
		return nil, err
	}
	return tiles, nil
}

// ReportQuestion flags a question of an exam as wrong or unclear.
func (c *Client) ReportQuestion(ctx context.Context, req model.ReportRequest) error {
	return c.gw.Post(ctx, "api/report", req, nil)
}

// Coins returns the reward balance.
func (c *Client) Coins(ctx context.Context) (*model.Coins, error) {
	var coins model.Coins
	if err := c.gw.Get(ctx, "api/fetch_coins", &coins); err != nil {
		return nil, err
	}
	return &coins, nil
}

// OverviewStats returns the performance analysis across all subjects.
func (c *Client) OverviewStats(ctx context.Context) (*model.OverviewStats, error) {
	var stats model.OverviewStats
	if err := c.gw.Get(ctx, "api/overview_stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SubjectStats returns the performance analysis of one subject.
func (c *Client) SubjectStats(ctx context.Context, subject string) (*model.SubjectStats, error) {
	var stats model.SubjectStats
	if err := c.gw.Get(ctx, "api/subject_stats/"+url.PathEscape(subject), &stats); err != nil {
		return nil, err
	}
	if stats.Subject == "" {
		stats.Subject = subject
	}
	return &stats, nil
}

// Tests lists the assigned tests the student can still take. The server
// answers 404 when no tests are published at all; that is an empty list.
func (c *Client) Tests(ctx context.Context) (*model.TestList, error) {
	var list model.TestList
	err := c.gw.Get(ctx, "api/tests", &list)
	var he *gateway.HTTPError
	if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
		return &model.TestList{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &list, nil
}
