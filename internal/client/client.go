// Package client talks to the quiz API over HTTP and adapts it to the
// session state machine.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quiz-api/internal/domain"
)

// APIError is a failed envelope returned by the server.
type APIError struct {
	Status     int
	Message    string
	Violations []string
}

func (e *APIError) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.Status, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New returns a client for baseURL, e.g. http://localhost:8080/api.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) Token() string { return c.token }

func (c *Client) SetToken(token string) { c.token = token }

type authData struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// Login signs in and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (domain.User, error) {
	var out authData
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return domain.User{}, err
	}
	c.token = out.Token
	return out.User, nil
}

// Register creates a student account and keeps its token.
func (c *Client) Register(ctx context.Context, username, email, password string) (domain.User, error) {
	var out authData
	body := map[string]string{"username": username, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, &out); err != nil {
		return domain.User{}, err
	}
	c.token = out.Token
	return out.User, nil
}

type questionsData struct {
	Questions []domain.PublicQuestion `json:"questions"`
}

// Questions fetches the question set a quiz type is graded against.
func (c *Client) Questions(ctx context.Context, quizType domain.QuizType, filter domain.QuestionFilter) ([]domain.PublicQuestion, error) {
	var path string
	switch quizType {
	case domain.QuizRandom:
		path = "/questions/random"
	case domain.QuizAll:
		path = "/questions/get_questions"
	case domain.QuizFiltered:
		q := url.Values{}
		if filter.Course != "" {
			q.Set("course", filter.Course)
		}
		if filter.Topic != "" {
			q.Set("topic", filter.Topic)
		}
		path = "/questions/search?" + q.Encode()
	default:
		return nil, domain.ErrInvalidQuizType
	}
	var out questionsData
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

type answerBody struct {
	Question       string `json:"question"`
	SelectedAnswer int    `json:"selectedAnswer"`
}

type submitBody struct {
	QuizType  domain.QuizType `json:"quizType"`
	Course    string          `json:"course,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Answers   []answerBody    `json:"answers"`
	TimeTaken int             `json:"timeTaken"`
}

// SubmitResult is the graded response of a submission.
type SubmitResult struct {
	ResultID          string                `json:"resultId"`
	Score             int                   `json:"score"`
	TotalQuestions    int                   `json:"totalQuestions"`
	PercentageScore   float64               `json:"percentageScore"`
	TimeTaken         int                   `json:"timeTaken"`
	AnsweredQuestions int                   `json:"answeredQuestions"`
	Answers           []domain.GradedAnswer `json:"answers"`
	AttemptNumber     int                   `json:"attemptNumber"`
	AttemptsRemaining *int                  `json:"attemptsRemaining"`
}

func (c *Client) Submit(ctx context.Context, quizType domain.QuizType, filter domain.QuestionFilter, answers []domain.AnswerSubmission, timeTaken int) (SubmitResult, error) {
	body := submitBody{
		QuizType:  quizType,
		Course:    filter.Course,
		Topic:     filter.Topic,
		Answers:   make([]answerBody, 0, len(answers)),
		TimeTaken: timeTaken,
	}
	for _, a := range answers {
		body.Answers = append(body.Answers, answerBody{Question: a.QuestionID, SelectedAnswer: a.Selected})
	}
	var out SubmitResult
	if err := c.do(ctx, http.MethodPost, "/results", body, &out); err != nil {
		return SubmitResult{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
		var details struct {
			Errors []string `json:"errors"`
		}
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &details) == nil {
			apiErr.Violations = details.Errors
		}
		return apiErr
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s data: %w", method, path, err)
		}
	}
	return nil
}
