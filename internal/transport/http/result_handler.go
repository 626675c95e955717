package http

import (
	"net/http"
	"strconv"

	"quiz-api/internal/app"
	"quiz-api/internal/domain"
	"quiz-api/internal/validation"

	"github.com/gin-gonic/gin"
)

type ResultHandler struct {
	grading *app.GradingService
	results *app.ResultService
}

func NewResultHandler(grading *app.GradingService, results *app.ResultService) *ResultHandler {
	return &ResultHandler{grading: grading, results: results}
}

// Submit grades the caller's answers. The submitting user always comes from
// the token.
func (h *ResultHandler) Submit(c *gin.Context) {
	var req validation.SubmissionRequest
	if !bind(c, &req) {
		submissions.WithLabelValues("invalid").Inc()
		return
	}
	out, err := h.grading.Submit(c.Request.Context(), currentUser(c), app.Submission{
		QuizType:  domain.QuizType(req.QuizType),
		Filter:    domain.QuestionFilter{Course: req.Course, Topic: req.Topic},
		Answers:   req.ToAnswers(),
		TimeTaken: *req.TimeTaken,
	})
	submissions.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		writeError(c, err)
		return
	}
	data := gin.H{
		"resultId":          out.ResultID,
		"quizType":          out.Attempt.QuizType,
		"score":             out.Attempt.Score,
		"totalQuestions":    out.Attempt.TotalQuestions,
		"percentageScore":   out.Attempt.PercentageScore,
		"timeTaken":         out.Attempt.TimeTaken,
		"answeredQuestions": out.AnsweredQuestions,
		"answers":           out.Attempt.Answers,
		"attemptNumber":     out.AttemptNumber,
		"createdAt":         out.Attempt.CreatedAt,
	}
	if out.Attempt.Course != "" {
		data["course"] = out.Attempt.Course
	}
	if out.Attempt.Topic != "" {
		data["topic"] = out.Attempt.Topic
	}
	if out.AttemptsRemaining != nil {
		data["attemptsRemaining"] = *out.AttemptsRemaining
	}
	respond(c, http.StatusCreated, "quiz submitted successfully", data)
}

func (h *ResultHandler) ForStudent(c *gin.Context) {
	results, err := h.results.ForUser(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "results fetched successfully", gin.H{
		"totalResults": len(results),
		"results":      results,
	})
}

func (h *ResultHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.results.List(c.Request.Context(), domain.Page{Page: page, Limit: limit})
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "results fetched successfully", gin.H{
		"totalResults": res.Total,
		"page":         res.Page.Page,
		"limit":        res.Page.Limit,
		"results":      res.Results,
	})
}

func (h *ResultHandler) ClearDatabase(c *gin.Context) {
	sum, err := h.results.ClearDatabase(c.Request.Context(), agreed(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "database cleared successfully", sum)
}
