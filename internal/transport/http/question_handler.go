package http

import (
	"net/http"
	"strconv"
	"strings"

	"quiz-api/internal/app"
	"quiz-api/internal/domain"
	"quiz-api/internal/validation"

	"github.com/gin-gonic/gin"
)

type QuestionHandler struct {
	questions *app.QuestionService
}

func NewQuestionHandler(questions *app.QuestionService) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

func (h *QuestionHandler) Create(c *gin.Context) {
	var req validation.QuestionRequest
	if !bind(c, &req) {
		return
	}
	q, err := h.questions.Create(c.Request.Context(), req.ToQuestion(), currentUser(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "question added successfully", gin.H{
		"question":      q,
		"correctAnswer": q.CorrectAnswer(),
	})
}

func (h *QuestionHandler) Update(c *gin.Context) {
	var req validation.QuestionRequest
	if !bind(c, &req) {
		return
	}
	q, err := h.questions.Update(c.Request.Context(), c.Param("id"), req.ToQuestion())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "question updated successfully", gin.H{
		"question":      q,
		"correctAnswer": q.CorrectAnswer(),
	})
}

// List returns the catalog, optionally restricted to a comma-separated topic list.
func (h *QuestionHandler) List(c *gin.Context) {
	var topics []string
	if raw := c.Query("topic"); raw != "" {
		topics = strings.Split(raw, ",")
	}
	qs, err := h.questions.List(c.Request.Context(), topics)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "questions fetched successfully", questionList(currentUser(c), qs))
}

func (h *QuestionHandler) Random(c *gin.Context) {
	qs, err := h.questions.Random(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "random questions fetched successfully", questionList(currentUser(c), qs))
}

func (h *QuestionHandler) Search(c *gin.Context) {
	filter := domain.QuestionFilter{Course: c.Query("course"), Topic: c.Query("topic")}
	qs, err := h.questions.Search(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "questions fetched successfully", questionList(currentUser(c), qs))
}

func (h *QuestionHandler) Delete(c *gin.Context) {
	if err := h.questions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "question deleted successfully", nil)
}

// DeleteAll wipes the catalog only; results and users stay.
func (h *QuestionHandler) DeleteAll(c *gin.Context) {
	n, err := h.questions.DeleteAll(c.Request.Context(), agreed(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "all questions deleted successfully", gin.H{"deletedCount": n})
}

// questionList hides answer keys from everyone but admins.
func questionList(user domain.User, qs []domain.Question) gin.H {
	if user.IsAdmin() {
		return gin.H{"totalQuestions": len(qs), "questions": qs}
	}
	public := make([]domain.PublicQuestion, 0, len(qs))
	for _, q := range qs {
		public = append(public, q.Public())
	}
	return gin.H{"totalQuestions": len(public), "questions": public}
}

func agreed(c *gin.Context) bool {
	ok, _ := strconv.ParseBool(c.Query("agreed"))
	return ok
}
