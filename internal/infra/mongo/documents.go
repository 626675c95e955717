package mongo

import (
	"regexp"
	"strings"
	"time"

	"quiz-api/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	Role         string             `bson:"role"`
	AllowRetake  bool               `bson:"allow_retake"`
	CreatedAt    time.Time          `bson:"created_at"`
}

func (d userDoc) toDomain() domain.User {
	return domain.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         domain.Role(d.Role),
		AllowRetake:  d.AllowRetake,
		CreatedAt:    d.CreatedAt,
	}
}

type questionDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Text         string             `bson:"question"`
	Options      []string           `bson:"answers"`
	CorrectIndex int                `bson:"correct_answer_index"`
	Course       string             `bson:"course"`
	Topic        string             `bson:"topic"`
	CreatedBy    string             `bson:"created_by,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

func newQuestionDoc(q domain.Question) questionDoc {
	return questionDoc{
		Text:         q.Text,
		Options:      q.Options,
		CorrectIndex: q.CorrectIndex,
		Course:       q.Course,
		Topic:        q.Topic,
		CreatedBy:    q.CreatedBy,
		CreatedAt:    q.CreatedAt,
		UpdatedAt:    q.UpdatedAt,
	}
}

func (d questionDoc) toDomain() domain.Question {
	return domain.Question{
		ID:           d.ID.Hex(),
		Text:         d.Text,
		Options:      d.Options,
		CorrectIndex: d.CorrectIndex,
		Course:       d.Course,
		Topic:        d.Topic,
		CreatedBy:    d.CreatedBy,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type answerDoc struct {
	QuestionID    string `bson:"question_id"`
	Selected      int    `bson:"selected_answer"`
	CorrectAnswer int    `bson:"correct_answer"`
	IsCorrect     bool   `bson:"is_correct"`
}

type attemptDoc struct {
	QuizType        string      `bson:"quiz_type"`
	Course          string      `bson:"course,omitempty"`
	Topic           string      `bson:"topic,omitempty"`
	Answers         []answerDoc `bson:"answers"`
	Score           int         `bson:"score"`
	TotalQuestions  int         `bson:"total_questions"`
	PercentageScore float64     `bson:"percentage_score"`
	TimeTaken       int         `bson:"time_taken"`
	CreatedAt       time.Time   `bson:"created_at"`
}

func newAttemptDoc(a domain.Attempt) attemptDoc {
	answers := make([]answerDoc, 0, len(a.Answers))
	for _, g := range a.Answers {
		answers = append(answers, answerDoc{
			QuestionID:    g.QuestionID,
			Selected:      g.Selected,
			CorrectAnswer: g.CorrectAnswer,
			IsCorrect:     g.IsCorrect,
		})
	}
	return attemptDoc{
		QuizType:        string(a.QuizType),
		Course:          a.Course,
		Topic:           a.Topic,
		Answers:         answers,
		Score:           a.Score,
		TotalQuestions:  a.TotalQuestions,
		PercentageScore: a.PercentageScore,
		TimeTaken:       a.TimeTaken,
		CreatedAt:       a.CreatedAt,
	}
}

func (d attemptDoc) toDomain() domain.Attempt {
	answers := make([]domain.GradedAnswer, 0, len(d.Answers))
	for _, g := range d.Answers {
		answers = append(answers, domain.GradedAnswer{
			QuestionID:    g.QuestionID,
			Selected:      g.Selected,
			CorrectAnswer: g.CorrectAnswer,
			IsCorrect:     g.IsCorrect,
		})
	}
	return domain.Attempt{
		QuizType:        domain.QuizType(d.QuizType),
		Course:          d.Course,
		Topic:           d.Topic,
		Answers:         answers,
		Score:           d.Score,
		TotalQuestions:  d.TotalQuestions,
		PercentageScore: d.PercentageScore,
		TimeTaken:       d.TimeTaken,
		CreatedAt:       d.CreatedAt,
	}
}

type resultDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Attempt   attemptDoc         `bson:",inline"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func newResultDoc(r domain.Result) resultDoc {
	return resultDoc{UserID: r.UserID, Attempt: newAttemptDoc(r.Attempt), UpdatedAt: r.UpdatedAt}
}

func (d resultDoc) toDomain() domain.Result {
	return domain.Result{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Attempt:   d.Attempt.toDomain(),
		UpdatedAt: d.UpdatedAt,
	}
}

type attemptLogDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Attempts  []attemptDoc       `bson:"attempts"`
	Version   int64              `bson:"version"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (d attemptLogDoc) toDomain() domain.AttemptLog {
	attempts := make([]domain.Attempt, 0, len(d.Attempts))
	for _, a := range d.Attempts {
		attempts = append(attempts, a.toDomain())
	}
	return domain.AttemptLog{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Attempts:  attempts,
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// filterDoc builds a case-insensitive substring match on course and topic.
func filterDoc(f domain.QuestionFilter) bson.M {
	doc := bson.M{}
	if c := strings.TrimSpace(f.Course); c != "" {
		doc["course"] = primitive.Regex{Pattern: regexp.QuoteMeta(c), Options: "i"}
	}
	if t := strings.TrimSpace(f.Topic); t != "" {
		doc["topic"] = primitive.Regex{Pattern: regexp.QuoteMeta(t), Options: "i"}
	}
	return doc
}

// objectIDs parses hex ids, skipping the malformed ones.
func objectIDs(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}
