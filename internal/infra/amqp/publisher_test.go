package amqp

import (
	"encoding/json"
	"testing"
	"time"

	"quiz-api/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestPublishingEncodesEvent(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	ev := domain.ResultEvent{UserID: "u1", QuizType: domain.QuizRandom, Score: 2, TotalQuestions: 3}

	msg, err := publishing("quiz.result.recorded", ev, now)
	if err != nil {
		t.Fatalf("publishing: %v", err)
	}
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected message properties: %+v", msg)
	}
	if msg.Headers["event_type"] != "quiz.result.recorded" {
		t.Fatalf("missing event_type header: %v", msg.Headers)
	}
	var decoded domain.ResultEvent
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.UserID != "u1" || decoded.Score != 2 {
		t.Fatalf("unexpected body %+v", decoded)
	}
}

func TestPublishingRejectsUnencodablePayload(t *testing.T) {
	if _, err := publishing("x", make(chan int), time.Now()); err == nil {
		t.Fatalf("expected marshal error")
	}
}
