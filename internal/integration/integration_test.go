package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"quiz-api/internal/app"
	"quiz-api/internal/domain"
	"quiz-api/internal/infra/memory"
	mongostore "quiz-api/internal/infra/mongo"
	pgstore "quiz-api/internal/infra/postgres"
	pgmigrations "quiz-api/internal/infra/postgres/migrations"
	infraredis "quiz-api/internal/infra/redis"

	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestPostgresDailyCapEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgstore.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	users := pgstore.NewUserRepository(pool)
	questions := pgstore.NewQuestionRepository(pool)
	keys := infraredis.NewAnswerKeyCache(redisClient, questions, 5*time.Minute)
	policy := app.NewDailyCapPolicy(pgstore.NewAttemptLogRepository(pool), 3, time.UTC)
	questionSvc := app.NewQuestionService(questions, keys, 2)
	grading := app.NewGradingService(app.DefaultStrategies(questions, 2), keys, policy, nil, nil)

	user, err := users.Create(ctx, domain.User{Username: "pat", Email: "pat@example.com", PasswordHash: "x", Role: domain.RoleStudent, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	qs := seedQuestions(t, ctx, questionSvc)

	answers := make([]domain.AnswerSubmission, 0, len(qs))
	for _, q := range qs {
		answers = append(answers, domain.AnswerSubmission{QuestionID: q.ID, Selected: q.CorrectIndex})
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		capped   int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := grading.Submit(ctx, user, app.Submission{QuizType: domain.QuizAll, Answers: answers, TimeTaken: 12})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrDailyLimitReached):
				capped++
			default:
				t.Errorf("unexpected submit error: %v", err)
			}
		}()
	}
	wg.Wait()
	if accepted != 3 || capped != 3 {
		t.Fatalf("expected 3 accepted and 3 capped, got %d and %d", accepted, capped)
	}

	results, err := policy.ResultsFor(ctx, user.ID)
	if err != nil || len(results) != 3 {
		t.Fatalf("expected 3 stored attempts, got %d (%v)", len(results), err)
	}
	if results[0].Score != len(qs) {
		t.Fatalf("expected full score, got %d", results[0].Score)
	}

	found, err := questionSvc.Search(ctx, domain.QuestionFilter{Topic: "http"})
	if err != nil || len(found) != 1 {
		t.Fatalf("expected one HTTP question, got %d (%v)", len(found), err)
	}
}

func TestMongoSingleResultEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	uri, cleanup := startMongo(t, ctx)
	defer cleanup()

	client, err := mongostore.Connect(ctx, uri)
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	defer client.Disconnect(context.Background())
	db := client.Database("quiz_it")
	if err := mongostore.EnsureIndexes(ctx, db); err != nil {
		t.Fatalf("indexes: %v", err)
	}

	users := mongostore.NewUserRepository(db)
	questions := mongostore.NewQuestionRepository(db)
	results := mongostore.NewResultRepository(db)
	policy := app.NewSingleResultPolicy(results)
	questionSvc := app.NewQuestionService(questions, nil, 2)
	grading := app.NewGradingService(app.DefaultStrategies(questions, 2), memory.NewAnswerKeyCache(questions, time.Minute), policy, nil, nil)

	student, err := users.Create(ctx, domain.User{Username: "lee", Email: "lee@example.com", PasswordHash: "x", Role: domain.RoleStudent, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := users.Create(ctx, domain.User{Username: "LEE", Email: "other@example.com", PasswordHash: "x", Role: domain.RoleStudent}); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected case-insensitive username conflict, got %v", err)
	}
	qs := seedQuestions(t, ctx, questionSvc)

	for i := 0; i < 10; i++ {
		sample, err := questions.Sample(ctx, len(qs)+1)
		if err != nil {
			t.Fatalf("sample: %v", err)
		}
		if len(sample) != len(qs) || sample[0].ID == sample[1].ID {
			t.Fatalf("expected %d distinct sampled questions, got %+v", len(qs), sample)
		}
	}

	answers := make([]domain.AnswerSubmission, 0, len(qs))
	for _, q := range qs {
		answers = append(answers, domain.AnswerSubmission{QuestionID: q.ID, Selected: domain.NoSelection})
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := grading.Submit(ctx, student, app.Submission{QuizType: domain.QuizAll, Answers: answers})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrAlreadyAttempted) {
				t.Errorf("unexpected submit error: %v", err)
			}
		}()
	}
	wg.Wait()
	if accepted != 1 {
		t.Fatalf("expected exactly one stored result, got %d", accepted)
	}

	student.AllowRetake = true
	for i := range answers {
		answers[i].Selected = qs[i].CorrectIndex
	}
	if _, err := grading.Submit(ctx, student, app.Submission{QuizType: domain.QuizAll, Answers: answers}); err != nil {
		t.Fatalf("retake: %v", err)
	}
	stored, err := policy.ResultsFor(ctx, student.ID)
	if err != nil || len(stored) != 1 || stored[0].Score != len(qs) {
		t.Fatalf("expected one overwritten result with full score, got %+v (%v)", stored, err)
	}
}

func seedQuestions(t *testing.T, ctx context.Context, svc *app.QuestionService) []domain.Question {
	t.Helper()
	specs := []domain.Question{
		{Text: "Which keyword starts a goroutine?", Options: []string{"go", "async", "spawn", "thread"}, CorrectIndex: 0, Course: "Go", Topic: "Concurrency"},
		{Text: "Which status code means Not Found?", Options: []string{"400", "401", "403", "404"}, CorrectIndex: 3, Course: "Networking", Topic: "HTTP"},
	}
	out := make([]domain.Question, 0, len(specs))
	for _, q := range specs {
		created, err := svc.Create(ctx, q, "it")
		if err != nil {
			t.Fatalf("create question: %v", err)
		}
		out = append(out, created)
	}
	return out
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	container, host := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	})
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	return fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	container, host := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	})
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func startMongo(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	container, host := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	})
	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		t.Fatalf("mongo port: %v", err)
	}
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest) (tc.Container, string) {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("%s host: %v", req.Image, err)
	}
	return container, host
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
