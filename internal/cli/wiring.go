package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"quiz-api/internal/app"
	"quiz-api/internal/auth"
	"quiz-api/internal/config"
	amqppub "quiz-api/internal/infra/amqp"
	"quiz-api/internal/infra/memory"
	mongostore "quiz-api/internal/infra/mongo"
	pgstore "quiz-api/internal/infra/postgres"
	rediscache "quiz-api/internal/infra/redis"

	"github.com/redis/go-redis/v9"
)

// stores bundles the repositories of one storage driver.
type stores struct {
	users     app.UserRepository
	questions app.QuestionRepository
	results   app.ResultRepository
	logs      app.AttemptLogRepository
	closers   []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Printf("using in-memory storage; data is lost on exit")
		return &stores{
			users:     memory.NewUserStore(),
			questions: memory.NewQuestionStore(),
			results:   memory.NewResultStore(),
			logs:      memory.NewAttemptLogStore(),
		}, nil

	case config.DriverMongo:
		if cfg.Mongo.URI == "" {
			return nil, fmt.Errorf("mongo uri not configured")
		}
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Mongo.Database)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		log.Printf("connected to mongo database %s", cfg.Mongo.Database)
		return &stores{
			users:     mongostore.NewUserRepository(db),
			questions: mongostore.NewQuestionRepository(db),
			results:   mongostore.NewResultRepository(db),
			logs:      mongostore.NewAttemptLogRepository(db),
			closers: []func(){func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = client.Disconnect(ctx)
			}},
		}, nil

	case config.DriverPostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		pool, err := pgstore.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		return &stores{
			users:     pgstore.NewUserRepository(pool),
			questions: pgstore.NewQuestionRepository(pool),
			results:   pgstore.NewResultRepository(pool),
			logs:      pgstore.NewAttemptLogRepository(pool),
			closers:   []func(){pool.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// answerKeys returns the Redis cache when configured, otherwise the in-process one.
func answerKeys(ctx context.Context, cfg config.Config, loader app.AnswerKeyLoader) (app.AnswerKeyStore, func(), error) {
	ttl := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	if cfg.Redis.Addr == "" {
		return memory.NewAnswerKeyCache(loader, ttl), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Printf("answer keys cached in redis at %s", cfg.Redis.Addr)
	return rediscache.NewAnswerKeyCache(client, loader, ttl), func() { _ = client.Close() }, nil
}

// publisher returns a RabbitMQ publisher when configured.
func publisher(cfg config.Config) (app.EventPublisher, func(), error) {
	if cfg.RabbitMQ.URL == "" {
		log.Printf("rabbitmq not configured, result events stay in process")
		return app.NopPublisher{}, func() {}, nil
	}
	pub, err := amqppub.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		return nil, nil, err
	}
	return pub, func() { _ = pub.Close() }, nil
}

func policy(cfg config.Config, s *stores) (app.AttemptPolicy, error) {
	switch cfg.Quiz.Policy {
	case config.PolicySingle:
		return app.NewSingleResultPolicy(s.results), nil
	case config.PolicyDaily:
		return app.NewDailyCapPolicy(s.logs, cfg.Quiz.DailyLimit, cfg.Location()), nil
	default:
		return nil, fmt.Errorf("unknown quiz policy %q", cfg.Quiz.Policy)
	}
}

func authService(cfg config.Config, users app.UserRepository) (*app.AuthService, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required")
	}
	if !cfg.AdminRegistrationAllowed() {
		log.Printf("admin self-registration disabled")
	}
	return app.NewAuthService(
		users,
		auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		auth.NewTokenIssuer(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 72*time.Hour)),
		cfg.AdminRegistrationAllowed(),
	), nil
}
