package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-api/internal/app"
	"quiz-api/internal/config"
	transport "quiz-api/internal/transport/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	keys, closeKeys, err := answerKeys(ctx, cfg, st.questions)
	if err != nil {
		return err
	}
	defer closeKeys()

	pub, closePub, err := publisher(cfg)
	if err != nil {
		return err
	}
	defer closePub()

	attempts, err := policy(cfg, st)
	if err != nil {
		return err
	}
	authSvc, err := authService(cfg, st.users)
	if err != nil {
		return err
	}

	questions := app.NewQuestionService(st.questions, keys, cfg.Quiz.RandomSize)
	feed := app.NewResultFeed(20)
	grading := app.NewGradingService(app.DefaultStrategies(st.questions, cfg.Quiz.RandomSize), keys, attempts, feed, pub)

	gin.SetMode(gin.ReleaseMode)
	router := transport.NewRouter(transport.Services{
		Auth:      authSvc,
		Questions: questions,
		Grading:   grading,
		Results:   app.NewResultService(attempts, st.users, questions),
		Feed:      feed,
	}, cfg.Server.CORSOrigins)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz api on :%s (storage=%s, policy=%s)", finalPort, cfg.Storage.Driver, cfg.Quiz.Policy)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
