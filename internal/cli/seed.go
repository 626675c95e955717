package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"quiz-api/internal/app"
	"quiz-api/internal/config"
	"quiz-api/internal/domain"
	"quiz-api/internal/validation"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type seedQuestion struct {
	Question           string   `yaml:"question"`
	Answers            []string `yaml:"answers"`
	CorrectAnswerIndex *int     `yaml:"correctAnswerIndex"`
	Course             string   `yaml:"course"`
	Topic              string   `yaml:"topic"`
}

type seedFile struct {
	Questions []seedQuestion `yaml:"questions"`
}

// NewSeedCmd loads questions from a YAML file into the configured store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questions from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			reqs, err := loadSeed(file)
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := app.NewQuestionService(st.questions, nil, cfg.Quiz.RandomSize)
			added, skipped, err := seedQuestions(cmd.Context(), svc, reqs)
			if err != nil {
				return err
			}
			log.Printf("seeded %d questions from %s (%d already present)", added, file, skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "config/questions.yaml", "YAML file with questions")
	return cmd
}

func loadSeed(path string) ([]validation.QuestionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	reqs := make([]validation.QuestionRequest, 0, len(f.Questions))
	for i, q := range f.Questions {
		req := validation.QuestionRequest{
			Question:           q.Question,
			Answers:            q.Answers,
			CorrectAnswerIndex: q.CorrectAnswerIndex,
			Course:             q.Course,
			Topic:              q.Topic,
		}
		req.Normalize()
		if err := validation.Struct(&req); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// seedQuestions creates every question, skipping ones whose text already exists.
func seedQuestions(ctx context.Context, svc *app.QuestionService, reqs []validation.QuestionRequest) (added, skipped int, err error) {
	for _, req := range reqs {
		_, err := svc.Create(ctx, req.ToQuestion(), "seed")
		switch {
		case err == nil:
			added++
		case errors.Is(err, domain.ErrQuestionExists):
			skipped++
		default:
			return added, skipped, fmt.Errorf("create %q: %w", req.Question, err)
		}
	}
	return added, skipped, nil
}
