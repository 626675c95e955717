package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"quiz-api/internal/client"
	"quiz-api/internal/config"
	"quiz-api/internal/domain"
	"quiz-api/internal/session"

	"github.com/spf13/cobra"
)

var (
	errInterrupted = errors.New("quiz interrupted; progress is saved")
	errLeft        = errors.New("left the quiz; progress is saved")
)

type takeOptions struct {
	apiURL    string
	email     string
	password  string
	quizType  string
	course    string
	topic     string
	statePath string
}

// NewTakeCmd runs the quiz in the terminal against a running API.
func NewTakeCmd(configPath *string) *cobra.Command {
	var opts takeOptions
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take a quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runTake(cmd.Context(), cfg, opts, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.apiURL, "api", os.Getenv("QUIZ_API_URL"), "API base URL (default http://localhost:<server.port>/api)")
	cmd.Flags().StringVar(&opts.email, "email", os.Getenv("QUIZ_EMAIL"), "account email")
	cmd.Flags().StringVar(&opts.password, "password", os.Getenv("QUIZ_PASSWORD"), "account password")
	cmd.Flags().StringVar(&opts.quizType, "type", string(domain.QuizRandom), "quiz type: random, all or filtered")
	cmd.Flags().StringVar(&opts.course, "course", "", "course filter for the filtered quiz")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "topic filter for the filtered quiz")
	cmd.Flags().StringVar(&opts.statePath, "state", "", "session state file (default in the user config dir)")
	return cmd
}

func runTake(ctx context.Context, cfg config.Config, opts takeOptions, in io.Reader, out io.Writer) error {
	quizType, err := domain.ParseQuizType(opts.quizType)
	if err != nil {
		return err
	}
	if opts.email == "" || opts.password == "" {
		return fmt.Errorf("--email and --password (or QUIZ_EMAIL/QUIZ_PASSWORD) are required")
	}
	if opts.apiURL == "" {
		p := cfg.Server.Port
		if p == "" {
			p = "8080"
		}
		opts.apiURL = "http://localhost:" + p + "/api"
	}
	if opts.statePath == "" {
		opts.statePath, err = defaultStatePath(opts.email, quizType)
		if err != nil {
			return err
		}
	}

	api := client.New(opts.apiURL, nil)
	user, err := api.Login(ctx, opts.email, opts.password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Signed in as %s\n", user.Username)

	filter := domain.QuestionFilter{Course: opts.course, Topic: opts.topic}
	duration := config.TTLDuration(cfg.Quiz.Duration, 20*time.Minute)
	s, err := session.New(session.NewFileStore(opts.statePath), client.NewQuizBackend(api, quizType, filter), duration)
	if err != nil {
		return err
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	return drive(ctx, s, readLines(in), interrupts, out)
}

func defaultStatePath(email string, quizType domain.QuizType) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	safe := strings.Map(func(r rune) rune {
		if r == '@' || r == '.' || r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, strings.ToLower(email))
	return filepath.Join(dir, "quiz-api", fmt.Sprintf("%s-%s.json", safe, quizType)), nil
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// syncWriter serializes output from the countdown and the input loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

// drive walks the session through its steps using terminal input.
func drive(ctx context.Context, s *session.Session, lines <-chan string, interrupts <-chan os.Signal, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	out := &syncWriter{w: w}

	if s.Step() == session.StepCompleted {
		fmt.Fprintln(out, "You have already completed this quiz.")
		return nil
	}

	if s.Step() == session.StepInfo {
		fmt.Fprintln(out, "The countdown starts as soon as you begin and the quiz is submitted when it runs out.")
		for s.Step() == session.StepInfo {
			fmt.Fprint(out, "Type 'start' to begin: ")
			select {
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if strings.EqualFold(strings.TrimSpace(line), "start") {
					if err := s.Start(ctx); err != nil {
						return err
					}
				}
			case <-interrupts:
				return errInterrupted
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if s.Step() == session.StepQuiz {
		if err := quizLoop(ctx, s, lines, interrupts, out); err != nil {
			return err
		}
	}

	if s.Step() == session.StepResults {
		snap := s.Snapshot()
		if snap.LastScore != nil {
			printScore(out, *snap.LastScore)
		}
		return s.Finish()
	}
	return nil
}

func quizLoop(ctx context.Context, s *session.Session, lines <-chan string, interrupts <-chan os.Signal, out io.Writer) error {
	timerDone := make(chan error, 1)
	go func() {
		timerDone <- s.Run(ctx, func(snap session.Snapshot) {
			if snap.RemainingSeconds > 0 && (snap.RemainingSeconds%60 == 0 || snap.RemainingSeconds <= 10) {
				fmt.Fprintf(out, "\n[%s left]\n", clock(snap.RemainingSeconds))
			}
		})
	}()

	render(out, s.Snapshot())
	warned, leaving := false, false
	for {
		select {
		case err := <-timerDone:
			timerDone = nil
			if s.Step() != session.StepQuiz {
				fmt.Fprintln(out, "\nTime is up, your answers were submitted.")
				return nil
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(out, "\nSubmission failed: %v. Type 's' to retry.\n", err)
			}

		case line, ok := <-lines:
			if !ok {
				return errLeft
			}
			cmd := strings.ToLower(strings.TrimSpace(line))
			if cmd != "q" {
				leaving = false
			}
			switch cmd {
			case "n":
				_ = s.Next()
			case "p":
				_ = s.Prev()
			case "s":
				if _, err := s.Submit(ctx); err != nil {
					fmt.Fprintf(out, "Submission failed: %v. Type 's' to retry.\n", err)
					continue
				}
				return nil
			case "q":
				if msg, warn := s.LeaveGuard(); warn && !leaving {
					fmt.Fprintf(out, "Warning: %s. Type 'q' again to leave.\n", msg)
					leaving = true
					continue
				}
				return errLeft
			default:
				n, err := strconv.Atoi(cmd)
				if err != nil || n < 1 || n > domain.OptionCount {
					fmt.Fprintln(out, "Commands: 1-4 answer, n next, p previous, s submit, q quit")
					continue
				}
				snap := s.Snapshot()
				if err := s.Answer(snap.Questions[snap.Current].ID, n-1); err != nil {
					fmt.Fprintf(out, "Could not record answer: %v\n", err)
					continue
				}
			}
			if s.Step() != session.StepQuiz {
				return nil
			}
			render(out, s.Snapshot())

		case <-interrupts:
			if msg, warn := s.LeaveGuard(); warn && !warned {
				fmt.Fprintf(out, "\nWarning: %s. Press Ctrl+C again to leave.\n", msg)
				warned = true
				continue
			}
			return errInterrupted

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func render(out io.Writer, snap session.Snapshot) {
	if len(snap.Questions) == 0 {
		return
	}
	q := snap.Questions[snap.Current]
	fmt.Fprintf(out, "\nQuestion %d/%d  (%d answered, %s left)\n%s\n", snap.Current+1, len(snap.Questions), len(snap.Answers), clock(snap.RemainingSeconds), q.Text)
	selected, answered := snap.Answers[q.ID]
	for i, opt := range q.Options {
		mark := " "
		if answered && selected == i {
			mark = "*"
		}
		fmt.Fprintf(out, " %s %d) %s\n", mark, i+1, opt)
	}
	fmt.Fprint(out, "> ")
}

func printScore(out io.Writer, score session.Score) {
	fmt.Fprintf(out, "\nScore: %d/%d (%.2f%%)\n", score.Score, score.TotalQuestions, score.PercentageScore)
	if score.AttemptsRemaining != nil {
		fmt.Fprintf(out, "Attempts remaining today: %d\n", *score.AttemptsRemaining)
	}
}

func clock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
