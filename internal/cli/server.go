package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examdeck-session-service/internal/app"
	"examdeck-session-service/internal/config"
	"examdeck-session-service/internal/domain"
	"examdeck-session-service/internal/infra/memory"
	pginfra "examdeck-session-service/internal/infra/postgres"
	redisinfra "examdeck-session-service/internal/infra/redis"
	transport "examdeck-session-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam session server",
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

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 4*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.ExamLoader = memory.NewStaticExamLoader(sampleExams())
	if pool != nil {
		loader = pginfra.NewExamLoader(pool)
	}

	examTTL := config.TTLDuration(cfg.Exam.TTL, 10*time.Minute)
	var examRepo app.ExamRepository
	if redisClient != nil {
		examRepo = redisinfra.NewExamRepository(redisClient, loader, examTTL)
	} else {
		examRepo = memory.NewExamRepository(loader, examTTL)
	}

	var progress app.ProgressStore
	var sessions app.SessionRepository
	if redisClient != nil {
		progress = redisinfra.NewProgressStore(redisClient, redisTTL)
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		progress = memory.NewProgressStore()
		sessions = memory.NewSessionStore()
	}

	var attempts app.AttemptStore = memory.NewAttemptStore()
	if pool != nil {
		attempts = pginfra.NewAttemptStore(pool)
	}

	service := app.NewSessionService(examRepo, sessions, progress, attempts)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB := bun.NewDB(sqldb, pgdialect.New())
		defer bunDB.Close()
		admin := transport.NewAdminHandler(pginfra.NewExamStore(bunDB))
		admin.Register(mux)
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting exam session service on :%s", finalPort)
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

// sampleExams provides minimal exam content for running without Postgres.
func sampleExams() map[string]domain.Exam {
	return map[string]domain.Exam{
		"exam-1": {
			ID:              "exam-1",
			Title:           "Arithmetic warm-up",
			DurationMinutes: 5,
			Questions: []domain.Question{
				{
					ID:         "q1",
					PromptHTML: "<p>What is 2 + 2?</p>",
					Points:     1,
					Choices: []domain.Choice{
						{ID: "c1", TextHTML: "3", Correct: false},
						{ID: "c2", TextHTML: "4", Correct: true},
						{ID: "c3", TextHTML: "5", Correct: false},
					},
				},
				{
					ID:         "q2",
					PromptHTML: "<p>What is 3 &times; 3?</p>",
					Points:     2,
					Choices: []domain.Choice{
						{ID: "c4", TextHTML: "6", Correct: false},
						{ID: "c5", TextHTML: "9", Correct: true},
					},
				},
			},
		},
	}
}
