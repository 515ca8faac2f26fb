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

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
	"quizroom-service/internal/infra/postgres"
	redisinfra "quizroom-service/internal/infra/redis"
	transport "quizroom-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
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
	runTTL := config.TTLDuration(cfg.Run.TTL, 2*time.Hour)

	var (
		rooms        app.RoomRepository        = memory.NewRoomStore()
		participants app.ParticipantRepository = memory.NewParticipantStore()
		answers      app.AnswerRepository      = memory.NewAnswerStore()
		quizzes      app.QuizRepository        = memory.NewQuizStore(sampleQuizzes())
	)
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		rooms = postgres.NewRoomRepo(db)
		participants = postgres.NewParticipantRepo(db)
		answers = postgres.NewAnswerRepo(db)
		quizzes = postgres.NewQuizLoader(pool)
	}

	var (
		runs app.RunRepository = memory.NewRunStore()
		feed app.EventFeed     = memory.NewBroadcaster()
	)
	if redisClient != nil {
		runs = redisinfra.NewRunStore(redisClient, runTTL)
		feed = redisinfra.NewEventFeed(redisClient)
	}

	service := app.NewRoomService(rooms, participants, answers, quizzes, runs, feed)
	wsHandler := transport.NewWSHandler(service)
	roomsHandler := transport.NewRoomsHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /rooms", roomsHandler.CreateRoom)
	mux.HandleFunc("GET /rooms/{code}/leaderboard", roomsHandler.Leaderboard)
	mux.HandleFunc("GET /rooms/{code}/results.csv", roomsHandler.ResultsCSV)
	mux.HandleFunc("/ws/play", wsHandler.ServePlay)
	mux.HandleFunc("/ws/control", wsHandler.ServeControl)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz room service on :%s", finalPort)
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

// sampleQuizzes seeds the in-memory quiz catalog used when Postgres is not
// configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"addition-single": {
			ID:            "addition-single",
			Title:         "Single-digit addition",
			Type:          domain.QuizProcedural,
			Subtype:       domain.SubtypeAdditionSingle,
			QuestionCount: 10,
		},
		"addition-double": {
			ID:            "addition-double",
			Title:         "Double-digit addition",
			Type:          domain.QuizProcedural,
			Subtype:       domain.SubtypeAdditionDouble,
			QuestionCount: 10,
		},
		"fractions-basics": {
			ID:    "fractions-basics",
			Title: "Fractions basics",
			Type:  domain.QuizFixedSet,
			Questions: []domain.FixedQuestion{
				{Text: "What is 1/2 + 1/4?", CorrectAnswer: "3/4", WrongAnswers: []string{"2/6", "1/8", "2/4"}, OrderIndex: 0},
				{Text: "What is 1/3 of 9?", CorrectAnswer: "3", WrongAnswers: []string{"6", "9", "1"}, OrderIndex: 1},
				{Text: "Which fraction equals 0.5?", CorrectAnswer: "2/4", WrongAnswers: []string{"1/4", "2/3", "3/5"}, OrderIndex: 2},
			},
		},
	}
}
