package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/postgres"
	pgmigrations "quizroom-service/internal/infra/postgres/migrations"
	infraredis "quizroom-service/internal/infra/redis"
)

func TestRoomLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := seedQuiz(t, ctx, pgURL)
	defer db.Close()

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	service := app.NewRoomService(
		postgres.NewRoomRepo(db),
		postgres.NewParticipantRepo(db),
		postgres.NewAnswerRepo(db),
		postgres.NewQuizLoader(pool),
		infraredis.NewRunStore(redisClient, 5*time.Minute),
		infraredis.NewEventFeed(redisClient),
	)

	room, err := service.CreateRoom(ctx, app.CreateRoomParams{
		TeacherID: "teacher-1",
		QuizID:    "quiz-1",
		Mode:      domain.ModeManual,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if len(room.Code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", room.Code)
	}

	events, cancel, err := service.Subscribe(ctx, room.Code)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	first := <-events
	if first.Kind != app.EventRoom || first.Room.Phase != domain.PhaseIdle {
		t.Fatalf("expected idle snapshot first, got %+v", first)
	}

	alice, _, err := service.JoinRoom(ctx, room.Code, "Alice")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob, _, err := service.JoinRoom(ctx, room.Code, "Bob")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}

	snap, err := service.StartQuestions(ctx, room.Code, "teacher-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.Phase != domain.PhaseQuestionActive || snap.QuestionIndex != 0 {
		t.Fatalf("expected question 0 active, got %+v", snap)
	}

	// Both participants see the same materialized run via the shared cache.
	_, questionsA, err := service.RunQuestions(ctx, room.Code)
	if err != nil {
		t.Fatalf("run questions: %v", err)
	}
	_, questionsB, err := service.RunQuestions(ctx, room.Code)
	if err != nil {
		t.Fatalf("run questions: %v", err)
	}
	if len(questionsA) != 2 || questionsA[0].Text != questionsB[0].Text {
		t.Fatalf("expected a stable 2-question run, got %d and %d", len(questionsA), len(questionsB))
	}

	correct := questionsA[0].CorrectAnswer
	if _, inserted, err := service.SubmitAnswer(ctx, alice.ID, 0, correct, 4); err != nil || !inserted {
		t.Fatalf("alice submit: inserted=%v err=%v", inserted, err)
	}
	if _, inserted, err := service.SubmitAnswer(ctx, bob.ID, 0, "wrong", 9); err != nil || !inserted {
		t.Fatalf("bob submit: inserted=%v err=%v", inserted, err)
	}
	// The ledger keeps Alice's first answer.
	if _, inserted, err := service.SubmitAnswer(ctx, alice.ID, 0, "wrong", 1); err != nil || inserted {
		t.Fatalf("duplicate submit should be dropped: inserted=%v err=%v", inserted, err)
	}

	gotCorrect, gotTotal, err := service.QuestionTally(ctx, room.ID, 0)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if gotCorrect != 1 || gotTotal != 2 {
		t.Fatalf("expected tally 1/2, got %d/%d", gotCorrect, gotTotal)
	}

	if _, err := service.RevealResults(ctx, room.Code, "teacher-1"); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if _, err := service.EndRoom(ctx, room.Code, "teacher-1"); err != nil {
		t.Fatalf("end: %v", err)
	}

	sawEnded := false
	deadline := time.After(5 * time.Second)
	for !sawEnded {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event feed closed before ended event")
			}
			if ev.Kind == app.EventEnded {
				sawEnded = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for ended event")
		}
	}

	rows, err := service.Leaderboard(ctx, room.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(rows) != 2 || rows[0].DisplayName != "Alice" || rows[0].Score != 1 {
		t.Fatalf("expected alice leading with 1 point, got %+v", rows)
	}

	// The join code is reusable once the room has ended.
	again, err := service.CreateRoom(ctx, app.CreateRoomParams{
		TeacherID: "teacher-1",
		QuizID:    "quiz-1",
		Mode:      domain.ModeManual,
	})
	if err != nil {
		t.Fatalf("create second room: %v", err)
	}
	if again.ID == room.ID {
		t.Fatalf("expected a fresh room")
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

// seedQuiz migrates the schema and inserts a two-question fixed-set quiz. The
// returned handle stays open for the repositories under test.
func seedQuiz(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO quizzes (id, title, quiz_type, question_count) VALUES (?, ?, ?, ?)`,
		"quiz-1", "Fractions basics", "fixed-set", 2,
	); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	questions := []struct {
		text    string
		correct string
		wrong   string
		order   int
	}{
		{"What is 1/2 + 1/4?", "3/4", `{"2/6","1/8","2/4"}`, 0},
		{"What is 1/3 of 9?", "3", `{"6","9","1"}`, 1},
	}
	for _, q := range questions {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO static_questions (quiz_id, question_text, correct_answer, wrong_answers, order_index)
			 VALUES (?, ?, ?, ?::text[], ?)`,
			"quiz-1", q.text, q.correct, q.wrong, q.order,
		); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
	return db
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
