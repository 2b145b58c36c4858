package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine"
	"github.com/AntonStoeckl/library-circulation-engine-go/example/config"
)

func main() {
	applySchema := flag.Bool("apply-schema", true, "Apply the table schema before running")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgxPool, err := pgxpool.NewWithConfig(ctx, config.PostgresPGXPoolTestConfig())
	if err != nil {
		log.Fatalf("Failed to create pgx pool: %v", err)
	}
	defer pgxPool.Close()

	if err := pgxPool.Ping(ctx); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if *applySchema {
		if _, err := pgxPool.Exec(ctx, postgresengine.Schema()); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	engine, err := postgresengine.NewEngineFromPGXPool(
		pgxPool,
		postgresengine.WithLogger(slogAdapter{logger}),
		postgresengine.WithNotifier(logNotifier{logger}),
	)
	if err != nil {
		log.Fatalf("Failed to create circulation engine: %v", err)
	}

	if err := runScenario(ctx, engine); err != nil {
		log.Fatalf("Demo scenario failed: %v", err)
	}

	log.Print("Demo scenario completed")
}

// runScenario walks one copy of one book through a full lifecycle: request,
// approval, pickup, a competing reservation, return, and the resulting
// promotion of the waiting reader.
func runScenario(ctx context.Context, engine *postgresengine.Engine) error {
	staff := circulation.StaffActor(uuid.New())
	firstReader := circulation.UserActor(uuid.New())
	secondReader := circulation.UserActor(uuid.New())

	bookID, err := engine.CreateBook(ctx, staff, circulation.NewBook{
		Title:  "The Left Hand of Darkness",
		ISBN13: "9780441478125",
		Copies: 1,
	})
	if err != nil {
		return err
	}

	loanID, err := engine.RequestLoan(ctx, firstReader, bookID)
	if err != nil {
		return err
	}

	if err := engine.ApproveLoan(ctx, staff, loanID); err != nil {
		return err
	}

	if err := engine.ConfirmPickup(ctx, staff, loanID); err != nil {
		return err
	}

	reservationRange, err := circulation.RangeFrom(circulation.DayOf(time.Now().AddDate(0, 1, 0)), 14)
	if err != nil {
		return err
	}

	if _, err := engine.CreateReservation(ctx, secondReader, bookID, reservationRange); err != nil {
		return err
	}

	if err := engine.ReturnLoan(ctx, staff, loanID); err != nil {
		return err
	}

	queue, err := engine.ListQueue(ctx, bookID)
	if err != nil {
		return err
	}

	log.Printf("Active reservations after return: %d", len(queue))

	return nil
}

// slogAdapter bridges a *slog.Logger to the engine's Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

// logNotifier writes notifications to the log instead of delivering them.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Notify(_ context.Context, notification circulation.Notification) error {
	n.logger.Info("notification",
		"kind", string(notification.Kind),
		"subject_id", notification.SubjectID.String(),
		"user_id", notification.UserID.String())

	return nil
}
