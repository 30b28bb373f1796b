package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/terraincognita07/whiteboar/internal/db"
	"gorm.io/gorm"
)

// RunCleanupSessionCommand removes an onboarding session with its submission and analytics
// rows. When only a submission id is given the owning session is resolved from it.
func RunCleanupSessionCommand(ctx context.Context, databaseURL string, sessionID string, submissionID string, out io.Writer) error {
	sessionID = strings.TrimSpace(sessionID)
	submissionID = strings.TrimSpace(submissionID)
	if sessionID == "" && submissionID == "" {
		return errors.New("session id or submission id is required")
	}

	database, err := openDatabase(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer closeDatabase(database)

	repos := db.NewRepositories(database)
	if submissionID != "" {
		submission, err := repos.Submissions.FindByID(ctx, submissionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("submission %s not found", submissionID)
			}
			return fmt.Errorf("load submission: %w", err)
		}
		if sessionID != "" && sessionID != submission.SessionID {
			return fmt.Errorf("submission %s belongs to session %s, not %s", submissionID, submission.SessionID, sessionID)
		}
		sessionID = submission.SessionID
	}

	result, err := repos.Sessions.DeleteCascade(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if result.SessionsDeleted == 0 && result.SubmissionsDeleted == 0 && result.AnalyticsDeleted == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}

	fmt.Fprintf(out, "✅ Session %s removed\n", sessionID)
	fmt.Fprintf(out, "Sessions deleted: %d\n", result.SessionsDeleted)
	fmt.Fprintf(out, "Submissions deleted: %d\n", result.SubmissionsDeleted)
	fmt.Fprintf(out, "Analytics events deleted: %d\n", result.AnalyticsDeleted)
	return nil
}

// RunMigrateCommand applies pending embedded migrations and prints the schema history.
func RunMigrateCommand(ctx context.Context, databaseURL string, out io.Writer) error {
	database, err := openDatabase(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer closeDatabase(database)

	names, err := db.AppliedMigrations(database)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	fmt.Fprintf(out, "✅ Schema up to date (%d migrations)\n", len(names))
	return nil
}

func openDatabase(ctx context.Context, databaseURL string) (*gorm.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is required")
	}
	database, err := db.Open(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	return database, nil
}

func closeDatabase(database *gorm.DB) {
	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
