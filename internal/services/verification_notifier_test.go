package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/terraincognita07/whiteboar/internal/models"
)

func captureLogs(t *testing.T, level zerolog.Level) *bytes.Buffer {
	t.Helper()
	var buffer bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buffer).Level(level)
	t.Cleanup(func() { log.Logger = previous })
	return &buffer
}

func TestLogCodeNotifierKeepsCodeOutOfInfoLogs(t *testing.T) {
	session := models.OnboardingSession{ID: "session-1", Locale: "en"}

	tests := []struct {
		name     string
		level    zerolog.Level
		reveal   bool
		wantCode bool
	}{
		{name: "info level", level: zerolog.InfoLevel, reveal: true, wantCode: false},
		{name: "debug level outside production", level: zerolog.DebugLevel, reveal: true, wantCode: true},
		{name: "debug level in production", level: zerolog.DebugLevel, reveal: false, wantCode: false},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			buffer := captureLogs(t, testCase.level)

			if err := (LogCodeNotifier{RevealCodes: testCase.reveal}).SendVerificationCode(context.Background(), session, "481516"); err != nil {
				t.Fatalf("SendVerificationCode() unexpected error: %v", err)
			}

			output := buffer.String()
			if !strings.Contains(output, "verification code issued") {
				t.Fatalf("expected the issue to be logged, got %q", output)
			}
			if got := strings.Contains(output, "481516"); got != testCase.wantCode {
				t.Fatalf("code in logs = %v, want %v: %q", got, testCase.wantCode, output)
			}
		})
	}
}
