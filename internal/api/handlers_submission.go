package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/terraincognita07/whiteboar/internal/services"
)

func (handler *Handler) Submit(c *fiber.Ctx) error {
	input := sessionInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}

	submission, err := handler.submissions.Submit(c.UserContext(), input.SessionID)
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusCreated, submission)
}

func (handler *Handler) SubmissionStatus(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	if strings.TrimSpace(sessionID) == "" {
		sessionID = c.Query("sessionId")
	}

	status, err := handler.submissions.StatusBySession(c.UserContext(), sessionID)
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, status)
}

func (handler *Handler) GetSubmission(c *fiber.Ctx) error {
	submission, err := handler.submissions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, submission)
}

func (handler *Handler) TrackEvent(c *fiber.Ctx) error {
	input := trackEventInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}

	event, err := handler.analytics.Track(c.UserContext(), services.TrackEventInput{
		SessionID:  input.SessionID,
		EventType:  input.EventType,
		Category:   input.Category,
		StepNumber: input.StepNumber,
		FieldName:  input.FieldName,
		DurationMS: input.DurationMS,
		Metadata:   input.Metadata,
		IPAddress:  clientIP(c),
		UserAgent:  c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusCreated, fiber.Map{"id": event.ID})
}

// CleanupSession is only routed outside production.
func (handler *Handler) CleanupSession(c *fiber.Ctx) error {
	input := sessionInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}
	if strings.TrimSpace(input.SessionID) == "" {
		return handler.respondError(c, services.ErrSessionIDRequired)
	}

	result, err := handler.cleaner.DeleteCascade(c.UserContext(), strings.TrimSpace(input.SessionID))
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, fiber.Map{
		"sessionsDeleted":    result.SessionsDeleted,
		"submissionsDeleted": result.SubmissionsDeleted,
		"analyticsDeleted":   result.AnalyticsDeleted,
	})
}
