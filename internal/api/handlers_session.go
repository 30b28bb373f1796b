package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/terraincognita07/whiteboar/internal/services"
)

func (handler *Handler) CreateSession(c *fiber.Ctx) error {
	input := createSessionInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}

	session, err := handler.sessions.CreateSession(c.UserContext(), services.CreateSessionInput{
		Email:     input.Email,
		Locale:    input.Locale,
		IPAddress: clientIP(c),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusCreated, session)
}

func (handler *Handler) GetSession(c *fiber.Ctx) error {
	session, err := handler.sessions.LoadSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, session)
}

func (handler *Handler) UpdateSession(c *fiber.Ctx) error {
	input := updateSessionInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}

	session, err := handler.sessions.UpdateSession(c.UserContext(), c.Params("id"), services.SessionPatch{
		CurrentStep:   input.CurrentStep,
		Locale:        input.Locale,
		EmailVerified: input.EmailVerified,
	})
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, session)
}

func (handler *Handler) SaveFormData(c *fiber.Ctx) error {
	input := saveFormDataInput{}
	if err := parseBody(c, &input); err != nil {
		return handler.respondError(c, err)
	}
	if input.FormData == nil {
		return handler.respondError(c, errInvalidRequest)
	}

	session, err := handler.sessions.SaveFormData(c.UserContext(), input.SessionID, input.FormData)
	if err != nil {
		return handler.respondError(c, err)
	}
	return respondData(c, fiber.StatusOK, session)
}
