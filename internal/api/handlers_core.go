package api

import "github.com/gofiber/fiber/v2"

func (handler *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (handler *Handler) NotFound(c *fiber.Ctx) error {
	return handler.respondError(c, errRouteNotFound)
}

func (handler *Handler) IssueCSRFToken(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	session, err := handler.sessions.LoadSession(c.UserContext(), sessionID)
	if err != nil {
		return handler.respondError(c, err)
	}

	token, err := handler.csrf.Issue(c.UserContext(), session.ID)
	if err != nil {
		return handler.respondError(c, err)
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return respondData(c, fiber.StatusOK, token)
}
