package hub

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
)

// SubmitEntity handles POST /api/v1/entities/*. The wildcard is the API
// path the entity is created under, e.g. /api/v1/entities/projects/.
func (s *Server) SubmitEntity(c *fiber.Ctx) error {
	path := "/" + c.Params("*")
	if path == "/" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_path", "Bad Request",
			"Entity path is required")
	}

	var payload map[string]any
	if err := json.Unmarshal(c.Body(), &payload); err != nil || payload == nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Request body must be a JSON object")
	}

	rec, err := s.deps.Router.SubmitEntity(c.UserContext(), path, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Str("request_id", requestIDOf(c)).Msg("entity submission failed")
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(EntityResponse{Entity: *rec, Local: rec.Local})
}

// ListLocalEntities handles GET /api/v1/local-entities.
func (s *Server) ListLocalEntities(c *fiber.Ctx) error {
	list := s.deps.Router.ListLocalEntities()
	return c.JSON(LocalEntitiesResponse{Entities: list, Total: len(list)})
}

// ClearLocalEntities handles DELETE /api/v1/local-entities.
func (s *Server) ClearLocalEntities(c *fiber.Ctx) error {
	s.deps.Router.ClearLocalEntities()
	return c.SendStatus(fiber.StatusNoContent)
}
