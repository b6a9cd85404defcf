package hub

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/synapse/internal/session"
	"github.com/p-blackswan/synapse/pkg/tokenstore"
)

func (s *Server) sessionResponse(c *fiber.Ctx, st session.State) error {
	_, hasToken := s.deps.Sessions.CurrentToken(c.UserContext())
	return c.JSON(SessionResponse{State: st, HasToken: hasToken})
}

// GetSession handles GET /api/v1/session.
func (s *Server) GetSession(c *fiber.Ctx) error {
	return s.sessionResponse(c, s.deps.Sessions.State())
}

// EnterGhost handles POST /api/v1/session/ghost.
func (s *Server) EnterGhost(c *fiber.Ctx) error {
	return s.sessionResponse(c, s.deps.Sessions.EnterGhostMode())
}

// ExitGhost handles DELETE /api/v1/session/ghost.
func (s *Server) ExitGhost(c *fiber.Ctx) error {
	return s.sessionResponse(c, s.deps.Sessions.ExitGhostMode())
}

// Login handles POST /api/v1/session/login. The hub stands in for the UI
// here: it runs the credential check, stores the issued token and records
// the result on the session.
func (s *Server) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_body", "Bad Request",
				"Invalid request body: "+err.Error())
		}
	}

	name := req.Name
	token := strings.TrimSpace(req.AccessToken)
	if s.deps.Verifier != nil && (req.Email != "" || req.Password != "") {
		ident, err := s.deps.Verifier.VerifyCredentials(c.UserContext(), req.Email, req.Password)
		if err != nil {
			s.logger.Warn().Err(err).Str("email", req.Email).Msg("login rejected")
			return errorResponse(c, err)
		}
		if strings.TrimSpace(name) == "" {
			name = ident.DisplayName
		}
		if token == "" {
			token = ident.AccessToken
		}
	}

	if token != "" {
		if s.deps.Tokens == nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"no_token_store", "Bad Request",
				"Access tokens are not accepted by this hub")
		}
		if err := tokenstore.SetJWT(c.UserContext(), s.deps.Tokens, tokenstore.KeyAccessToken, token, s.config.TokenTTL); err != nil {
			return errorResponse(c, err)
		}
	}

	return s.sessionResponse(c, s.deps.Sessions.Authenticate(name))
}

// Logout handles POST /api/v1/session/logout.
func (s *Server) Logout(c *fiber.Ctx) error {
	return s.sessionResponse(c, s.deps.Sessions.Logout())
}
