// Package hub serves the session core to local UI layers over HTTP: session
// mode, entity submission, the local queue and wizard drafts.
package hub

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/synapse/internal/drafts"
	perrors "github.com/p-blackswan/synapse/internal/errors"
	"github.com/p-blackswan/synapse/internal/health"
	"github.com/p-blackswan/synapse/internal/metrics"
	"github.com/p-blackswan/synapse/internal/requestid"
	"github.com/p-blackswan/synapse/internal/session"
	"github.com/p-blackswan/synapse/internal/submit"
	"github.com/p-blackswan/synapse/internal/wizard"
	"github.com/p-blackswan/synapse/pkg/tokenstore"
)

// ServerConfig holds configuration for the hub server.
type ServerConfig struct {
	ListenAddr  string
	CORSOrigins []string
	// TokenTTL applies to access tokens without an exp claim.
	TokenTTL time.Duration
	// APIKey, when set, must be presented as a bearer token by hub callers.
	APIKey string
	// UploadDir bounds the server-side paths callers may attach to drafts.
	// Empty rejects every server-side path.
	UploadDir string
}

// DefaultListenAddr keeps the hub on the loopback interface unless told otherwise.
const DefaultListenAddr = "127.0.0.1:8787"

// Deps are the components the hub exposes. Tokens, Verifier, Checker and
// Metrics are optional.
type Deps struct {
	Sessions *session.Store
	Router   *submit.Router
	Flow     *wizard.Flow
	Drafts   *drafts.Registry
	Tokens   tokenstore.Store
	Verifier tokenstore.Verifier
	Checker  *health.Checker
	Metrics  *metrics.Metrics
}

// Server is the hub Fiber application.
type Server struct {
	app         *fiber.App
	deps        Deps
	config      ServerConfig
	logger      zerolog.Logger
	uploadRoot  string
	unsubscribe func()
}

// NewServer creates and configures the hub server.
func NewServer(cfg ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if deps.Checker == nil {
		deps.Checker = health.NewChecker(logger)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:    app,
		deps:   deps,
		config: cfg,
		logger: logger.With().Str("component", "hub").Logger(),
	}
	root, err := uploadRoot(cfg.UploadDir)
	if err != nil {
		s.logger.Warn().Err(err).Msg("upload dir unusable, server-side file paths disabled")
	}
	s.uploadRoot = root
	s.unsubscribe = deps.Sessions.Subscribe(func(st session.State) {
		s.logger.Info().Stringer("mode", st.Mode).Str("display_name", st.DisplayName).Msg("session changed")
	})

	s.setupMiddleware(cfg)
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID: reuse the caller's, or mint one. It travels in the user
	// context so remote API calls carry it too.
	s.app.Use(func(c *fiber.Ctx) error {
		reqID := c.Get(requestid.Header)
		if reqID == "" {
			_, reqID = requestid.New(c.UserContext())
		}
		c.SetUserContext(requestid.WithRequestID(c.UserContext(), reqID))
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if len(cfg.CORSOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.CORSOrigins, ","),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
		}))
	}

	s.app.Use(newAuthMiddleware(cfg.APIKey, s.logger))

	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Str("request_id", requestIDOf(c)).
			Msg("hub request")
		return err
	})
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.Liveness)
	s.app.Get("/readyz", s.Readiness)
	if s.deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.deps.Metrics.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	v1 := s.app.Group("/api/v1")

	v1.Get("/session", s.GetSession)
	v1.Post("/session/ghost", s.EnterGhost)
	v1.Delete("/session/ghost", s.ExitGhost)
	v1.Post("/session/login", s.Login)
	v1.Post("/session/logout", s.Logout)

	v1.Post("/entities/*", s.SubmitEntity)
	v1.Get("/local-entities", s.ListLocalEntities)
	v1.Delete("/local-entities", s.ClearLocalEntities)

	d := v1.Group("/drafts")
	d.Get("/", s.ListDrafts)
	d.Post("/", s.CreateDraft)
	d.Get("/:id", s.GetDraft)
	d.Patch("/:id", s.PatchDraft)
	d.Delete("/:id", s.DeleteDraft)
	d.Post("/:id/step", s.NavigateDraft)
	d.Post("/:id/tags", s.AddTag)
	d.Delete("/:id/tags/:value", s.RemoveTag)
	d.Post("/:id/tech", s.AddTech)
	d.Delete("/:id/tech/:value", s.RemoveTech)
	d.Post("/:id/files", s.AddFile)
	d.Delete("/:id/files/:value", s.RemoveFile)
	d.Post("/:id/members", s.AddMember)
	d.Patch("/:id/members/:mid", s.UpdateMember)
	d.Delete("/:id/members/:mid", s.RemoveMember)
	d.Post("/:id/submit", s.SubmitDraft)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	s.logger.Info().Str("addr", addr).Msg("hub server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("hub server shutting down")
	s.unsubscribe()
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// Liveness handles GET /healthz.
func (s *Server) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (s *Server) Readiness(c *fiber.Ctx) error {
	report := s.deps.Checker.Run(c.UserContext())
	status := fiber.StatusOK
	if !report.Ready() {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}

func requestIDOf(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}
		return problemResponse(c, code, "internal_error", "Internal Server Error", detail)
	}
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

// errorResponse maps core errors to problem responses. Remote API errors
// keep their status so a 401 reaches the UI as a 401.
func errorResponse(c *fiber.Ctx, err error) error {
	var apiErr *perrors.APIError
	switch {
	case errors.As(err, &apiErr):
		return problemResponse(c, apiErr.StatusCode, "remote_error", "Remote API Error", perrors.Detail(err))
	case errors.Is(err, perrors.ErrInvalidInput):
		return problemResponse(c, fiber.StatusBadRequest, "invalid_input", "Bad Request", err.Error())
	case errors.Is(err, perrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", err.Error())
	case errors.Is(err, perrors.ErrSubmissionInFlight), errors.Is(err, perrors.ErrNotOnFinalStep):
		return problemResponse(c, fiber.StatusConflict, "conflict", "Conflict", err.Error())
	case errors.Is(err, tokenstore.ErrInvalidCredentials), errors.Is(err, tokenstore.ErrTokenExpired):
		return problemResponse(c, fiber.StatusUnauthorized, "unauthorized", "Unauthorized", err.Error())
	case errors.Is(err, perrors.ErrNoRemote):
		return problemResponse(c, fiber.StatusServiceUnavailable, "no_remote", "Service Unavailable", err.Error())
	default:
		return problemResponse(c, fiber.StatusBadGateway, "transport_error", "Bad Gateway", err.Error())
	}
}
