package hub

import (
	"bytes"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/synapse/internal/api"
	"github.com/p-blackswan/synapse/internal/wizard"
)

func (s *Server) draft(c *fiber.Ctx) (*wizard.Draft, bool) {
	return s.deps.Drafts.Get(c.Params("id"))
}

func draftNotFound(c *fiber.Ctx) error {
	return problemResponse(c, fiber.StatusNotFound,
		"draft_not_found", "Not Found",
		"Draft "+c.Params("id")+" is not open")
}

func param(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func badBody(c *fiber.Ctx, err error) error {
	return problemResponse(c, fiber.StatusBadRequest,
		"invalid_body", "Bad Request",
		"Invalid request body: "+err.Error())
}

// ListDrafts handles GET /api/v1/drafts.
func (s *Server) ListDrafts(c *fiber.Ctx) error {
	open := s.deps.Drafts.List()
	snaps := make([]wizard.Snapshot, 0, len(open))
	for _, d := range open {
		snaps = append(snaps, d.Snapshot())
	}
	return c.JSON(DraftListResponse{Drafts: snaps, Total: len(snaps)})
}

// CreateDraft handles POST /api/v1/drafts. A YAML body pre-fills the draft.
func (s *Server) CreateDraft(c *fiber.Ctx) error {
	ct := strings.ToLower(c.Get(fiber.HeaderContentType))
	if len(c.Body()) > 0 && strings.Contains(ct, "yaml") {
		f, err := wizard.ParseDraftFile(bytes.NewReader(c.Body()))
		if err != nil {
			return errorResponse(c, err)
		}
		for i, p := range f.Files {
			resolved, err := s.resolveUpload(p)
			if err != nil {
				return badFilePath(c, err)
			}
			f.Files[i] = resolved
		}
		d := wizard.New()
		if err := f.Apply(d, ""); err != nil {
			return errorResponse(c, err)
		}
		s.deps.Drafts.Put(d)
		return c.Status(fiber.StatusCreated).JSON(d.Snapshot())
	}
	d := s.deps.Drafts.Open()
	return c.Status(fiber.StatusCreated).JSON(d.Snapshot())
}

// GetDraft handles GET /api/v1/drafts/:id.
func (s *Server) GetDraft(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	return c.JSON(d.Snapshot())
}

// PatchDraft handles PATCH /api/v1/drafts/:id.
func (s *Server) PatchDraft(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	var p DraftPatch
	if err := c.BodyParser(&p); err != nil {
		return badBody(c, err)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_priority", "Bad Request",
			"Unknown priority: "+string(*p.Priority))
	}
	if p.Visibility != nil && !p.Visibility.Valid() {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_visibility", "Bad Request",
			"Unknown visibility: "+string(*p.Visibility))
	}

	snap := d.Snapshot()
	if p.Name != nil {
		d.SetName(*p.Name)
	}
	if p.Category != nil {
		d.SetCategory(*p.Category)
	}
	if p.Priority != nil {
		d.SetPriority(*p.Priority)
	}
	if p.Description != nil {
		d.SetDescription(*p.Description)
	}
	if p.StartDate != nil || p.EndDate != nil || p.DurationWeeks != nil {
		tl := snap.Timeline
		setIf(&tl.StartDate, p.StartDate)
		setIf(&tl.EndDate, p.EndDate)
		setIf(&tl.DurationWeeks, p.DurationWeeks)
		d.SetTimeline(tl)
	}
	if p.GitHubRepo != nil || p.DiscordServer != nil {
		repo, discord := snap.Team.GitHubRepo, snap.Team.DiscordServer
		setIf(&repo, p.GitHubRepo)
		setIf(&discord, p.DiscordServer)
		d.SetIntegrations(repo, discord)
	}
	if p.Visibility != nil {
		d.SetVisibility(*p.Visibility)
	}
	return c.JSON(d.Snapshot())
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// DeleteDraft handles DELETE /api/v1/drafts/:id.
func (s *Server) DeleteDraft(c *fiber.Ctx) error {
	if !s.deps.Drafts.Close(c.Params("id")) {
		return draftNotFound(c)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// NavigateDraft handles POST /api/v1/drafts/:id/step.
func (s *Server) NavigateDraft(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	var req StepRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	switch req.Action {
	case "next":
		d.NextStep()
	case "prev":
		d.PrevStep()
	case "set":
		d.SetStep(req.Step)
	default:
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_action", "Bad Request",
			"Action must be one of next, prev, set")
	}
	return c.JSON(d.Snapshot())
}

// AddTag handles POST /api/v1/drafts/:id/tags. Blank and over-cap tags are
// ignored, as in the form.
func (s *Server) AddTag(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	var req ValueRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	d.AddTag(req.Value)
	return c.JSON(d.Snapshot())
}

// RemoveTag handles DELETE /api/v1/drafts/:id/tags/:value.
func (s *Server) RemoveTag(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	d.RemoveTag(param(c, "value"))
	return c.JSON(d.Snapshot())
}

// AddTech handles POST /api/v1/drafts/:id/tech.
func (s *Server) AddTech(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	var req ValueRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	d.AddTech(req.Value)
	return c.JSON(d.Snapshot())
}

// RemoveTech handles DELETE /api/v1/drafts/:id/tech/:value.
func (s *Server) RemoveTech(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	d.RemoveTech(param(c, "value"))
	return c.JSON(d.Snapshot())
}

// AddFile handles POST /api/v1/drafts/:id/files. The path must resolve
// inside the configured upload directory.
func (s *Server) AddFile(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	var req FileRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	path, err := s.resolveUpload(req.Path)
	if err != nil {
		s.logger.Warn().Err(err).Str("draft_id", c.Params("id")).Msg("file path rejected")
		return badFilePath(c, err)
	}
	if req.Name == "" {
		req.Name = filepath.Base(path)
	}
	d.AddFiles(api.UploadFile{Name: req.Name, Path: path})
	return c.JSON(d.Snapshot())
}

// RemoveFile handles DELETE /api/v1/drafts/:id/files/:value.
func (s *Server) RemoveFile(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	d.RemoveFile(param(c, "value"))
	return c.JSON(d.Snapshot())
}

// AddMember handles POST /api/v1/drafts/:id/members.
func (s *Server) AddMember(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	return c.Status(fiber.StatusCreated).JSON(MemberResponse{Member: d.AddTeamMember()})
}

// UpdateMember handles PATCH /api/v1/drafts/:id/members/:mid.
func (s *Server) UpdateMember(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	var req MemberUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	m, err := d.UpdateTeamMember(c.Params("mid"), req.Field, req.Value)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(MemberResponse{Member: m})
}

// RemoveMember handles DELETE /api/v1/drafts/:id/members/:mid.
func (s *Server) RemoveMember(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	if !d.RemoveTeamMember(c.Params("mid")) {
		return problemResponse(c, fiber.StatusNotFound,
			"member_not_found", "Not Found",
			"Team member "+c.Params("mid")+" not found")
	}
	return c.JSON(d.Snapshot())
}

// SubmitDraft handles POST /api/v1/drafts/:id/submit. A submitted draft is
// closed; a failed one stays open for a retry.
func (s *Server) SubmitDraft(c *fiber.Ctx) error {
	d, ok := s.draft(c)
	if !ok {
		return draftNotFound(c)
	}
	rec, err := s.deps.Flow.Submit(c.UserContext(), d)
	if err != nil {
		return errorResponse(c, err)
	}
	s.deps.Drafts.Close(d.ID())
	return c.Status(fiber.StatusCreated).JSON(EntityResponse{Entity: *rec, Local: rec.Local})
}
