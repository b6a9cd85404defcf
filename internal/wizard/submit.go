package wizard

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/synapse/internal/api"
	"github.com/p-blackswan/synapse/internal/submit"
)

// ProjectsPath is the collection projects are created in.
const ProjectsPath = "/projects/"

// LeaderSource names the submitting actor.
type LeaderSource interface {
	DisplayName() string
}

// EntitySubmitter persists the assembled payload.
type EntitySubmitter interface {
	SubmitEntity(ctx context.Context, path string, payload any) (*submit.EntityRecord, error)
}

// Uploader attaches files to a created project.
type Uploader interface {
	UploadFiles(ctx context.Context, projectID string, files []api.UploadFile) error
}

// Flow submits drafts through the submission router.
type Flow struct {
	leader   LeaderSource
	router   EntitySubmitter
	uploader Uploader
	logger   zerolog.Logger
}

// NewFlow creates a Flow. uploader may be nil, in which case attached files
// are never sent.
func NewFlow(leader LeaderSource, router EntitySubmitter, uploader Uploader, logger zerolog.Logger) *Flow {
	return &Flow{
		leader:   leader,
		router:   router,
		uploader: uploader,
		logger:   logger.With().Str("component", "wizard").Logger(),
	}
}

// Submit sends the draft. Router errors are returned unmodified after the
// draft is re-enabled for a retry; on success the draft is completed.
// File upload failures are logged and do not fail the submission.
func (f *Flow) Submit(ctx context.Context, d *Draft) (*submit.EntityRecord, error) {
	if err := d.StartSubmission(); err != nil {
		return nil, err
	}

	leader := UnknownLeader
	if f.leader != nil && f.leader.DisplayName() != "" {
		leader = f.leader.DisplayName()
	}
	snap := d.Snapshot()
	payload := snap.Payload(leader)

	rec, err := f.router.SubmitEntity(ctx, ProjectsPath, payload)
	if err != nil {
		d.FailSubmission()
		f.logger.Warn().Err(err).Str("draft_id", snap.ID).Msg("project submission failed")
		return nil, err
	}

	if !rec.Local && rec.ID != "" && len(snap.Details.Files) > 0 && f.uploader != nil {
		if err := f.uploader.UploadFiles(ctx, rec.ID, snap.Details.Files); err != nil {
			f.logger.Warn().Err(err).Str("project_id", rec.ID).Int("files", len(snap.Details.Files)).
				Msg("file upload failed, project was created")
		}
	}

	d.CompleteSubmission()
	f.logger.Info().Str("draft_id", snap.ID).Str("id", rec.ID).Bool("local", rec.Local).Msg("project submitted")
	return rec, nil
}
