package lifecycle

import (
	"context"
)

// StatusSummary is recomputed from the status stores on every call, so
// it is always consistent with the latest records at query time.
type StatusSummary struct {
	Spas       map[SpaStatus]int       `json:"spas"`
	Therapists map[TherapistStatus]int `json:"therapists"`
}

// Projector derives the read-only, chronologically ordered event feed
// from the append-only change log. It never writes state and holds no
// cursor, so any query can be restarted from scratch.
type Projector interface {
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error)
	Summary(ctx context.Context) (*StatusSummary, error)
}

// NewProjector builds a projector over the repository manager.
func NewProjector(repo RepositoryManager) Projector {
	return &projector{repo: repo}
}

type projector struct {
	repo RepositoryManager
}

// Query returns the unified feed across spa and therapist trails (plus
// credential and session events), newest first, ties broken by insertion
// order.
func (p *projector) Query(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error) {
	if filter.EntityType != "" && !filter.EntityType.IsValid() {
		return nil, ErrRecordNotFound.WithMetadata(map[string]any{
			"entity_type": filter.EntityType,
		})
	}

	return p.repo.AuditEvents().Query(ctx, filter)
}

func (p *projector) Summary(ctx context.Context) (*StatusSummary, error) {
	spaCounts, err := p.repo.Spas().CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	therapistCounts, err := p.repo.Therapists().CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		Spas:       spaCounts,
		Therapists: therapistCounts,
	}, nil
}
