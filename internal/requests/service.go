package requests

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/requestvault/requestvault/internal/notify"
	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
	"github.com/requestvault/requestvault/internal/shared"
)

// ReviewTrail records and lists the per-request review history.
type ReviewTrail interface {
	Record(ctx context.Context, ev shared.ReviewEvent) error
	List(ctx context.Context, requestID uuid.UUID) ([]shared.ReviewEvent, error)
}

// Service implements the approval-request lifecycle rules.
type Service struct {
	repo     Repository
	trail    ReviewTrail
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewService constructs a Service. Trail and notifier may be nil; the
// corresponding side effect is then skipped.
func NewService(repo Repository, trail ReviewTrail, notifier notify.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, trail: trail, notifier: notifier, logger: logger}
}

// SubmitInput carries the requester-supplied fields of a new request.
type SubmitInput struct {
	Type        Type
	Title       string
	Description string
	Priority    Priority
	Metadata    map[string]string
}

// Submit creates a pending request. An api_key request additionally requires
// the API-key-creation permission: generic request creation alone does not
// entitle an account to ask for credentials it could never hold.
func (s *Service) Submit(ctx context.Context, principal *rbac.Principal, input SubmitInput) (*Request, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	if !principal.HasPermission(rbac.PermRequestsCreate) {
		return nil, fmt.Errorf("request creation requires %s: %w", rbac.PermRequestsCreate, httpx.ErrForbidden)
	}
	if !ValidType(input.Type) {
		return nil, fmt.Errorf("unknown request type %q: %w", input.Type, httpx.ErrValidation)
	}
	if input.Type == TypeAPIKey && !principal.HasPermission(rbac.PermAPIKeysCreate) {
		return nil, fmt.Errorf("api_key requests require %s: %w", rbac.PermAPIKeysCreate, httpx.ErrForbidden)
	}
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}
	if !ValidPriority(input.Priority) {
		return nil, fmt.Errorf("unknown priority %q: %w", input.Priority, httpx.ErrValidation)
	}

	created, err := s.repo.Create(ctx, &Request{
		ID:          uuid.New(),
		Type:        input.Type,
		Title:       input.Title,
		Description: input.Description,
		Status:      StatusPending,
		Priority:    input.Priority,
		Metadata:    input.Metadata,
		RequesterID: principal.ID,
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, shared.ReviewEvent{RequestID: created.ID, ActorID: principal.ID, Action: shared.ReviewSubmit})
	if s.notifier != nil {
		s.notifier.Notify(created.RequesterID, notify.KindRequestSubmitted,
			fmt.Sprintf("request %q submitted", created.Title))
	}
	return created, nil
}

// canViewAll reports whether the principal sees requests beyond their own.
func canViewAll(p *rbac.Principal) bool {
	return p.Role == rbac.RoleAdmin || p.HasPermission(rbac.PermRequestsViewAll)
}

// Get returns one request. Requests outside the caller's visibility scope
// read as absent.
func (s *Service) Get(ctx context.Context, principal *rbac.Principal, id uuid.UUID) (*Request, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != principal.ID && !canViewAll(principal) {
		return nil, httpx.ErrNotFound
	}
	return req, nil
}

// List returns a page of requests. Callers without full visibility are
// scoped to their own submissions regardless of the filter they send.
func (s *Service) List(ctx context.Context, principal *rbac.Principal, filter Filter) ([]Request, shared.Pagination, error) {
	if principal == nil {
		return nil, shared.Pagination{}, httpx.ErrUnauthenticated
	}
	if !canViewAll(principal) {
		if !principal.HasPermission(rbac.PermRequestsView) {
			return nil, shared.Pagination{}, fmt.Errorf("listing requests requires %s: %w", rbac.PermRequestsView, httpx.ErrForbidden)
		}
		own := principal.ID
		filter.RequesterID = &own
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// EditInput carries the fields a requester may change while pending.
type EditInput struct {
	Title       *string
	Description *string
	Priority    *Priority
	Metadata    map[string]string
}

// SelfEdit applies a requester's changes to their own pending request. A
// non-owner sees not-found; a terminal request yields a conflict.
func (s *Service) SelfEdit(ctx context.Context, principal *rbac.Principal, id uuid.UUID, input EditInput) (*Request, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != principal.ID {
		return nil, httpx.ErrNotFound
	}
	if req.Terminal() {
		return nil, fmt.Errorf("request already reviewed: %w", httpx.ErrConflict)
	}
	if input.Title != nil {
		req.Title = *input.Title
	}
	if input.Description != nil {
		req.Description = *input.Description
	}
	if input.Priority != nil {
		if !ValidPriority(*input.Priority) {
			return nil, fmt.Errorf("unknown priority %q: %w", *input.Priority, httpx.ErrValidation)
		}
		req.Priority = *input.Priority
	}
	if input.Metadata != nil {
		req.Metadata = input.Metadata
	}
	return s.repo.UpdatePending(ctx, req)
}

// Review moves a pending request to a terminal state. Approving and denying
// are independent grants; holding one never implies the other. The
// persistence layer guarantees at most one review ever lands.
func (s *Service) Review(ctx context.Context, principal *rbac.Principal, id uuid.UUID, decision Status, comment string) (*Request, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	var required string
	var action shared.ReviewAction
	var kind string
	switch decision {
	case StatusApproved:
		required = rbac.PermRequestsApprove
		action = shared.ReviewApprove
		kind = notify.KindRequestApproved
	case StatusDenied:
		required = rbac.PermRequestsReject
		action = shared.ReviewDeny
		kind = notify.KindRequestRejected
	default:
		return nil, fmt.Errorf("review decision must be approved or denied: %w", httpx.ErrValidation)
	}
	if !principal.HasPermission(required) {
		return nil, fmt.Errorf("review requires %s: %w", required, httpx.ErrForbidden)
	}

	reviewed, err := s.repo.Review(ctx, id, decision, principal.ID, comment)
	if err != nil {
		return nil, err
	}

	s.record(ctx, shared.ReviewEvent{RequestID: reviewed.ID, ActorID: principal.ID, Action: action, Note: comment})
	if s.notifier != nil {
		s.notifier.Notify(reviewed.RequesterID, kind,
			fmt.Sprintf("request %q was %s", reviewed.Title, reviewed.Status))
	}
	return reviewed, nil
}

// Delete removes a request. Admins may delete any request in any state; the
// requester may delete their own only while it is still pending.
func (s *Service) Delete(ctx context.Context, principal *rbac.Principal, id uuid.UUID) error {
	if principal == nil {
		return httpx.ErrUnauthenticated
	}
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if principal.Role != rbac.RoleAdmin {
		if req.RequesterID != principal.ID {
			return httpx.ErrNotFound
		}
		if req.Terminal() {
			return fmt.Errorf("reviewed requests cannot be deleted by their requester: %w", httpx.ErrConflict)
		}
	}
	return s.repo.Delete(ctx, id)
}

// Trail returns the review history, subject to the same visibility scope as
// Get.
func (s *Service) Trail(ctx context.Context, principal *rbac.Principal, id uuid.UUID) ([]shared.ReviewEvent, error) {
	if _, err := s.Get(ctx, principal, id); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return nil, nil
	}
	return s.trail.List(ctx, id)
}

func (s *Service) record(ctx context.Context, ev shared.ReviewEvent) {
	if s.trail == nil {
		return
	}
	if err := s.trail.Record(ctx, ev); err != nil {
		s.logger.Warn("record review event",
			slog.String("request_id", ev.RequestID.String()),
			slog.Any("error", err),
		)
	}
}
