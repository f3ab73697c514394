package requests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
	"github.com/requestvault/requestvault/internal/shared"
)

// memoryRepo mirrors the conditional-update semantics of the SQL layer: a
// review or self-edit lands only if the request is still pending at commit
// time.
type memoryRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Request
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[uuid.UUID]*Request{}}
}

func (m *memoryRepo) Create(_ context.Context, req *Request) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	stored := *req
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.items[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	out := *stored
	return &out, nil
}

func (m *memoryRepo) UpdatePending(_ context.Context, req *Request) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[req.ID]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	if stored.Status != StatusPending {
		return nil, httpx.ErrConflict
	}
	stored.Title = req.Title
	stored.Description = req.Description
	stored.Priority = req.Priority
	stored.Metadata = req.Metadata
	stored.UpdatedAt = time.Now()
	out := *stored
	return &out, nil
}

func (m *memoryRepo) Review(_ context.Context, id uuid.UUID, status Status, reviewerID int64, comment string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	if stored.Status != StatusPending {
		return nil, httpx.ErrConflict
	}
	now := time.Now()
	stored.Status = status
	stored.ReviewerID = &reviewerID
	stored.ReviewedAt = &now
	if comment != "" {
		stored.ReviewComment = &comment
	}
	stored.UpdatedAt = now
	out := *stored
	return &out, nil
}

func (m *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memoryRepo) List(_ context.Context, filter Filter) ([]Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, stored := range m.items {
		if filter.RequesterID != nil && stored.RequesterID != *filter.RequesterID {
			continue
		}
		if filter.Status != nil && stored.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && stored.Type != *filter.Type {
			continue
		}
		out = append(out, *stored)
	}
	return out, len(out), nil
}

type memoryTrail struct {
	mu     sync.Mutex
	events []shared.ReviewEvent
}

func (m *memoryTrail) Record(_ context.Context, ev shared.ReviewEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.At = time.Now()
	m.events = append(m.events, ev)
	return nil
}

func (m *memoryTrail) List(_ context.Context, requestID uuid.UUID) ([]shared.ReviewEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []shared.ReviewEvent
	for _, ev := range m.events {
		if ev.RequestID == requestID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type recordedNotification struct {
	AccountID int64
	Kind      string
}

type memoryNotifier struct {
	mu   sync.Mutex
	sent []recordedNotification
}

func (m *memoryNotifier) Notify(accountID int64, kind, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, recordedNotification{AccountID: accountID, Kind: kind})
}

func principalWithRole(id int64, role rbac.Role) *rbac.Principal {
	return &rbac.Principal{
		ID:          id,
		Role:        role,
		Permissions: rbac.PermissionsForRole(role),
		IsActive:    true,
	}
}

func newTestService() (*Service, *memoryRepo, *memoryTrail, *memoryNotifier) {
	repo := newMemoryRepo()
	trail := &memoryTrail{}
	notifier := &memoryNotifier{}
	return NewService(repo, trail, notifier, nil), repo, trail, notifier
}

func TestSubmitCreatesPendingWithDefaults(t *testing.T) {
	svc, _, trail, notifier := newTestService()
	viewer := principalWithRole(10, rbac.RoleViewer)

	created, err := svc.Submit(context.Background(), viewer, SubmitInput{
		Type:        TypeFeatureAccess,
		Title:       "enable exports",
		Description: "need the export feature for quarterly reporting",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)
	require.Equal(t, PriorityMedium, created.Priority)
	require.Equal(t, int64(10), created.RequesterID)
	require.Nil(t, created.ReviewerID)

	events, err := trail.List(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, shared.ReviewSubmit, events[0].Action)

	require.Len(t, notifier.sent, 1)
	require.Equal(t, recordedNotification{AccountID: 10, Kind: "request.submitted"}, notifier.sent[0])
}

func TestSubmitAPIKeyRequiresKeyCreation(t *testing.T) {
	svc, _, _, _ := newTestService()

	// Viewers hold request creation but not API key creation: the compound
	// guard must reject them with Forbidden, not with NotFound or
	// Unauthenticated.
	viewer := principalWithRole(10, rbac.RoleViewer)
	_, err := svc.Submit(context.Background(), viewer, SubmitInput{
		Type:        TypeAPIKey,
		Title:       "integration key",
		Description: "key for the reporting integration",
	})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	contributor := principalWithRole(11, rbac.RoleContributor)
	_, err = svc.Submit(context.Background(), contributor, SubmitInput{
		Type:        TypeAPIKey,
		Title:       "integration key",
		Description: "key for the reporting integration",
	})
	require.NoError(t, err)
}

func TestSubmitRequiresCreatePermission(t *testing.T) {
	svc, _, _, _ := newTestService()
	admin := principalWithRole(1, rbac.RoleAdmin)

	// Admin defaults do not include request creation.
	_, err := svc.Submit(context.Background(), admin, SubmitInput{
		Type:        TypeFeatureAccess,
		Title:       "t",
		Description: "needs at least ten characters",
	})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestSubmitRejectsUnknownTypeAndPriority(t *testing.T) {
	svc, _, _, _ := newTestService()
	viewer := principalWithRole(10, rbac.RoleViewer)

	_, err := svc.Submit(context.Background(), viewer, SubmitInput{
		Type:        Type("coffee"),
		Title:       "t",
		Description: "needs at least ten characters",
	})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Submit(context.Background(), viewer, SubmitInput{
		Type:        TypeFeatureAccess,
		Title:       "t",
		Description: "needs at least ten characters",
		Priority:    Priority("urgent"),
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func submitFeatureRequest(t *testing.T, svc *Service, requester *rbac.Principal) *Request {
	t.Helper()
	created, err := svc.Submit(context.Background(), requester, SubmitInput{
		Type:        TypeFeatureAccess,
		Title:       "enable exports",
		Description: "need the export feature for quarterly reporting",
	})
	require.NoError(t, err)
	return created
}

func TestReviewPermissionsAreIndependent(t *testing.T) {
	svc, _, _, _ := newTestService()
	viewer := principalWithRole(10, rbac.RoleViewer)
	created := submitFeatureRequest(t, svc, viewer)

	approver := &rbac.Principal{ID: 2, Role: rbac.RoleContributor, Permissions: []string{rbac.PermRequestsApprove}, IsActive: true}
	_, err := svc.Review(context.Background(), approver, created.ID, StatusDenied, "")
	require.ErrorIs(t, err, httpx.ErrForbidden)

	reviewed, err := svc.Review(context.Background(), approver, created.ID, StatusApproved, "looks fine")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewerID)
	require.Equal(t, int64(2), *reviewed.ReviewerID)
	require.NotNil(t, reviewed.ReviewedAt)
}

func TestReviewTerminalStateIsFinal(t *testing.T) {
	svc, _, _, notifier := newTestService()
	viewer := principalWithRole(10, rbac.RoleViewer)
	admin := principalWithRole(1, rbac.RoleAdmin)
	created := submitFeatureRequest(t, svc, viewer)

	first, err := svc.Review(context.Background(), admin, created.ID, StatusApproved, "")
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), admin, created.ID, StatusDenied, "")
	require.ErrorIs(t, err, httpx.ErrConflict)

	// The first decision must be untouched by the failed second attempt.
	got, err := svc.Get(context.Background(), admin, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, *first.ReviewerID, *got.ReviewerID)
	require.Equal(t, first.ReviewedAt.Unix(), got.ReviewedAt.Unix())

	// Requester was notified of the submission and the single approval.
	require.Len(t, notifier.sent, 2)
	require.Equal(t, "request.approved", notifier.sent[1].Kind)
}

func TestReviewRaceHasExactlyOneWinner(t *testing.T) {
	svc, _, _, _ := newTestService()
	viewer := principalWithRole(10, rbac.RoleViewer)
	admin := principalWithRole(1, rbac.RoleAdmin)
	created := submitFeatureRequest(t, svc, viewer)

	decisions := []Status{StatusApproved, StatusDenied}
	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, decision := range decisions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Review(context.Background(), admin, created.ID, decision, "")
		}()
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, httpx.ErrConflict)
			conflicts++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, conflicts)
}

func TestSelfEditOwnerAndStateRules(t *testing.T) {
	svc, _, _, _ := newTestService()
	viewer := principalWithRole(10, rbac.RoleViewer)
	other := principalWithRole(11, rbac.RoleViewer)
	admin := principalWithRole(1, rbac.RoleAdmin)
	created := submitFeatureRequest(t, svc, viewer)

	newTitle := "enable exports for finance"
	_, err := svc.SelfEdit(context.Background(), other, created.ID, EditInput{Title: &newTitle})
	require.ErrorIs(t, err, httpx.ErrNotFound)

	updated, err := svc.SelfEdit(context.Background(), viewer, created.ID, EditInput{Title: &newTitle})
	require.NoError(t, err)
	require.Equal(t, newTitle, updated.Title)

	_, err = svc.Review(context.Background(), admin, created.ID, StatusDenied, "not now")
	require.NoError(t, err)

	_, err = svc.SelfEdit(context.Background(), viewer, created.ID, EditInput{Title: &newTitle})
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestDeleteRules(t *testing.T) {
	svc, _, _, _ := newTestService()
	viewer := principalWithRole(10, rbac.RoleViewer)
	other := principalWithRole(11, rbac.RoleViewer)
	admin := principalWithRole(1, rbac.RoleAdmin)

	// A stranger cannot even see the request.
	created := submitFeatureRequest(t, svc, viewer)
	require.ErrorIs(t, svc.Delete(context.Background(), other, created.ID), httpx.ErrNotFound)

	// The requester can delete while pending.
	require.NoError(t, svc.Delete(context.Background(), viewer, created.ID))

	// After review the requester cannot, but an admin can.
	created = submitFeatureRequest(t, svc, viewer)
	_, err := svc.Review(context.Background(), admin, created.ID, StatusApproved, "")
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(context.Background(), viewer, created.ID), httpx.ErrConflict)
	require.NoError(t, svc.Delete(context.Background(), admin, created.ID))
}

func TestVisibilityScoping(t *testing.T) {
	svc, _, _, _ := newTestService()
	viewer := principalWithRole(10, rbac.RoleViewer)
	other := principalWithRole(11, rbac.RoleViewer)
	admin := principalWithRole(1, rbac.RoleAdmin)
	created := submitFeatureRequest(t, svc, viewer)

	_, err := svc.Get(context.Background(), other, created.ID)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = svc.Get(context.Background(), admin, created.ID)
	require.NoError(t, err)

	// An explicit viewAll grant opens visibility without a role change.
	auditor := &rbac.Principal{ID: 12, Role: rbac.RoleViewer, Permissions: []string{rbac.PermRequestsViewAll}, IsActive: true}
	_, err = svc.Get(context.Background(), auditor, created.ID)
	require.NoError(t, err)
}

func TestListScopesToOwnWithoutViewAll(t *testing.T) {
	svc, _, _, _ := newTestService()
	viewer := principalWithRole(10, rbac.RoleViewer)
	other := principalWithRole(11, rbac.RoleViewer)
	admin := principalWithRole(1, rbac.RoleAdmin)
	submitFeatureRequest(t, svc, viewer)
	submitFeatureRequest(t, svc, other)

	mine, page, err := svc.List(context.Background(), viewer, Filter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, int64(10), mine[0].RequesterID)
	require.Equal(t, 1, page.Total)

	all, page, err := svc.List(context.Background(), admin, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 2, page.Total)
}

func TestTrailFollowsGetVisibility(t *testing.T) {
	svc, _, _, _ := newTestService()
	viewer := principalWithRole(10, rbac.RoleViewer)
	other := principalWithRole(11, rbac.RoleViewer)
	admin := principalWithRole(1, rbac.RoleAdmin)
	created := submitFeatureRequest(t, svc, viewer)
	_, err := svc.Review(context.Background(), admin, created.ID, StatusApproved, "ok")
	require.NoError(t, err)

	_, err = svc.Trail(context.Background(), other, created.ID)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	events, err := svc.Trail(context.Background(), viewer, created.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, shared.ReviewSubmit, events[0].Action)
	require.Equal(t, shared.ReviewApprove, events[1].Action)
}
