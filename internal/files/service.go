package files

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/requestvault/requestvault/internal/platform/httpx"
	"github.com/requestvault/requestvault/internal/rbac"
)

// Service implements file upload, download, publication, and expiry rules.
type Service struct {
	repo   Repository
	store  *DiskStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, store *DiskStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, logger: logger, now: time.Now}
}

// UploadInput carries one incoming upload.
type UploadInput struct {
	Filename    string
	ContentType string
	Content     io.Reader
	// TTL marks the file temporary; zero means it never expires.
	TTL time.Duration
}

// Upload stores content under a fresh opaque name and records the metadata.
func (s *Service) Upload(ctx context.Context, principal *rbac.Principal, input UploadInput) (*File, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	if !principal.HasPermission(rbac.PermFilesUpload) {
		return nil, fmt.Errorf("uploading requires %s: %w", rbac.PermFilesUpload, httpx.ErrForbidden)
	}

	id := uuid.New()
	result, err := s.store.Save(id.String(), input.Content)
	if err != nil {
		return nil, err
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var expiresAt *time.Time
	if input.TTL > 0 {
		t := s.now().Add(input.TTL)
		expiresAt = &t
	}

	stored, err := s.repo.Insert(ctx, &File{
		ID:          id,
		OwnerID:     principal.ID,
		Name:        CleanFilename(input.Filename),
		StorageName: id.String(),
		ContentType: contentType,
		Size:        result.Size,
		Checksum:    result.Checksum,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		// Orphaned content is unreachable; drop it rather than wait for
		// the sweep.
		if rmErr := s.store.Remove(id.String()); rmErr != nil {
			s.logger.Warn("remove orphaned upload", slog.String("file_id", id.String()), slog.Any("error", rmErr))
		}
		return nil, err
	}
	return stored, nil
}

// visible reports whether the principal may read the file at all. Public
// files are visible to every authenticated account; private ones only to
// their owner or an admin.
func visible(principal *rbac.Principal, f *File) bool {
	if f.IsPublic {
		return true
	}
	return rbac.AllowOwnerOrPrivileged(*principal, f.OwnerID, rbac.RoleAdmin)
}

// Get returns metadata for one file, masking out-of-scope files as absent.
func (s *Service) Get(ctx context.Context, principal *rbac.Principal, id uuid.UUID) (*File, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	f, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(principal, f) {
		return nil, httpx.ErrNotFound
	}
	return f, nil
}

// Download returns the metadata and an open content reader. The caller
// closes the reader.
func (s *Service) Download(ctx context.Context, principal *rbac.Principal, id uuid.UUID) (*File, io.ReadCloser, error) {
	if principal == nil {
		return nil, nil, httpx.ErrUnauthenticated
	}
	if !principal.HasPermission(rbac.PermFilesDownload) {
		return nil, nil, fmt.Errorf("downloading requires %s: %w", rbac.PermFilesDownload, httpx.ErrForbidden)
	}
	f, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, nil, err
	}
	content, err := s.store.Open(f.StorageName)
	if err != nil {
		return nil, nil, httpx.ErrNotFound
	}
	return f, content, nil
}

// List returns the files visible to the principal: everything for admins,
// own uploads for everyone else.
func (s *Service) List(ctx context.Context, principal *rbac.Principal) ([]File, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	if principal.Role == rbac.RoleAdmin {
		return s.repo.ListAll(ctx)
	}
	return s.repo.ListForOwner(ctx, principal.ID)
}

// MakePublic flips a file to public visibility.
func (s *Service) MakePublic(ctx context.Context, principal *rbac.Principal, id uuid.UUID) (*File, error) {
	if principal == nil {
		return nil, httpx.ErrUnauthenticated
	}
	if !principal.HasPermission(rbac.PermFilesMakePublic) {
		return nil, fmt.Errorf("publishing requires %s: %w", rbac.PermFilesMakePublic, httpx.ErrForbidden)
	}
	f, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rbac.AllowOwnerOrPrivileged(*principal, f.OwnerID, rbac.RoleAdmin) {
		return nil, httpx.ErrNotFound
	}
	return s.repo.SetPublic(ctx, id, true)
}

// Delete removes a file's metadata and content. Owner or admin only; a
// foreign file reads as absent.
func (s *Service) Delete(ctx context.Context, principal *rbac.Principal, id uuid.UUID) error {
	if principal == nil {
		return httpx.ErrUnauthenticated
	}
	f, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !rbac.AllowOwnerOrPrivileged(*principal, f.OwnerID, rbac.RoleAdmin) {
		return httpx.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Remove(f.StorageName); err != nil {
		s.logger.Warn("remove file content", slog.String("file_id", id.String()), slog.Any("error", err))
	}
	return nil
}

// SweepExpired purges files past their expiry, content first so a crash
// between the two deletes leaves only a harmless metadata row for the next
// run.
func (s *Service) SweepExpired(ctx context.Context, batchSize int) (int, error) {
	expired, err := s.repo.ListExpired(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, f := range expired {
		if err := s.store.Remove(f.StorageName); err != nil {
			s.logger.Warn("sweep file content", slog.String("file_id", f.ID.String()), slog.Any("error", err))
			continue
		}
		if err := s.repo.Delete(ctx, f.ID); err != nil {
			s.logger.Warn("sweep file row", slog.String("file_id", f.ID.String()), slog.Any("error", err))
			continue
		}
		purged++
	}
	return purged, nil
}
