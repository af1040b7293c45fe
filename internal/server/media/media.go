package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/cadencefm/cadence/internal/utils"
)

const (
	MaxManifestSize = 1 << 20
	MaxSearchLimit  = 200
)

// MediaService exposes stored objects to their owners and to operators
type MediaService struct {
	catalog Catalog
	blobs   *blob.BlobService
}

func NewMediaService(catalog Catalog, blobs *blob.BlobService) *MediaService {
	return &MediaService{catalog: catalog, blobs: blobs}
}

func (s *MediaService) Catalog() Catalog {
	return s.catalog
}

func (s *MediaService) Get(ctx context.Context, id string) (*StoredObject, error) {
	return s.catalog.Get(ctx, id)
}

func (s *MediaService) Search(ctx context.Context, query string, limit int) ([]*StoredObject, error) {
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	objects, err := s.catalog.Search(ctx, query, limit)
	if err != nil {
		return nil, errs.Internal("search", err)
	}
	return objects, nil
}

// AttachManifest stores a pre-generated HLS playlist, served verbatim from then on
func (s *MediaService) AttachManifest(ctx context.Context, id, clientID, manifest string) error {
	if _, err := s.owned(ctx, id, clientID); err != nil {
		return err
	}
	if len(manifest) > MaxManifestSize {
		return fmt.Errorf("%w: manifest larger than %d bytes", errs.ErrValidation, MaxManifestSize)
	}
	if !strings.HasPrefix(strings.TrimSpace(manifest), "#EXTM3U") {
		return fmt.Errorf("%w: manifest must start with #EXTM3U", errs.ErrValidation)
	}
	return s.catalog.SetManifest(ctx, id, manifest)
}

// AttachSegment stores a transcoded segment next to the object on its current tier
func (s *MediaService) AttachSegment(ctx context.Context, id, clientID, name string, body io.Reader, size int64) (*blob.ObjectInfo, error) {
	if !utils.IsPlainName(name) {
		return nil, fmt.Errorf("%w: invalid segment name %q", errs.ErrForbidden, name)
	}
	obj, err := s.owned(ctx, id, clientID)
	if err != nil {
		return nil, err
	}

	backend, err := s.blobs.Backend(obj.Tier)
	if err != nil {
		return nil, errs.Internal("object tier", err)
	}
	info, err := backend.Put(ctx, &blob.PutParams{
		Key:          blob.SegmentKey(id, name),
		Body:         body,
		Size:         size,
		ContentType:  utils.DetectContentType(name),
		StorageClass: s.blobs.Policy(obj.Tier).StorageClass,
	})
	if err != nil {
		return nil, errs.Internal("store segment", err)
	}
	return info, nil
}

// Delete removes an object from every tier and then from the catalog
func (s *MediaService) Delete(ctx context.Context, id string) error {
	if _, err := s.catalog.Get(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.DeleteAll(ctx, id); err != nil {
		return errs.Internal("delete object data", err)
	}
	if err := s.catalog.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("object deleted", "object", id)
	return nil
}

func (s *MediaService) owned(ctx context.Context, id, clientID string) (*StoredObject, error) {
	obj, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj.Owner != clientID {
		return nil, fmt.Errorf("%w: object belongs to another client", errs.ErrUnauthorized)
	}
	return obj, nil
}
