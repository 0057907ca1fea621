package transfer

import (
	"context"

	"github.com/depotrun/artifactcore/pkg/coordinate"
	"github.com/depotrun/artifactcore/pkg/taxonomy"
)

// Head returns metadata for a coordinate, passed through to the adapter
// verbatim modulo the error taxonomy.
func (s *Service) Head(ctx context.Context, coord coordinate.Coordinate) (*HeadResult, error) {
	if err := coord.Validate(); err != nil {
		return nil, taxonomy.Wrap(taxonomy.Invalid, "invalid coordinate", err)
	}
	info, err := s.backend.Head(ctx, coord.Key())
	if err != nil {
		return nil, s.classifier.Classify(err)
	}
	return &HeadResult{
		Size:        info.Size,
		ContentType: info.ContentType,
		UpdatedAt:   info.UpdatedAt,
		ETag:        info.ETag,
	}, nil
}

// List passes through to the adapter. The prefix is handed to the adapter
// as given; it is not validated against the coordinate rules.
func (s *Service) List(ctx context.Context, prefix string, cursor string, limit int) (*ListResult, error) {
	page, err := s.backend.List(ctx, prefix, cursor, limit)
	if err != nil {
		return nil, s.classifier.Classify(err)
	}
	res := &ListResult{NextCursor: page.NextCursor}
	for _, e := range page.Entries {
		res.Entries = append(res.Entries, ListEntry{
			Key:       e.Key,
			Size:      e.Size,
			UpdatedAt: e.UpdatedAt,
			ETag:      e.ETag,
		})
	}
	return res, nil
}

// Delete passes through to the adapter, returning the adapter's deleted
// flag verbatim.
func (s *Service) Delete(ctx context.Context, coord coordinate.Coordinate) (bool, error) {
	if err := coord.Validate(); err != nil {
		return false, taxonomy.Wrap(taxonomy.Invalid, "invalid coordinate", err)
	}
	deleted, err := s.backend.Delete(ctx, coord.Key())
	if err != nil {
		return false, s.classifier.Classify(err)
	}
	return deleted, nil
}
