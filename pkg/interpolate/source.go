package interpolate

import (
	"context"
	"time"

	"github.com/openet/core/pkg/raster"
)

// ReferenceSource supplies daily gridded images, such as reference ET
type ReferenceSource interface {
	Daily(ctx context.Context, start, end time.Time) (*raster.Collection, error)
}

// CollectionSource serves daily images from an in-memory collection
type CollectionSource struct {
	Coll *raster.Collection
}

// NewCollectionSource wraps coll as a ReferenceSource
func NewCollectionSource(coll *raster.Collection) *CollectionSource {
	return &CollectionSource{Coll: coll}
}

// Daily returns the images with start <= TimeStart < end
func (s *CollectionSource) Daily(ctx context.Context, start, end time.Time) (*raster.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Coll.FilterDate(start, end).SortByTime(true), nil
}
