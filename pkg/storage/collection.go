package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openet/core/pkg/logger"
	"github.com/openet/core/pkg/raster"
	"github.com/openet/core/pkg/utils"
)

// SaveCollection encodes coll and stores it at bucket/key
func SaveCollection(ctx context.Context, store ObjectStore, bucket, key string, coll *raster.Collection) error {
	data, err := EncodeCollection(coll)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := store.PutObject(ctx, bucket, key, data); err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

// LoadCollection reads and decodes the collection at bucket/key. Transient
// read failures are retried with utils.GetInfoPolicy.
func LoadCollection(ctx context.Context, store ObjectStore, bucket, key string) (*raster.Collection, error) {
	return LoadCollectionWithRetry(ctx, store, bucket, key, utils.GetInfoPolicy)
}

// LoadCollectionWithRetry is LoadCollection with an explicit retry policy
func LoadCollectionWithRetry(ctx context.Context, store ObjectStore, bucket, key string, policy utils.RetryPolicy) (*raster.Collection, error) {
	var data []byte
	err := utils.Retry(ctx, policy, func(ctx context.Context) error {
		var err error
		data, err = store.GetObject(ctx, bucket, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	coll, err := DecodeCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return coll, nil
}

// StoreSource serves daily images from a collection object. The object is
// read once on first use.
type StoreSource struct {
	Store  ObjectStore
	Bucket string
	Key    string
	Logger logger.Logger
	// Retry governs the object read; a zero policy means utils.GetInfoPolicy
	Retry utils.RetryPolicy

	mu   sync.Mutex
	coll *raster.Collection
}

// NewStoreSource creates a source reading bucket/key from store
func NewStoreSource(store ObjectStore, bucket, key string, log logger.Logger) *StoreSource {
	log = logger.OrNop(log)
	return &StoreSource{
		Store:  store,
		Bucket: bucket,
		Key:    key,
		Logger: log,
		Retry:  utils.GetInfoPolicy.WithLogger(log),
	}
}

// Daily returns the images with start <= TimeStart < end, sorted by time
func (s *StoreSource) Daily(ctx context.Context, start, end time.Time) (*raster.Collection, error) {
	coll, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return coll.FilterDate(start, end).SortByTime(true), nil
}

func (s *StoreSource) load(ctx context.Context) (*raster.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll != nil {
		return s.coll, nil
	}
	policy := s.Retry
	if policy.MaxAttempts == 0 {
		policy = utils.GetInfoPolicy
	}
	coll, err := LoadCollectionWithRetry(ctx, s.Store, s.Bucket, s.Key, policy)
	if err != nil {
		return nil, err
	}
	logger.OrNop(s.Logger).Debug("Loaded daily source",
		logger.WithField("key", s.Key),
		logger.WithField("images", coll.Len()))
	s.coll = coll
	return coll, nil
}
