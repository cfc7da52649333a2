package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/openet/core/internal/state"
	"github.com/openet/core/pkg/interfaces"
	"github.com/openet/core/pkg/logger"
	"github.com/openet/core/pkg/notifier"
	"github.com/openet/core/pkg/storage"
	"github.com/openet/core/pkg/types"
)

// StateStore persists task state between runs
type StateStore interface {
	interfaces.StateRecorder
	DiscoverStates() ([]*state.TaskState, error)
	StartHeartbeat(ctx context.Context)
	StopHeartbeat()
}

// Dependencies are the collaborators a Runner needs. Notifier may be nil.
type Dependencies struct {
	Store    storage.ObjectStore
	State    StateStore
	Notifier interfaces.Notifier
	Priority *PriorityEngine
}

// DependencyFactory builds the default Dependencies for a config
type DependencyFactory struct {
	projectRoot string
	logger      logger.Logger
	config      *types.Config
}

// NewDependencyFactory creates a new dependency factory
func NewDependencyFactory(projectRoot string, log logger.Logger, config *types.Config) *DependencyFactory {
	return &DependencyFactory{
		projectRoot: projectRoot,
		logger:      logger.OrNop(log),
		config:      config,
	}
}

// CreateDefaults creates the store, state manager, priority engine and,
// when notifications are enabled, the desktop notifier
func (f *DependencyFactory) CreateDefaults() (Dependencies, error) {
	return f.CreateWithOverrides(Dependencies{})
}

// CreateWithOverrides creates the defaults, keeping every non-nil override
func (f *DependencyFactory) CreateWithOverrides(overrides Dependencies) (Dependencies, error) {
	deps := overrides
	if deps.Store == nil {
		store, err := f.createStore()
		if err != nil {
			return Dependencies{}, err
		}
		deps.Store = store
	}
	if deps.State == nil {
		deps.State = state.NewStateManager(f.projectRoot, f.logger)
	}
	if deps.Priority == nil {
		deps.Priority = NewPriorityEngine(f.logger)
	}
	if deps.Notifier == nil && f.config.NotificationsEnabled() {
		deps.Notifier = f.createNotifier()
	}
	return deps, nil
}

func (f *DependencyFactory) createStore() (storage.ObjectStore, error) {
	sc := f.config.Storage
	if sc == nil {
		sc = &types.StorageConfig{Kind: types.StorageKindLocal}
	}
	switch sc.Kind {
	case types.StorageKindS3:
		store, err := storage.NewS3Store(storage.S3Config{
			Endpoint:        sc.Endpoint,
			Region:          sc.Region,
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
			UseSSL:          sc.UseSSL,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		return store, nil
	case types.StorageKindLocal, "":
		root := sc.Root
		if root == "" {
			root = filepath.Join(".openet", "store")
		}
		if !filepath.IsAbs(root) {
			root = filepath.Join(f.projectRoot, root)
		}
		store, err := storage.NewLocalStore(root)
		if err != nil {
			return nil, fmt.Errorf("local store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage kind %q", sc.Kind)
	}
}

func (f *DependencyFactory) createNotifier() interfaces.Notifier {
	cfg := notifier.Config{Enabled: true}
	if n := f.config.Notifications; n != nil {
		cfg.SuccessSound = n.SuccessSound
		cfg.FailureSound = n.FailureSound
	}
	return notifier.New(cfg, f.logger)
}
