package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openet/core/pkg/common"
	pctx "github.com/openet/core/pkg/context"
	"github.com/openet/core/pkg/export"
	"github.com/openet/core/pkg/interpolate"
	"github.com/openet/core/pkg/landsat"
	"github.com/openet/core/pkg/logger"
	"github.com/openet/core/pkg/queue"
	"github.com/openet/core/pkg/raster"
	"github.com/openet/core/pkg/storage"
	"github.com/openet/core/pkg/types"
	"github.com/openet/core/pkg/utils"
)

// TilePlaceholder in a scene collection key is replaced by each tile index
const TilePlaceholder = "{tile}"

const qaPixelBand = "QA_PIXEL"

var (
	// ErrNoTiles is returned when the study area selects no export tiles
	ErrNoTiles = errors.New("no export tiles selected")

	// ErrIncompleteConfig is returned when a section the pipeline needs is missing
	ErrIncompleteConfig = errors.New("incomplete config")
)

// RunResult describes one pipeline run
type RunResult struct {
	RunID   string
	Tiles   []export.Tile
	Tasks   []*queue.Task
	Summary queue.Summary
}

// Outputs returns the object keys written by completed tasks
func (r *RunResult) Outputs() []string {
	var keys []string
	for _, t := range r.Tasks {
		if t.Status == types.TaskStatusCompleted && t.OutputKey != "" {
			keys = append(keys, t.OutputKey)
		}
	}
	return keys
}

// Runner executes the export pipeline for a config
type Runner struct {
	projectRoot string
	logger      logger.Logger
	deps        Dependencies
	// Unit scales the scheduling delay, one second unless set
	Unit time.Duration
}

// NewRunner creates a runner. deps.Store is required.
func NewRunner(projectRoot string, log logger.Logger, deps Dependencies) (*Runner, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: object store is required", ErrIncompleteConfig)
	}
	if deps.Priority == nil {
		deps.Priority = NewPriorityEngine(log)
	}
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	return &Runner{
		projectRoot: absRoot,
		logger:      logger.OrNop(log),
		deps:        deps,
		Unit:        time.Second,
	}, nil
}

// Tiles loads the configured feature files and selects the export tiles
func (r *Runner) Tiles(cfg *types.Config) ([]export.Tile, error) {
	return SelectTiles(r.projectRoot, cfg, r.logger)
}

// SelectTiles resolves the export feature files against projectRoot and
// selects the export tiles
func SelectTiles(projectRoot string, cfg *types.Config, log logger.Logger) ([]export.Tile, error) {
	if cfg.Export == nil {
		return nil, fmt.Errorf("%w: export section", ErrIncompleteConfig)
	}
	ec := cfg.Export
	studyAreas, err := export.LoadFeatures(resolvePath(projectRoot, ec.StudyAreas))
	if err != nil {
		return nil, fmt.Errorf("study areas: %w", err)
	}
	mgrsTiles, err := export.LoadFeatures(resolvePath(projectRoot, ec.Tiles))
	if err != nil {
		return nil, fmt.Errorf("mgrs tiles: %w", err)
	}
	return export.MGRSExportTiles(studyAreas, mgrsTiles, export.Options{
		StudyAreaProperty: ec.StudyAreaProperty,
		StudyAreaFeatures: ec.StudyAreaFeatures,
		MGRSTiles:         ec.MGRSTiles,
		MGRSSkipList:      ec.MGRSSkipList,
		UTMZones:          ec.UTMZones,
		WRS2Tiles:         ec.WRS2Tiles,
		CellSize:          ec.CellSize,
		Logger:            log,
	})
}

// Run selects the tiles, loads the inputs and exports every tile and period.
// Failed tasks are counted in the summary; the error is reserved for setup
// problems and cancellation.
func (r *Runner) Run(ctx context.Context, cfg *types.Config) (*RunResult, error) {
	ctx = pctx.EnrichContext(ctx)
	runID := pctx.GetRunID(ctx)
	log := logger.WithContext(ctx, r.logger)

	if cfg.Collections == nil || cfg.Collections.Scenes == "" || cfg.Collections.Reference == "" {
		return nil, fmt.Errorf("%w: collections.scenes and collections.reference are required", ErrIncompleteConfig)
	}
	if cfg.Export == nil {
		return nil, fmt.Errorf("%w: export section", ErrIncompleteConfig)
	}
	start, end, err := cfg.Export.DateRange()
	if err != nil {
		return nil, err
	}
	interval, err := interpolate.ParseTInterval(cfg.Export.Interval)
	if err != nil {
		return nil, err
	}

	tiles, err := r.Tiles(cfg)
	if err != nil {
		return nil, err
	}
	if len(tiles) == 0 {
		return nil, ErrNoTiles
	}
	log.Info(fmt.Sprintf("Selected %d export tiles", len(tiles)))

	bucket := storageBucket(cfg)
	if err := r.deps.Store.EnsureBucket(ctx, bucket); err != nil {
		return nil, err
	}

	in, err := r.loadInputs(ctx, cfg, bucket, start, end)
	if err != nil {
		return nil, err
	}

	if r.deps.State != nil {
		if states, err := r.deps.State.DiscoverStates(); err != nil {
			log.Warn("Failed to read previous task states", logger.WithField("error", err.Error()))
		} else {
			r.deps.Priority.Load(states)
		}
	}

	sched := cfg.Scheduling
	if sched == nil {
		sched = &types.SchedulingConfig{Parallelization: 1}
	}
	opts := queue.Options{
		RunID:      runID,
		MaxRetries: sched.MaxRetries,
		Delay:      sched.Delay,
		MaxReady:   sched.MaxReady,
		Unit:       r.Unit,
		Notifier:   r.deps.Notifier,
		Logger:     r.logger,
	}
	if r.deps.State != nil {
		opts.State = r.deps.State
	}
	q := queue.NewTaskQueue(opts)

	prefix := cfg.Export.OutputPrefix
	for _, tile := range tiles {
		for _, w := range interval.Windows(start, end) {
			index := interval.Index(w[0])
			name := tile.Index + "/" + index
			job := exportJob{
				runner:   r,
				cfg:      cfg,
				in:       in,
				bucket:   bucket,
				tile:     tile,
				start:    w[0],
				end:      w[1],
				interval: interval,
				key:      storage.JoinKey(prefix, tile.Index, index+".parquet"),
			}
			task := queue.NewTask(name, r.deps.Priority.CalculatePriority(name, w[0]), job.run)
			task.OutputKey = job.key
			if err := q.Enqueue(task); err != nil {
				return nil, err
			}
		}
	}
	log.Info(fmt.Sprintf("Queued %d export tasks", q.Size()),
		logger.WithField("interval", string(interval)))

	if r.deps.State != nil {
		r.deps.State.StartHeartbeat(ctx)
		defer r.deps.State.StopHeartbeat()
	}

	summary, err := q.Start(ctx, sched.Parallelization)
	result := &RunResult{RunID: runID, Tiles: tiles, Tasks: q.Tasks(), Summary: summary}
	for _, t := range result.Tasks {
		if t.Status.Done() {
			r.deps.Priority.UpdateTaskMetrics(t.Name, t.Duration, t.Status == types.TaskStatusCompleted)
		}
	}
	if err != nil {
		return result, err
	}

	if summary.Failed > 0 {
		log.Warn(fmt.Sprintf("Run finished with %d failed tasks", summary.Failed),
			logger.WithField("completed", summary.Completed))
	} else {
		log.Success(fmt.Sprintf("Run finished, %d tasks exported", summary.Completed))
	}
	return result, nil
}

// Private methods

func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func storageBucket(cfg *types.Config) string {
	if cfg.Storage != nil && cfg.Storage.Bucket != "" {
		return cfg.Storage.Bucket
	}
	return "openet"
}

// inputs are shared by every export task of a run
type inputs struct {
	reference interpolate.ReferenceSource
	interp    interpolate.ReferenceSource
	// scenes is nil when the scene key is per tile
	scenes *raster.Collection

	mu      sync.Mutex
	perTile map[string]*tileScenes
}

type tileScenes struct {
	once   sync.Once
	scenes *raster.Collection
	err    error
}

func (r *Runner) loadInputs(ctx context.Context, cfg *types.Config, bucket string, start, end time.Time) (*inputs, error) {
	cc := cfg.Collections
	reference := storage.NewStoreSource(r.deps.Store, bucket, cc.Reference, r.logger)
	reference.Retry = r.readPolicy()
	in := &inputs{
		reference: reference,
		perTile:   make(map[string]*tileScenes),
	}
	if cc.InterpSource != "" {
		interp := storage.NewStoreSource(r.deps.Store, bucket, cc.InterpSource, r.logger)
		interp.Retry = r.readPolicy()
		in.interp = interp
	}

	g, gctx := NewSafeGroup(ctx, r.logger)
	if !strings.Contains(cc.Scenes, TilePlaceholder) {
		g.Go(func() error {
			scenes, err := r.loadScenes(gctx, cfg, bucket, cc.Scenes)
			if err != nil {
				return err
			}
			in.scenes = scenes
			return nil
		})
	}
	// Warm the daily sources so every task shares one decoded copy
	g.Go(func() error {
		_, err := in.reference.Daily(gctx, start, end)
		return err
	})
	if in.interp != nil {
		g.Go(func() error {
			_, err := in.interp.Daily(gctx, start, end)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load inputs: %w", err)
	}
	return in, nil
}

// readPolicy retries transient store reads, scaled like the task delays
func (r *Runner) readPolicy() utils.RetryPolicy {
	unit := r.Unit
	if unit == 0 {
		unit = time.Second
	}
	return utils.GetInfoPolicy.WithUnit(unit).WithLogger(r.logger)
}

func (r *Runner) loadScenes(ctx context.Context, cfg *types.Config, bucket, key string) (*raster.Collection, error) {
	scenes, err := storage.LoadCollectionWithRetry(ctx, r.deps.Store, bucket, key, r.readPolicy())
	if err != nil {
		return nil, fmt.Errorf("scenes: %w", err)
	}
	scenes, err = r.maskScenes(scenes, cfg.CloudMask)
	if err != nil {
		return nil, fmt.Errorf("scenes %s: %w", key, err)
	}
	r.logger.Debug("Loaded scenes",
		logger.WithField("key", key),
		logger.WithField("images", scenes.Len()))
	return scenes, nil
}

// maskScenes applies the Landsat cloud mask to scenes carrying QA_PIXEL
func (r *Runner) maskScenes(scenes *raster.Collection, mc *types.CloudMaskConfig) (*raster.Collection, error) {
	if mc == nil {
		return scenes, nil
	}
	opts := MaskOptions(mc)
	opts.CloudScore = false
	if mc.CloudScore {
		r.logger.Warn("cloud_score needs matched TOA scenes and is skipped by the pipeline")
	}

	masked := 0
	out, err := scenes.Map(func(img *raster.Image) (*raster.Image, error) {
		if !img.HasBand(qaPixelBand) {
			return img, nil
		}
		mask, err := common.LandsatC2SRCloudMask(img, opts)
		if err != nil {
			return nil, err
		}
		masked++
		return img.UpdateMask(mask)
	})
	if err != nil {
		return nil, err
	}
	if masked > 0 {
		r.logger.Debug(fmt.Sprintf("Cloud masked %d scenes", masked))
	}
	return out, nil
}

func (r *Runner) scenesFor(ctx context.Context, cfg *types.Config, in *inputs, bucket, tile string) (*raster.Collection, error) {
	if in.scenes != nil {
		return in.scenes, nil
	}
	in.mu.Lock()
	ts, ok := in.perTile[tile]
	if !ok {
		ts = &tileScenes{}
		in.perTile[tile] = ts
	}
	in.mu.Unlock()

	ts.once.Do(func() {
		key := strings.ReplaceAll(cfg.Collections.Scenes, TilePlaceholder, tile)
		ts.scenes, ts.err = r.loadScenes(ctx, cfg, bucket, key)
	})
	return ts.scenes, ts.err
}

// exportJob interpolates one tile over one output period
type exportJob struct {
	runner   *Runner
	cfg      *types.Config
	in       *inputs
	bucket   string
	tile     export.Tile
	start    time.Time
	end      time.Time
	interval interpolate.TInterval
	key      string
}

func (j exportJob) run(ctx context.Context) error {
	ctx = pctx.WithOperation(pctx.WithTile(ctx, j.tile.Index), "interpolate")
	log := logger.WithContext(ctx, j.runner.logger.WithTarget(j.tile.Index))

	scenes, err := j.runner.scenesFor(ctx, j.cfg, j.in, j.bucket, j.tile.Index)
	if err != nil {
		return err
	}

	interp := InterpArgs(j.cfg, j.in.reference, j.in.interp)
	fn := interpolate.FromSceneETFraction
	if j.in.interp != nil {
		fn = interpolate.FromSceneETActual
	}
	out, err := fn(ctx, scenes, j.start, j.end, j.cfg.Export.Variables, interp, interpolate.ModelArgs{}, j.interval)
	if errors.Is(err, interpolate.ErrNoScenes) {
		log.Warn("No scenes in period, nothing exported",
			logger.WithField("start", j.start.Format(time.DateOnly)))
		return nil
	}
	if err != nil {
		return err
	}

	if err := storage.SaveCollection(ctx, j.runner.deps.Store, j.bucket, j.key, out); err != nil {
		return err
	}
	log.Debug("Exported", logger.WithField("key", j.key), logger.WithField("images", out.Len()))
	return nil
}

// MaskOptions converts the cloud_mask section. CloudScore is copied as is;
// callers without TOA scenes must clear it.
func MaskOptions(mc *types.CloudMaskConfig) common.CloudMaskOptions {
	if mc == nil {
		return common.DefaultCloudMaskOptions()
	}
	pct := mc.CloudScorePct
	if pct <= 0 {
		pct = landsat.DefaultCloudScorePct
	}
	return common.CloudMaskOptions{
		Cirrus:        mc.Cirrus,
		Dilate:        mc.Dilate,
		Shadow:        mc.Shadow,
		Snow:          mc.Snow,
		CloudScore:    mc.CloudScore,
		CloudScorePct: pct,
		Filter:        mc.Filter,
		Saturated:     mc.Saturated,
		SRCloudQA:     mc.SRCloudQA,
	}
}

// InterpArgs maps the interpolation, reference and collections sections onto
// interpolation arguments. interp may be nil.
func InterpArgs(cfg *types.Config, reference, interp interpolate.ReferenceSource) interpolate.InterpArgs {
	args := interpolate.InterpArgs{
		Method:            interpolate.MethodLinear,
		Days:              interpolate.DefaultInterpDays,
		ETReferenceSource: reference,
	}
	if ic := cfg.Interpolation; ic != nil {
		if ic.Method != "" {
			args.Method = ic.Method
		}
		if ic.Days != 0 {
			args.Days = ic.Days
		}
		args.UseJoins = ic.UseJoins
		args.MaskPartialAggregations = ic.MaskPartialAggregations
		args.ETFractionMin = ic.ETFractionMin
		args.ETFractionMax = ic.ETFractionMax
	}

	cc := cfg.Collections
	if cc == nil {
		cc = &types.CollectionsConfig{}
	}
	args.ETReferenceBand = cc.ReferenceBand
	if rc := cfg.Reference; rc != nil {
		if rc.Band != "" {
			args.ETReferenceBand = rc.Band
		}
		args.ETReferenceFactor = rc.Factor
		args.ETReferenceResample = rc.Resample
	}
	if interp != nil {
		args.InterpSource = interp
		args.InterpBand = cc.InterpBand
		args.InterpResample = cc.InterpResample
	}
	return args
}
