// Package validation checks that a project can run: the files and store
// objects its config names exist and the sections run needs are present.
// Field level checks live in config.Manager.ValidateConfig.
package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/openet/core/pkg/export"
	"github.com/openet/core/pkg/storage"
	"github.com/openet/core/pkg/types"
)

// ValidationLevel represents error severity
type ValidationLevel string

const (
	ValidationLevelError   ValidationLevel = "error"
	ValidationLevelWarning ValidationLevel = "warning"
	ValidationLevelInfo    ValidationLevel = "info"
)

// tilePlaceholder marks per tile scene collections, which are not checked
const tilePlaceholder = "{tile}"

// ValidationError is one finding
type ValidationError struct {
	Section string
	Field   string
	Message string
	Level   ValidationLevel
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s.%s: %s", e.Level, e.Section, e.Field, e.Message)
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// AddError adds a finding; error level findings make the result invalid
func (r *ValidationResult) AddError(section, field, message string, level ValidationLevel) {
	r.Errors = append(r.Errors, ValidationError{
		Section: section,
		Field:   field,
		Message: message,
		Level:   level,
	})
	if level == ValidationLevelError {
		r.Valid = false
	}
}

// Count returns the number of findings at level
func (r *ValidationResult) Count(level ValidationLevel) int {
	n := 0
	for _, e := range r.Errors {
		if e.Level == level {
			n++
		}
	}
	return n
}

// ProjectValidator checks a config against a project directory and store
type ProjectValidator struct {
	projectRoot string
	store       storage.ObjectStore
}

// NewProjectValidator creates a validator. A nil store skips object checks.
func NewProjectValidator(projectRoot string, store storage.ObjectStore) *ProjectValidator {
	return &ProjectValidator{projectRoot: projectRoot, store: store}
}

// Validate runs every check and collects the findings
func (v *ProjectValidator) Validate(ctx context.Context, cfg *types.Config) *ValidationResult {
	result := &ValidationResult{Valid: true}

	v.validateCollections(cfg, result)
	v.validateExport(cfg, result)
	v.validateWatch(cfg, result)
	if cm := cfg.CloudMask; cm != nil && cm.CloudScore {
		result.AddError("cloud_mask", "cloud_score",
			"run has no TOA scenes and skips cloud scoring, use 'openet mask --toa'", ValidationLevelWarning)
	}
	if v.store != nil {
		v.validateStore(ctx, cfg, result)
	}
	return result
}

func (v *ProjectValidator) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(v.projectRoot, path)
}

func (v *ProjectValidator) validateCollections(cfg *types.Config, result *ValidationResult) {
	cc := cfg.Collections
	if cc == nil {
		result.AddError("collections", "", "section is required", ValidationLevelError)
		return
	}
	if cc.Scenes == "" {
		result.AddError("collections", "scenes", "scene collection key is required", ValidationLevelError)
	}
	if cc.Reference == "" {
		result.AddError("collections", "reference", "reference collection key is required", ValidationLevelError)
	}
	band := cc.ReferenceBand
	if cfg.Reference != nil && cfg.Reference.Band != "" {
		band = cfg.Reference.Band
	}
	if band == "" {
		result.AddError("reference", "band", "reference ET band is required", ValidationLevelError)
	}
	if cc.InterpSource != "" && cc.InterpBand == "" {
		result.AddError("collections", "interp_band", "interp_source needs an interp_band", ValidationLevelError)
	}
	if cc.InterpSource == "" && cc.InterpBand != "" {
		result.AddError("collections", "interp_band", "ignored without interp_source", ValidationLevelWarning)
	}
}

func (v *ProjectValidator) validateExport(cfg *types.Config, result *ValidationResult) {
	ec := cfg.Export
	if ec == nil {
		result.AddError("export", "", "section is required", ValidationLevelError)
		return
	}
	if ec.StartDate == "" || ec.EndDate == "" {
		result.AddError("export", "start_date", "start_date and end_date are required", ValidationLevelError)
	}
	if len(ec.Variables) == 0 {
		result.AddError("export", "variables", "no output variables selected", ValidationLevelError)
	}
	if ec.OutputPrefix == "" {
		result.AddError("export", "output_prefix", "exports are written at the bucket root", ValidationLevelInfo)
	}

	for field, path := range map[string]string{"study_areas": ec.StudyAreas, "tiles": ec.Tiles} {
		if path == "" {
			result.AddError("export", field, "feature file is required", ValidationLevelError)
			continue
		}
		features, err := export.LoadFeatures(v.resolve(path))
		if err != nil {
			result.AddError("export", field, err.Error(), ValidationLevelError)
			continue
		}
		if len(features) == 0 {
			result.AddError("export", field, "feature file is empty", ValidationLevelWarning)
		}
	}
}

func (v *ProjectValidator) validateWatch(cfg *types.Config, result *ValidationResult) {
	wc := cfg.Watch
	if wc == nil || wc.Dir == "" {
		return
	}
	info, err := os.Stat(v.resolve(wc.Dir))
	switch {
	case os.IsNotExist(err):
		result.AddError("watch", "dir", fmt.Sprintf("directory does not exist: %s", wc.Dir), ValidationLevelWarning)
	case err != nil:
		result.AddError("watch", "dir", err.Error(), ValidationLevelWarning)
	case !info.IsDir():
		result.AddError("watch", "dir", fmt.Sprintf("not a directory: %s", wc.Dir), ValidationLevelError)
	}
}

func (v *ProjectValidator) validateStore(ctx context.Context, cfg *types.Config, result *ValidationResult) {
	bucket := "openet"
	if cfg.Storage != nil && cfg.Storage.Bucket != "" {
		bucket = cfg.Storage.Bucket
	}
	exists, err := v.store.BucketExists(ctx, bucket)
	if err != nil {
		result.AddError("storage", "bucket", err.Error(), ValidationLevelError)
		return
	}
	if !exists {
		result.AddError("storage", "bucket", fmt.Sprintf("bucket %s does not exist", bucket), ValidationLevelError)
		return
	}

	cc := cfg.Collections
	if cc == nil {
		return
	}
	for field, key := range map[string]string{
		"scenes":        cc.Scenes,
		"reference":     cc.Reference,
		"interp_source": cc.InterpSource,
	} {
		if key == "" {
			continue
		}
		if strings.Contains(key, tilePlaceholder) {
			result.AddError("collections", field, "per tile collections are checked at run time", ValidationLevelInfo)
			continue
		}
		keys, err := v.store.ListPrefix(ctx, bucket, key)
		if err != nil {
			result.AddError("collections", field, err.Error(), ValidationLevelError)
			continue
		}
		if !slices.Contains(keys, key) {
			result.AddError("collections", field, fmt.Sprintf("object %s not found in bucket %s", key, bucket), ValidationLevelError)
		}
	}
}
