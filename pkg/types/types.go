// Package types provides the configuration and task types shared by the
// OpenET pipeline, CLI and state tracking.
package types

import (
	"fmt"
	"time"
)

// StorageKind selects the object store backend
type StorageKind string

const (
	StorageKindLocal StorageKind = "local"
	StorageKindS3    StorageKind = "s3"
)

// LogLevel represents logging verbosity levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// TaskStatus represents the lifecycle of an export task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusReady     TaskStatus = "ready"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Done reports whether the status is terminal
func (s TaskStatus) Done() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CollectionsConfig names the input collection objects in the store
type CollectionsConfig struct {
	Scenes         string `json:"scenes" yaml:"scenes"`
	Reference      string `json:"reference" yaml:"reference"`
	ReferenceBand  string `json:"reference_band,omitempty" yaml:"reference_band,omitempty"`
	InterpSource   string `json:"interp_source,omitempty" yaml:"interp_source,omitempty"`
	InterpBand     string `json:"interp_band,omitempty" yaml:"interp_band,omitempty"`
	InterpResample string `json:"interp_resample,omitempty" yaml:"interp_resample,omitempty"`
}

// InterpolationConfig controls the daily interpolation
type InterpolationConfig struct {
	Method                  string   `json:"method" yaml:"method"`
	Days                    int      `json:"days" yaml:"days"`
	UseJoins                *bool    `json:"use_joins,omitempty" yaml:"use_joins,omitempty"`
	MaskPartialAggregations *bool    `json:"mask_partial_aggregations,omitempty" yaml:"mask_partial_aggregations,omitempty"`
	ETFractionMin           *float64 `json:"et_fraction_min,omitempty" yaml:"et_fraction_min,omitempty"`
	ETFractionMax           *float64 `json:"et_fraction_max,omitempty" yaml:"et_fraction_max,omitempty"`
}

// ReferenceConfig configures the reference ET source
type ReferenceConfig struct {
	Band     string   `json:"band,omitempty" yaml:"band,omitempty"`
	Factor   *float64 `json:"factor,omitempty" yaml:"factor,omitempty"`
	Resample string   `json:"resample,omitempty" yaml:"resample,omitempty"`
}

// CloudMaskConfig holds the Landsat cloud mask flags
type CloudMaskConfig struct {
	Cirrus        bool    `json:"cirrus" yaml:"cirrus"`
	Dilate        bool    `json:"dilate" yaml:"dilate"`
	Shadow        bool    `json:"shadow" yaml:"shadow"`
	Snow          bool    `json:"snow" yaml:"snow"`
	Filter        bool    `json:"filter" yaml:"filter"`
	Saturated     bool    `json:"saturated" yaml:"saturated"`
	SRCloudQA     bool    `json:"sr_cloud_qa" yaml:"sr_cloud_qa"`
	CloudScore    bool    `json:"cloud_score" yaml:"cloud_score"`
	CloudScorePct float64 `json:"cloud_score_pct,omitempty" yaml:"cloud_score_pct,omitempty"`
}

// EnsembleConfig configures the MAD ensemble
type EnsembleConfig struct {
	MADeScale float64 `json:"made_scale" yaml:"made_scale"`
}

// ExportConfig selects the tiles, period and variables to export
type ExportConfig struct {
	StudyAreas        string   `json:"study_areas" yaml:"study_areas"`
	Tiles             string   `json:"tiles" yaml:"tiles"`
	StudyAreaProperty string   `json:"study_area_property,omitempty" yaml:"study_area_property,omitempty"`
	StudyAreaFeatures []string `json:"study_area_features,omitempty" yaml:"study_area_features,omitempty"`
	MGRSTiles         []string `json:"mgrs_tiles,omitempty" yaml:"mgrs_tiles,omitempty"`
	MGRSSkipList      []string `json:"mgrs_skip_list,omitempty" yaml:"mgrs_skip_list,omitempty"`
	UTMZones          []int    `json:"utm_zones,omitempty" yaml:"utm_zones,omitempty"`
	WRS2Tiles         []string `json:"wrs2_tiles,omitempty" yaml:"wrs2_tiles,omitempty"`
	CellSize          float64  `json:"cell_size,omitempty" yaml:"cell_size,omitempty"`
	Interval          string   `json:"interval" yaml:"interval"`
	Variables         []string `json:"variables" yaml:"variables"`
	StartDate         string   `json:"start_date" yaml:"start_date"`
	EndDate           string   `json:"end_date" yaml:"end_date"`
	OutputPrefix      string   `json:"output_prefix" yaml:"output_prefix"`
}

// StorageConfig selects and configures the object store
type StorageConfig struct {
	Kind            StorageKind `json:"kind" yaml:"kind"`
	Root            string      `json:"root,omitempty" yaml:"root,omitempty"`
	Endpoint        string      `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Bucket          string      `json:"bucket" yaml:"bucket"`
	Region          string      `json:"region,omitempty" yaml:"region,omitempty"`
	AccessKeyID     string      `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string      `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	UseSSL          bool        `json:"use_ssl,omitempty" yaml:"use_ssl,omitempty"`
}

// SchedulingConfig controls task concurrency and retries
type SchedulingConfig struct {
	Parallelization int `json:"parallelization" yaml:"parallelization"`
	MaxRetries      int `json:"max_retries" yaml:"max_retries"`
	// Delay is the pause in seconds before each task start
	Delay int `json:"delay,omitempty" yaml:"delay,omitempty"`
	// MaxReady throttles task starts while this many tasks are ready
	MaxReady int `json:"max_ready,omitempty" yaml:"max_ready,omitempty"`
}

// NotificationConfig represents notification preferences
type NotificationConfig struct {
	Enabled      *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	SuccessSound string `json:"success_sound,omitempty" yaml:"success_sound,omitempty"`
	FailureSound string `json:"failure_sound,omitempty" yaml:"failure_sound,omitempty"`
}

// WatchConfig configures the scene directory watcher
type WatchConfig struct {
	Dir      string   `json:"dir" yaml:"dir"`
	Patterns []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Exclude  []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	// SettlingDelay is in milliseconds
	SettlingDelay int `json:"settling_delay,omitempty" yaml:"settling_delay,omitempty"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	File  string   `json:"file" yaml:"file"`
	Level LogLevel `json:"level" yaml:"level"`
}

// Config is the openet.config.yaml document
type Config struct {
	Version       string               `json:"version" yaml:"version"`
	Collections   *CollectionsConfig   `json:"collections,omitempty" yaml:"collections,omitempty"`
	Interpolation *InterpolationConfig `json:"interpolation,omitempty" yaml:"interpolation,omitempty"`
	Reference     *ReferenceConfig     `json:"reference,omitempty" yaml:"reference,omitempty"`
	CloudMask     *CloudMaskConfig     `json:"cloud_mask,omitempty" yaml:"cloud_mask,omitempty"`
	Ensemble      *EnsembleConfig      `json:"ensemble,omitempty" yaml:"ensemble,omitempty"`
	Export        *ExportConfig        `json:"export,omitempty" yaml:"export,omitempty"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`
	Scheduling    *SchedulingConfig    `json:"scheduling,omitempty" yaml:"scheduling,omitempty"`
	Notifications *NotificationConfig  `json:"notifications,omitempty" yaml:"notifications,omitempty"`
	Watch         *WatchConfig         `json:"watch,omitempty" yaml:"watch,omitempty"`
	Logging       *LoggingConfig       `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// NotificationsEnabled defaults to true when unset
func (c *Config) NotificationsEnabled() bool {
	return c.Notifications == nil || c.Notifications.Enabled == nil || *c.Notifications.Enabled
}

// DateRange parses the export start and end dates
func (e *ExportConfig) DateRange() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", e.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date %q: %w", e.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", e.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date %q: %w", e.EndDate, err)
	}
	return start, end, nil
}

// TaskResult is the outcome of one task attempt, as recorded in state
type TaskResult struct {
	RunID     string
	Task      string
	Status    TaskStatus
	Attempts  int
	Error     string
	OutputKey string
	Duration  time.Duration
}
