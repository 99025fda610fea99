package constants

import "time"

const (
	ParquetFileExt = "parquet"
	ConfigFolder   = "CONFIG_FOLDER"
	// StateFolder holds file checkpoints; set even with --no-save
	StateFolder         = "STATE_FOLDER"
	EnvPrefix           = "PIPES"
	DefaultRetryCount   = 3
	DefaultRetryTimeout = 1 * time.Second
	// DefaultBatchSize is counted in blocks
	DefaultBatchSize      = 100
	DefaultPollInterval   = 2 * time.Second
	DefaultRequestTimeout = 60 * time.Second
	DefaultCheckTimeout   = 30 * time.Second
	// MultiplicityMarker is the sign written for every at-least-once delivery
	MultiplicityMarker int8 = 1
	CheckpointTable         = "pipes_sync_status"
)
