// Package config loads loader configuration from defaults, an optional
// YAML file and SCANSTREAM_ environment variables, in that priority order.
// Scan allow-list parsing lives here too, so the export core only ever
// sees an explicit, already-parsed value.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Defaults for every field a run can omit.
const (
	DefaultApplicationID = "scanstream"
	DefaultPrefix        = "e57_pointcloud"
	DefaultChunkSize     = 1_000_000
	DefaultTimeline      = "default"
)

// Config carries everything the export pipeline needs. A zero RecordingID
// is replaced with a fresh identifier at load time, so two runs never
// collide in the sink.
type Config struct {
	// ApplicationID names the application in the stream header.
	ApplicationID string `koanf:"application_id"`

	// RecordingID groups this run's output in the sink.
	RecordingID string `koanf:"recording_id"`

	// Prefix is the entity path root under which scans are logged.
	Prefix string `koanf:"prefix"`

	// ChunkSize is the flush threshold for bulk point batches.
	ChunkSize int `koanf:"chunk_size"`

	// DisplayScans restricts the export to the listed scan indices. nil
	// means no restriction; an empty non-nil slice excludes every scan.
	// Populated from SCANSTREAM_DISPLAY_SCANS, never from file keys.
	DisplayScans []int `koanf:"-"`
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ApplicationID == "" {
		return fmt.Errorf("application_id must not be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	return nil
}

// ParseScanList parses a comma-separated scan index list. Entries that are
// not non-negative integers are dropped silently; the result is never nil,
// so a set-but-unparseable list still restricts the export.
func ParseScanList(s string) []int {
	out := []int{}
	for _, tok := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil || n < 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}
