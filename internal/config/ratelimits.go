package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// rateLimitFile mirrors rate_limits.yaml. Entries may use token-bucket terms
// directly or request quotas that are converted to a bucket.
type rateLimitFile struct {
	Services map[string]rateLimitEntry `yaml:"services"`
}

type rateLimitEntry struct {
	Capacity          int     `yaml:"capacity"`
	RefillPerSecond   float64 `yaml:"refill_per_second"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	RequestsPerHour   int     `yaml:"requests_per_hour"`
	RequestsPerDay    int     `yaml:"requests_per_day"`
	Burst             int     `yaml:"burst"`
}

// LoadRateLimitFile parses a YAML rate limit overlay. A missing file yields an
// empty map.
func LoadRateLimitFile(path string) (map[string]RateLimit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]RateLimit{}, nil
		}
		return nil, fmt.Errorf("read rate limits: %w", err)
	}

	var doc rateLimitFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse rate limits %s: %w", path, err)
	}

	out := make(map[string]RateLimit, len(doc.Services))
	for name, entry := range doc.Services {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		out[name] = entry.bucket()
	}
	return out, nil
}

func (e rateLimitEntry) bucket() RateLimit {
	refill := e.RefillPerSecond
	if refill == 0 {
		switch {
		case e.RequestsPerMinute > 0:
			refill = float64(e.RequestsPerMinute) / 60
		case e.RequestsPerHour > 0:
			refill = float64(e.RequestsPerHour) / 3600
		case e.RequestsPerDay > 0:
			refill = float64(e.RequestsPerDay) / 86400
		}
	}

	capacity := e.Capacity
	if capacity == 0 {
		switch {
		case e.Burst > 0:
			capacity = e.Burst
		case e.RequestsPerMinute > 0:
			capacity = e.RequestsPerMinute
		case refill > 0:
			capacity = int(math.Max(1, math.Ceil(refill*60)))
		}
	}
	return RateLimit{Capacity: capacity, RefillPerSecond: refill}
}
