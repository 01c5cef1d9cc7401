package ashmaize

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pbnjay/memory"
	"go.uber.org/zap"
)

// Cache holds at most one ROM. Consecutive tasks usually share a table
// key, and a rebuild costs seconds of CPU over a gigabyte of memory, so
// a single slot with replace-on-miss is all the orchestrator needs.
type Cache struct {
	logger *zap.Logger
	params Params

	// BuildHook, when set, observes every completed build.
	BuildHook func(elapsed time.Duration)

	key string
	rom *ROM
}

// NewCache returns an empty single-slot cache building ROMs with the
// given parameters.
func NewCache(logger *zap.Logger, params Params) *Cache {
	return &Cache{logger: logger.Named("romcache"), params: params}
}

// GetOrBuild returns the cached ROM when key matches the cached key,
// otherwise drops the previous table and builds a fresh one. Not safe
// for concurrent use; the orchestrator runs tasks serially.
func (c *Cache) GetOrBuild(key string) (*ROM, error) {
	if c.rom != nil && c.key == key {
		c.logger.Info("rom cache hit", zap.String("key_prefix", keyPrefix(key)))
		return c.rom, nil
	}

	if total := memory.TotalMemory(); total > 0 && uint64(c.params.Size) > total {
		return nil, fmt.Errorf("rom size %s exceeds physical memory %s",
			humanize.IBytes(uint64(c.params.Size)), humanize.IBytes(total))
	}

	// Release the old table before allocating the new one.
	c.rom = nil
	c.key = ""

	c.logger.Info("rom cache miss, building table",
		zap.String("key_prefix", keyPrefix(key)),
		zap.String("size", humanize.IBytes(uint64(c.params.Size))))

	start := time.Now()
	rom, err := BuildROM([]byte(key), c.params)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	c.logger.Info("rom built", zap.Duration("elapsed", elapsed))
	if c.BuildHook != nil {
		c.BuildHook(elapsed)
	}

	c.key = key
	c.rom = rom
	return rom, nil
}

func keyPrefix(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
