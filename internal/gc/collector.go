// Package gc removes intruder photos that no intruder attempt references,
// such as captures left behind when the process died before journaling.
package gc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/securelock/securelock/pkg/logging"
	"github.com/securelock/securelock/pkg/model"
	"github.com/securelock/securelock/pkg/uuidutil"
)

// photoPattern matches captures written by the camera providers.
const photoPattern = "intruder-*.jpg"

// RefSource lists the photo references that must be kept.
type RefSource interface {
	ImageRefs(ctx context.Context) ([]string, error)
}

// Collector handles media garbage collection.
type Collector struct {
	mediaDir   string
	refs       RefSource
	keepMinAge time.Duration
	clock      clockwork.Clock
	logger     *logging.Logger
}

// NewCollector creates a collector for mediaDir. A non-positive keepMinAge
// uses model.DefaultMediaKeepMinAge.
func NewCollector(mediaDir string, refs RefSource, keepMinAge time.Duration, clock clockwork.Clock, logger *logging.Logger) *Collector {
	if keepMinAge <= 0 {
		keepMinAge = model.DefaultMediaKeepMinAge
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Collector{
		mediaDir:   mediaDir,
		refs:       refs,
		keepMinAge: keepMinAge,
		clock:      clock,
		logger:     logger.WithFields(map[string]any{"component": "gc"}),
	}
}

// Plan lists the photos that would be deleted. Nothing is removed.
func (c *Collector) Plan(ctx context.Context) (*model.MediaGCPlan, error) {
	protected, err := c.computeProtectedSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute protected set: %w", err)
	}

	photos, err := filepath.Glob(filepath.Join(c.mediaDir, photoPattern))
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}

	now := c.clock.Now()
	plan := &model.MediaGCPlan{
		PlanID:     uuidutil.NewV4(),
		CreatedAt:  now.UTC(),
		KeepMinAge: c.keepMinAge,
	}
	for _, p := range photos {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		key, err := canonical(p)
		if err != nil {
			return nil, err
		}
		if protected[key] {
			plan.Referenced++
			continue
		}
		if now.Sub(info.ModTime()) < c.keepMinAge {
			plan.ProtectedByAge++
			continue
		}
		plan.ToDelete = append(plan.ToDelete, p)
		plan.DeletableBytes += info.Size()
	}
	plan.CandidateCount = len(plan.ToDelete)
	return plan, nil
}

// Run deletes the photos in plan after checking none of them became
// referenced since it was made. It returns how many were removed.
func (c *Collector) Run(ctx context.Context, plan *model.MediaGCPlan) (int, error) {
	protected, err := c.computeProtectedSet(ctx)
	if err != nil {
		return 0, fmt.Errorf("revalidate protected set: %w", err)
	}
	for _, p := range plan.ToDelete {
		key, err := canonical(p)
		if err != nil {
			return 0, err
		}
		if protected[key] {
			return 0, fmt.Errorf("plan mismatch: %s is now referenced", p)
		}
	}

	deleted := 0
	for _, p := range plan.ToDelete {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			c.logger.WarnErr("delete photo failed", err, map[string]any{"path": p})
			continue
		}
		deleted++
	}
	c.logger.Info("media gc complete", map[string]any{"plan_id": plan.PlanID, "deleted": deleted})
	return deleted, nil
}

func (c *Collector) computeProtectedSet(ctx context.Context) (map[string]bool, error) {
	refs, err := c.refs.ImageRefs(ctx)
	if err != nil {
		return nil, err
	}
	protected := make(map[string]bool, len(refs))
	for _, ref := range refs {
		key, err := canonical(ref)
		if err != nil {
			return nil, err
		}
		protected[key] = true
	}
	return protected, nil
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}
