package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"recipe_importer/internal/config"
	"recipe_importer/internal/domain"
)

const (
	BackfillSourceName = "slug-backfill"

	maxSlugSuffix = 100
)

var errNoFreeSlug = errors.New("no free slug")

// SlugBackfillService assigns slugs to recipes stored before slugs were
// required. Progress is checkpointed like an import, keyed by recipe id.
type SlugBackfillService struct {
	recipes RecipeStore
	tracker Tracker
	logger  *slog.Logger
	config  config.BackfillConfig
}

func NewSlugBackfillService(
	recipes RecipeStore,
	tracker Tracker,
	logger *slog.Logger,
	cfg config.BackfillConfig,
) *SlugBackfillService {
	return &SlugBackfillService{
		recipes: recipes,
		tracker: tracker,
		logger:  logger.With("source", BackfillSourceName),
		config:  cfg,
	}
}

func (s *SlugBackfillService) Run(ctx context.Context) (*domain.BackfillStats, error) {
	startTime := time.Now()
	s.tracker.Load(ctx, BackfillSourceName)

	recipes, err := s.recipes.ListMissingSlugs(ctx, s.config.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("list recipes without slug: %w", err)
	}

	stats := &domain.BackfillStats{Candidates: len(recipes)}
	s.tracker.SetTotal(len(recipes))
	s.logger.Info("starting slug backfill", "candidates", len(recipes))

	finalCtx := context.WithoutCancel(ctx)
	interrupted := false

	for i := range recipes {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		recipe := &recipes[i]
		key := strconv.FormatInt(recipe.ID, 10)
		if s.tracker.ShouldSkip(key) {
			continue
		}

		s.backfillOne(finalCtx, key, recipe, stats)
		_ = s.tracker.Persist(finalCtx)
	}

	if !interrupted {
		_ = s.tracker.MarkComplete(finalCtx)
	}

	stats.Duration = time.Since(startTime)
	s.logger.Info("slug backfill finished",
		"status", s.tracker.StatusString(),
		"updated", stats.Updated,
		"renamed", stats.Renamed,
		"failed", stats.Failed,
		"deferred", stats.Deferred,
		"interrupted", interrupted,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SlugBackfillService) backfillOne(ctx context.Context, key string, recipe *domain.Recipe, stats *domain.BackfillStats) {
	logger := s.logger.With("recipe_id", recipe.ID, "name", recipe.Name)

	base := domain.Slugify(recipe.Name)
	if base == "" {
		logger.Warn("name yields an empty slug")
		s.fail(key, "empty slug", stats)
		return
	}

	slug, err := s.uniqueSlug(ctx, base)
	switch {
	case errors.Is(err, errNoFreeSlug):
		logger.Warn("pick slug failed", "error", err)
		s.fail(key, err.Error(), stats)
		return
	case err != nil:
		logger.Warn("slug lookup failed, leaving recipe for the next run", "error", err)
		stats.Deferred++
		return
	}

	if err := s.recipes.UpdateSlug(ctx, recipe.ID, slug); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("recipe vanished before update", "slug", slug)
			s.fail(key, fmt.Sprintf("update slug: %v", err), stats)
			return
		}
		// The row still has no slug, so it is listed again on the next run.
		logger.Error("update slug failed, leaving recipe for the next run", "slug", slug, "error", err)
		stats.Deferred++
		return
	}

	if s.tracker.MarkImported(key) {
		stats.Updated++
		if slug != base {
			stats.Renamed++
		}
	}
	logger.Debug("slug assigned", "slug", slug)
}

// uniqueSlug returns base, or base-N for the smallest free N starting at 2.
func (s *SlugBackfillService) uniqueSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for n := 2; n <= maxSlugSuffix+1; n++ {
		exists, err := s.recipes.ExistsBySlug(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return "", fmt.Errorf("%w for %q after %d attempts", errNoFreeSlug, base, maxSlugSuffix)
}

func (s *SlugBackfillService) fail(key, reason string, stats *domain.BackfillStats) {
	if s.tracker.MarkFailed(key, reason) {
		stats.Failed++
	}
}
