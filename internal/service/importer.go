package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"recipe_importer/internal/config"
	"recipe_importer/internal/domain"
)

const (
	reasonNotFound  = "not found"
	reasonEmptySlug = "validation: slug is empty"
)

type ImportService struct {
	source    Source
	recipes   RecipeStore
	tags      TagStore
	txManager TransactionManager
	publisher Publisher
	tracker   Tracker
	logger    *slog.Logger
	config    config.ImportConfig
}

// NewImportService wires the import loop. publisher may be nil.
func NewImportService(
	source Source,
	recipes RecipeStore,
	tags TagStore,
	txManager TransactionManager,
	publisher Publisher,
	tracker Tracker,
	logger *slog.Logger,
	cfg config.ImportConfig,
) *ImportService {
	return &ImportService{
		source:    source,
		recipes:   recipes,
		tags:      tags,
		txManager: txManager,
		publisher: publisher,
		tracker:   tracker,
		logger:    logger.With("source", source.Name()),
		config:    cfg,
	}
}

// Run discovers candidates and imports each of them at most once. Per-item
// problems are recorded on the tracker and never returned; the error is
// reserved for a discovery that produced nothing to work on.
func (s *ImportService) Run(ctx context.Context) (*domain.ImportStats, error) {
	startTime := time.Now()
	sourceName := s.source.Name()

	cp := s.tracker.Load(ctx, sourceName)
	s.logger.Info("starting import",
		"run_id", cp.RunID,
		"mode", s.config.Mode,
		"limit", s.config.Limit(),
		"tag", s.config.Tag,
		"already_processed", len(cp.ProcessedIDs),
	)

	stats := &domain.ImportStats{SourceName: sourceName}

	candidates, err := s.source.Discover(ctx, domain.DiscoverOptions{
		MaxItems: s.config.Limit(),
		Tag:      s.config.Tag,
	})
	if err != nil {
		if len(candidates) == 0 {
			return nil, fmt.Errorf("discover candidates: %w", err)
		}
		stats.PartialDiscovery = true
		s.logger.Warn("discovery stopped early, continuing with partial list",
			"candidates", len(candidates),
			"error", err,
		)
	}

	stats.Discovered = len(candidates)
	s.tracker.SetTotal(len(candidates))
	s.logger.Info("discovered candidates", "count", len(candidates))

	visited := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			stats.Interrupted = true
			break
		}

		if s.tracker.ShouldSkip(c.ExternalID) {
			stats.AlreadyProcessed++
			visited++
			continue
		}

		if !s.processItem(ctx, c, stats) {
			stats.Interrupted = true
			break
		}
		visited++

		// Checkpoint writes outlive an interrupt so the finished item is kept.
		_ = s.tracker.Persist(context.WithoutCancel(ctx))

		if s.config.LogEvery > 0 && visited%s.config.LogEvery == 0 {
			s.logger.Info("progress", "status", s.tracker.StatusString())
		}
	}

	finalCtx := context.WithoutCancel(ctx)
	if visited == len(candidates) && !stats.PartialDiscovery {
		_ = s.tracker.MarkComplete(finalCtx)
	} else {
		_ = s.tracker.Persist(finalCtx)
	}

	stats.Degraded = s.tracker.Degraded()
	stats.Duration = time.Since(startTime)

	s.logger.Info("import finished",
		"status", s.tracker.StatusString(),
		"imported", stats.Imported,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"already_processed", stats.AlreadyProcessed,
		"published", stats.Published,
		"publish_errors", stats.PublishErrors,
		"success_rate", fmt.Sprintf("%.1f%%", stats.SuccessRate()),
		"interrupted", stats.Interrupted,
		"degraded", stats.Degraded,
		"duration", stats.Duration,
	)

	return stats, nil
}

// processItem decides the outcome of one candidate. It returns false only
// when the run was interrupted before the item could be decided.
func (s *ImportService) processItem(ctx context.Context, c domain.Candidate, stats *domain.ImportStats) (decided bool) {
	logger := s.logger.With("external_id", c.ExternalID, "name", c.Name)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing item", "panic", r)
			s.fail(c.ExternalID, fmt.Sprintf("panic: %v", r), stats)
			decided = true
		}
	}()

	recipe, err := s.source.FetchRecipe(ctx, c.ExternalID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Warn("recipe not found at source")
		s.fail(c.ExternalID, reasonNotFound, stats)
		return true
	case err != nil && ctx.Err() != nil:
		logger.Info("fetch interrupted")
		return false
	case err != nil:
		logger.Warn("fetch recipe failed", "error", err)
		s.fail(c.ExternalID, fmt.Sprintf("fetch: %v", err), stats)
		return true
	}

	// Once the detail is in hand the item is finished even if an interrupt
	// arrives, so the write is never left half done.
	ctx = context.WithoutCancel(ctx)

	// An empty slug would match legacy rows that never got one.
	if recipe.Slug == "" {
		logger.Warn("recipe rejected", "reason", reasonEmptySlug)
		s.fail(c.ExternalID, reasonEmptySlug, stats)
		return true
	}

	exists, err := s.recipes.ExistsBySlug(ctx, recipe.Slug)
	if err != nil {
		logger.Warn("slug lookup failed", "slug", recipe.Slug, "error", err)
		s.fail(c.ExternalID, fmt.Sprintf("lookup slug: %v", err), stats)
		return true
	}
	if exists {
		logger.Debug("recipe already present", "slug", recipe.Slug)
		s.skip(c.ExternalID, stats)
		return true
	}

	if reason := validateRecipe(recipe); reason != "" {
		logger.Warn("recipe rejected", "reason", reason)
		s.fail(c.ExternalID, reason, stats)
		return true
	}

	if err := s.saveRecipe(ctx, recipe); err != nil {
		if errors.Is(err, domain.ErrDuplicateSlug) {
			logger.Debug("slug taken concurrently", "slug", recipe.Slug)
			s.skip(c.ExternalID, stats)
			return true
		}
		logger.Error("save recipe failed", "slug", recipe.Slug, "error", err)
		s.fail(c.ExternalID, err.Error(), stats)
		return true
	}

	if s.tracker.MarkImported(c.ExternalID) {
		stats.Imported++
	}
	logger.Debug("recipe imported", "id", recipe.ID, "slug", recipe.Slug)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, recipe); err != nil {
			logger.Warn("publish failed", "error", err)
			stats.PublishErrors++
		} else {
			stats.Published++
		}
	}

	return true
}

func (s *ImportService) saveRecipe(ctx context.Context, recipe *domain.Recipe) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		recipeID, err := s.recipes.Insert(txCtx, recipe)
		if err != nil {
			return fmt.Errorf("insert recipe: %w", err)
		}
		recipe.ID = recipeID

		if len(recipe.Tags) > 0 {
			tagIDs, err := s.tags.UpsertBatch(txCtx, recipe.Tags)
			if err != nil {
				return fmt.Errorf("upsert tags: %w", err)
			}

			if err := s.tags.LinkToRecipe(txCtx, recipeID, tagIDs); err != nil {
				return fmt.Errorf("link tags: %w", err)
			}
		}

		return nil
	})
}

func (s *ImportService) skip(externalID string, stats *domain.ImportStats) {
	if s.tracker.MarkSkipped(externalID) {
		stats.Skipped++
	}
}

func (s *ImportService) fail(externalID, reason string, stats *domain.ImportStats) {
	if s.tracker.MarkFailed(externalID, reason) {
		stats.Failed++
	}
}
