package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"recipe_importer/internal/domain"
)

type RecipeStore interface {
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	Insert(ctx context.Context, recipe *domain.Recipe) (int64, error)
	ListMissingSlugs(ctx context.Context, limit int) ([]domain.Recipe, error)
	UpdateSlug(ctx context.Context, id int64, slug string) error
}

type TagStore interface {
	UpsertBatch(ctx context.Context, tags []domain.Tag) ([]int64, error)
	LinkToRecipe(ctx context.Context, recipeID int64, tagIDs []int64) error
}

type Source interface {
	Name() string
	Discover(ctx context.Context, opts domain.DiscoverOptions) ([]domain.Candidate, error)
	FetchRecipe(ctx context.Context, externalID string) (*domain.Recipe, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, recipe *domain.Recipe) error
	Close() error
}

// Tracker is the checkpoint bookkeeping the loops rely on.
type Tracker interface {
	Load(ctx context.Context, sourceName string) *domain.Checkpoint
	SetTotal(n int)
	ShouldSkip(externalID string) bool
	MarkImported(externalID string) bool
	MarkSkipped(externalID string) bool
	MarkFailed(externalID, reason string) bool
	Persist(ctx context.Context) error
	MarkComplete(ctx context.Context) error
	StatusString() string
	Checkpoint() *domain.Checkpoint
	Degraded() bool
	Cleanup()
}
