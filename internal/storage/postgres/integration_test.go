//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"recipe_importer/internal/domain"
	"recipe_importer/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	connStr   string
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.connStr = connStr

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	s.Require().NoError(Migrate(s.db))
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM recipe_tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM recipes")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM import_checkpoints")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func newRecipe(slug string) *domain.Recipe {
	return &domain.Recipe{
		Slug:         slug,
		Name:         "Tomato Soup",
		Description:  utils.Ptr("Classic."),
		SourceName:   "tasty",
		ExternalID:   "10",
		PrepMinutes:  utils.Ptr(10),
		Servings:     utils.Ptr(4),
		Ingredients:  domain.StringList{"4 tomatoes", "1 onion"},
		Instructions: domain.StringList{"Chop.", "Simmer."},
	}
}

func (s *PostgresIntegrationSuite) TestMigrate_IsIdempotent() {
	s.NoError(Migrate(s.db))
}

func (s *PostgresIntegrationSuite) TestRecipeStore_InsertAndGet() {
	store := NewRecipeStore(s.db)

	id, err := store.Insert(s.ctx, newRecipe("tomato-soup"))
	s.NoError(err)
	s.Greater(id, int64(0))

	exists, err := store.ExistsBySlug(s.ctx, "tomato-soup")
	s.NoError(err)
	s.True(exists)

	got, err := store.GetBySlug(s.ctx, "tomato-soup")
	s.NoError(err)
	s.Equal(id, got.ID)
	s.Equal(domain.StringList{"4 tomatoes", "1 onion"}, got.Ingredients)
	s.Equal(4, *got.Servings)
	s.Nil(got.CookMinutes)
}

func (s *PostgresIntegrationSuite) TestRecipeStore_InsertDuplicateSlug() {
	store := NewRecipeStore(s.db)

	_, err := store.Insert(s.ctx, newRecipe("tomato-soup"))
	s.NoError(err)

	dup := newRecipe("tomato-soup")
	dup.ExternalID = "11"
	_, err = store.Insert(s.ctx, dup)
	s.ErrorIs(err, domain.ErrDuplicateSlug)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM recipes WHERE slug = $1", "tomato-soup"))
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestRecipeStore_MissingSlugsAndUpdate() {
	store := NewRecipeStore(s.db)

	_, err := s.db.ExecContext(s.ctx, `INSERT INTO recipes (name) VALUES ('Pad Thai'), ('Pad Thai'), ('Ramen')`)
	s.NoError(err)
	_, err = store.Insert(s.ctx, newRecipe("tomato-soup"))
	s.NoError(err)

	missing, err := store.ListMissingSlugs(s.ctx, 0)
	s.NoError(err)
	s.Len(missing, 3)
	s.Equal("Pad Thai", missing[0].Name)

	limited, err := store.ListMissingSlugs(s.ctx, 1)
	s.NoError(err)
	s.Len(limited, 1)

	s.NoError(store.UpdateSlug(s.ctx, missing[0].ID, "pad-thai"))
	s.ErrorIs(store.UpdateSlug(s.ctx, missing[1].ID, "pad-thai"), domain.ErrDuplicateSlug)
	s.ErrorIs(store.UpdateSlug(s.ctx, 999999, "nope"), domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestTagStore_UpsertAndLink() {
	recipes := NewRecipeStore(s.db)
	tags := NewTagStore(s.db)

	recipeID, err := recipes.Insert(s.ctx, newRecipe("tomato-soup"))
	s.NoError(err)

	ids, err := tags.UpsertBatch(s.ctx, []domain.Tag{{Name: "Vegan"}, {Name: "Soup"}, {Name: "Vegan"}})
	s.NoError(err)
	s.Len(ids, 2)

	again, err := tags.UpsertBatch(s.ctx, []domain.Tag{{Name: "Soup"}})
	s.NoError(err)
	s.Equal([]int64{ids[1]}, again)

	s.NoError(tags.LinkToRecipe(s.ctx, recipeID, ids))

	linked, err := tags.GetByRecipeID(s.ctx, recipeID)
	s.NoError(err)
	s.Equal([]domain.Tag{{ID: ids[1], Name: "Soup"}, {ID: ids[0], Name: "Vegan"}}, linked)

	s.NoError(tags.LinkToRecipe(s.ctx, recipeID, ids[:1]))
	linked, err = tags.GetByRecipeID(s.ctx, recipeID)
	s.NoError(err)
	s.Len(linked, 1)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	recipes := NewRecipeStore(s.db)
	tags := NewTagStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		id, err := recipes.Insert(ctx, newRecipe("tx-soup"))
		if err != nil {
			return err
		}
		tagIDs, err := tags.UpsertBatch(ctx, []domain.Tag{{Name: "Soup"}})
		if err != nil {
			return err
		}
		return tags.LinkToRecipe(ctx, id, tagIDs)
	})
	s.NoError(err)

	exists, err := recipes.ExistsBySlug(s.ctx, "tx-soup")
	s.NoError(err)
	s.True(exists)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	recipes := NewRecipeStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := recipes.Insert(ctx, newRecipe("rolled-back")); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	exists, err := recipes.ExistsBySlug(s.ctx, "rolled-back")
	s.NoError(err)
	s.False(exists)
}

func (s *PostgresIntegrationSuite) TestCheckpointStore_RoundTrip() {
	store, err := NewCheckpointStore(s.ctx, s.connStr, "")
	s.Require().NoError(err)
	defer store.Close()

	s.NoError(store.InitSchema(s.ctx))

	_, err = store.Get(s.ctx, "tasty")
	s.ErrorIs(err, domain.ErrCheckpointNotFound)

	cp := &domain.Checkpoint{
		SourceName:    "tasty",
		RunID:         "run-1",
		ProcessedIDs:  []string{"1", "2"},
		ImportedCount: 1,
		FailedCount:   1,
		Failures:      []domain.Failure{{ExternalID: "2", Reason: "not found"}},
		UpdatedAt:     time.Now(),
	}
	s.NoError(store.Save(s.ctx, cp))

	cp.Complete = true
	s.NoError(store.Save(s.ctx, cp))

	loaded, err := store.Get(s.ctx, "tasty")
	s.NoError(err)
	s.True(loaded.Complete)
	s.Equal(cp.ProcessedIDs, loaded.ProcessedIDs)
	s.Equal(cp.Failures, loaded.Failures)
}
