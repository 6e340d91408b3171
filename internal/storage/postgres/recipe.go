package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"recipe_importer/internal/domain"
)

const uniqueViolation = "23505"

type RecipeStore struct {
	db *sqlx.DB
}

func NewRecipeStore(db *sqlx.DB) *RecipeStore {
	return &RecipeStore{db: db}
}

func (s *RecipeStore) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &exists,
		"SELECT EXISTS (SELECT 1 FROM recipes WHERE slug = $1)", slug)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

// Insert writes a new recipe and returns its id. A recipe whose slug is
// already taken is not written and yields domain.ErrDuplicateSlug.
func (s *RecipeStore) Insert(ctx context.Context, recipe *domain.Recipe) (int64, error) {
	query := `
		INSERT INTO recipes (
			slug, name, description, source_name, external_id, image_url,
			prep_minutes, cook_minutes, servings, ingredients, instructions
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (slug) DO NOTHING
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		recipe.Slug,
		recipe.Name,
		recipe.Description,
		recipe.SourceName,
		recipe.ExternalID,
		recipe.ImageURL,
		recipe.PrepMinutes,
		recipe.CookMinutes,
		recipe.Servings,
		recipe.Ingredients,
		recipe.Instructions,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrDuplicateSlug
	}
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (s *RecipeStore) GetBySlug(ctx context.Context, slug string) (*domain.Recipe, error) {
	query := `
		SELECT id, slug, name, description, source_name, external_id, image_url,
			prep_minutes, cook_minutes, servings, ingredients, instructions, created_at
		FROM recipes
		WHERE slug = $1`

	var recipe domain.Recipe
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &recipe, query, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}

// ListMissingSlugs returns recipes stored without a slug, oldest first.
// A limit of 0 returns all of them.
func (s *RecipeStore) ListMissingSlugs(ctx context.Context, limit int) ([]domain.Recipe, error) {
	query := `
		SELECT id, COALESCE(slug, '') AS slug, name, source_name, external_id
		FROM recipes
		WHERE slug IS NULL OR slug = ''
		ORDER BY id
		LIMIT NULLIF($1, 0)`

	var recipes []domain.Recipe
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &recipes, query, limit); err != nil {
		return nil, fmt.Errorf("list recipes without slug: %w", err)
	}
	return recipes, nil
}

func (s *RecipeStore) UpdateSlug(ctx context.Context, id int64, slug string) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE recipes SET slug = $2 WHERE id = $1", id, slug)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrDuplicateSlug
		}
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
