package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"recipe_importer/internal/domain"
)

type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

// UpsertBatch makes sure every tag name exists and returns the ids of the
// distinct names, in first-seen order.
func (s *TagStore) UpsertBatch(ctx context.Context, tags []domain.Tag) ([]int64, error) {
	names := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		name := strings.TrimSpace(tag.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO tags (name) VALUES ")
	valueArgs := make([]interface{}, 0, len(names))

	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(")")
		valueArgs = append(valueArgs, name)
	}
	// DO UPDATE instead of DO NOTHING so existing rows are returned too.
	sb.WriteString(" ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id, name")

	var rows []domain.Tag
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, sb.String(), valueArgs...); err != nil {
		return nil, err
	}

	byName := make(map[string]int64, len(rows))
	for _, r := range rows {
		byName[r.Name] = r.ID
	}

	ids := make([]int64, 0, len(names))
	for _, name := range names {
		ids = append(ids, byName[name])
	}
	return ids, nil
}

func (s *TagStore) LinkToRecipe(ctx context.Context, recipeID int64, tagIDs []int64) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"DELETE FROM recipe_tags WHERE recipe_id = $1",
		recipeID,
	)
	if err != nil {
		return err
	}

	if len(tagIDs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO recipe_tags (recipe_id, tag_id) VALUES ")
	valueArgs := make([]interface{}, 0, len(tagIDs)+1)
	valueArgs = append(valueArgs, recipeID)

	for i, tagID := range tagIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($1, $")
		sb.WriteString(strconv.Itoa(i + 2))
		sb.WriteString(")")
		valueArgs = append(valueArgs, tagID)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	_, err = exec.ExecContext(ctx, sb.String(), valueArgs...)
	return err
}

func (s *TagStore) GetByRecipeID(ctx context.Context, recipeID int64) ([]domain.Tag, error) {
	query := `
		SELECT t.id, t.name
		FROM tags t
		INNER JOIN recipe_tags rt ON rt.tag_id = t.id
		WHERE rt.recipe_id = $1
		ORDER BY t.name`

	var tags []domain.Tag
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &tags, query, recipeID)
	return tags, err
}
