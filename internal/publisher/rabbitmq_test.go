package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe_importer/internal/domain"
)

func TestNewRecipeMessage(t *testing.T) {
	now := time.Date(2025, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600))
	recipe := &domain.Recipe{
		ID:         7,
		Slug:       "tomato-soup",
		Name:       "Tomato Soup",
		SourceName: "tasty",
		ExternalID: "10",
		Tags:       []domain.Tag{{Name: "Soup"}, {Name: "Vegan"}},
	}

	msg := NewRecipeMessage(recipe, now)

	assert.Equal(t, EventRecipeImported, msg.Event)
	assert.Equal(t, int64(7), msg.RecipeID)
	assert.Equal(t, []string{"Soup", "Vegan"}, msg.Tags)
	assert.Equal(t, time.UTC, msg.Timestamp.Location())

	body, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"event": "recipe.imported",
		"recipe_id": 7,
		"slug": "tomato-soup",
		"name": "Tomato Soup",
		"source_name": "tasty",
		"external_id": "10",
		"tags": ["Soup", "Vegan"],
		"timestamp": "2025-03-01T12:00:00Z"
	}`, string(body))
}

func TestNewRecipeMessage_NoTags(t *testing.T) {
	body, err := json.Marshal(NewRecipeMessage(&domain.Recipe{Slug: "toast"}, time.Now()))
	require.NoError(t, err)
	assert.NotContains(t, string(body), "tags")
}
