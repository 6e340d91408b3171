package domain

import "time"

type Recipe struct {
	ID           int64      `db:"id"`
	Slug         string     `db:"slug" validate:"required"`
	Name         string     `db:"name" validate:"required"`
	Description  *string    `db:"description"`
	SourceName   string     `db:"source_name"` // importer that created the row, e.g. "tasty"
	ExternalID   string     `db:"external_id"`
	ImageURL     *string    `db:"image_url"`
	PrepMinutes  *int       `db:"prep_minutes"`
	CookMinutes  *int       `db:"cook_minutes"`
	Servings     *int       `db:"servings"`
	Ingredients  StringList `db:"ingredients" validate:"min=1,dive,required"`
	Instructions StringList `db:"instructions" validate:"min=1,dive,required"`
	Tags         []Tag      `db:"-"`
	CreatedAt    time.Time  `db:"created_at"`
}

type Tag struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Candidate is a discovered, not yet processed item of an external source.
type Candidate struct {
	ExternalID string
	Name       string
}

// DiscoverOptions narrows the discovery phase of a source.
type DiscoverOptions struct {
	MaxItems int    // 0 means no limit
	Tag      string // source-side tag or category filter
}
