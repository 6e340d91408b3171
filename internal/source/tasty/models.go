package tasty

// ListResponse is the payload of recipes/list.
type ListResponse struct {
	Count   int       `json:"count"`
	Results []Summary `json:"results"`
}

// Summary is one entry of a list page. Compilations carry a nested
// recipe list and are not importable on their own.
type Summary struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	Recipes []Summary `json:"recipes,omitempty"`
}

func (s Summary) IsCompilation() bool {
	return s.Recipes != nil
}

// Detail is the payload of recipes/get-more-info.
type Detail struct {
	ID              int64         `json:"id"`
	Name            string        `json:"name"`
	Slug            string        `json:"slug"`
	Description     *string       `json:"description"`
	ThumbnailURL    string        `json:"thumbnail_url"`
	PrepTimeMinutes *int          `json:"prep_time_minutes"`
	CookTimeMinutes *int          `json:"cook_time_minutes"`
	NumServings     int           `json:"num_servings"`
	Sections        []Section     `json:"sections"`
	Instructions    []Instruction `json:"instructions"`
	Tags            []APITag      `json:"tags"`
}

type Section struct {
	Name       *string     `json:"name"`
	Position   int         `json:"position"`
	Components []Component `json:"components"`
}

type Component struct {
	RawText  string `json:"raw_text"`
	Position int    `json:"position"`
}

type Instruction struct {
	DisplayText string `json:"display_text"`
	Position    int    `json:"position"`
}

type APITag struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}
