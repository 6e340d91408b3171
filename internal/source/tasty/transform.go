package tasty

import (
	"sort"
	"strconv"
	"strings"

	"recipe_importer/internal/domain"
)

// placeholder Tasty uses for components without a printable line
const naComponent = "n/a"

// ToRecipe maps a detail payload to a recipe. It does no I/O.
func ToRecipe(d *Detail) *domain.Recipe {
	recipe := &domain.Recipe{
		Slug:         domain.Slugify(d.Name),
		Name:         strings.TrimSpace(d.Name),
		SourceName:   SourceName,
		ExternalID:   strconv.FormatInt(d.ID, 10),
		PrepMinutes:  positive(d.PrepTimeMinutes),
		CookMinutes:  positive(d.CookTimeMinutes),
		Ingredients:  ingredients(d.Sections),
		Instructions: instructions(d.Instructions),
	}

	if d.Description != nil {
		if desc := strings.TrimSpace(*d.Description); desc != "" {
			recipe.Description = &desc
		}
	}
	if d.ThumbnailURL != "" {
		url := d.ThumbnailURL
		recipe.ImageURL = &url
	}
	if d.NumServings > 0 {
		servings := d.NumServings
		recipe.Servings = &servings
	}

	for _, t := range d.Tags {
		name := t.DisplayName
		if name == "" {
			name = t.Name
		}
		recipe.Tags = append(recipe.Tags, domain.Tag{Name: name})
	}

	return recipe
}

func ingredients(sections []Section) domain.StringList {
	sorted := append([]Section(nil), sections...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	list := domain.StringList{}
	for _, sec := range sorted {
		comps := append([]Component(nil), sec.Components...)
		sort.SliceStable(comps, func(i, j int) bool { return comps[i].Position < comps[j].Position })

		for _, c := range comps {
			text := strings.TrimSpace(c.RawText)
			if text == "" || strings.EqualFold(text, naComponent) {
				continue
			}
			list = append(list, text)
		}
	}
	return list
}

func instructions(steps []Instruction) domain.StringList {
	sorted := append([]Instruction(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	list := domain.StringList{}
	for _, step := range sorted {
		if text := strings.TrimSpace(step.DisplayText); text != "" {
			list = append(list, text)
		}
	}
	return list
}

func positive(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	n := *v
	return &n
}
