package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/google/jsonschema-go/jsonschema"

	"go-live-preview/internal/document"
)

// ErrNoForm is returned for blueprints without a form definition.
var ErrNoForm = errors.New("blueprint does not have a form")

const maxSlugLength = 60

var slugPattern = regexp.MustCompile(`^[0-9a-z\-_]{0,60}$`)

// socialChars is the per-theme share-link overhead subtracted from the
// social text budget.
var socialChars = map[string]int{
	"sbnation": 8,
	"theverge": 5,
	"polygon":  7,
	"racked":   6,
	"eater":    5,
	"vox":      9,
	"custom":   0,
}

// SocialTextLimit returns the maximum social share text length for theme.
func SocialTextLimit(theme string) (int, bool) {
	n, ok := socialChars[theme]
	if !ok {
		return 0, false
	}
	return 140 - (26 + n), true
}

// SchemaForm is a structured form validated against the blueprint schema.
// It is safe for concurrent use: the host writes fields while the
// controller reads them.
type SchemaForm struct {
	mu       sync.Mutex
	resolved *jsonschema.Resolved
	themes   []string
	values   map[string]any
	errs     []string
}

// NewSchemaForm builds the form for bp. The base fields title, theme, slug
// and tweet_text are merged under the blueprint's own properties. data
// populates the form; a theme outside the allowlist is replaced with the
// first allowed theme.
func NewSchemaForm(bp *document.Blueprint, catalog []document.Theme, data map[string]any) (*SchemaForm, error) {
	if bp.Form == nil {
		return nil, ErrNoForm
	}

	themes := document.ThemeValues(document.AllowedThemes(catalog, bp.ConfiguredThemes()))
	schema, err := buildSchema(bp, themes)
	if err != nil {
		return nil, err
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve form schema: %w", err)
	}

	values := make(map[string]any, len(data))
	for k, v := range data {
		values[k] = v
	}
	if len(themes) > 0 {
		if theme, _ := values["theme"].(string); !slices.Contains(themes, theme) {
			values["theme"] = themes[0]
		}
	}

	return &SchemaForm{
		resolved: resolved,
		themes:   themes,
		values:   values,
	}, nil
}

func buildSchema(bp *document.Blueprint, themes []string) (*jsonschema.Schema, error) {
	enum := make([]any, 0, len(themes))
	for _, t := range themes {
		enum = append(enum, t)
	}

	props := map[string]*jsonschema.Schema{
		"title":      {Type: "string", Title: "Title"},
		"theme":      {Type: "string", Title: "Theme"},
		"slug":       {Type: "string", Title: "Slug"},
		"tweet_text": {Type: "string", Title: "Social share text"},
	}
	if len(enum) > 0 {
		props["theme"].Enum = enum
	}
	required := []string{"title", "theme"}

	if len(bp.Form.Schema) > 0 {
		custom, err := parseSchema(bp.Form.Schema)
		if err != nil {
			return nil, fmt.Errorf("parse blueprint form schema: %w", err)
		}
		for name, prop := range custom.Properties {
			props[name] = prop
		}
		for _, name := range custom.Required {
			if !slices.Contains(required, name) {
				required = append(required, name)
			}
		}
	}

	return &jsonschema.Schema{
		Type:        "object",
		Title:       bp.Title,
		Description: bp.Description,
		Properties:  props,
		Required:    required,
	}, nil
}

// parseSchema decodes a blueprint schema. Blueprints written for Alpaca mark
// required properties with a boolean on the property itself; those are moved
// into the enclosing object's required list first.
func parseSchema(raw []byte) (*jsonschema.Schema, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	liftRequired(tree)

	b, err := json.Marshal(tree)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func liftRequired(node map[string]any) {
	if _, ok := node["required"].(bool); ok {
		delete(node, "required")
	}

	if props, ok := node["properties"].(map[string]any); ok {
		var lifted []string
		for name, p := range props {
			prop, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if req, ok := prop["required"].(bool); ok && req {
				lifted = append(lifted, name)
			}
			liftRequired(prop)
		}
		if len(lifted) > 0 {
			sort.Strings(lifted)
			existing, _ := node["required"].([]any)
			for _, name := range lifted {
				if !slices.Contains(existing, any(name)) {
					existing = append(existing, name)
				}
			}
			node["required"] = existing
		}
	}

	if items, ok := node["items"].(map[string]any); ok {
		liftRequired(items)
	}
}

// Themes returns the allowed theme values.
func (f *SchemaForm) Themes() []string {
	return f.themes
}

// Values returns a copy of the current values.
func (f *SchemaForm) Values() (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]any, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

// SetField sets one field.
func (f *SchemaForm) SetField(name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

// Replace swaps every value at once.
func (f *SchemaForm) Replace(values map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.values = make(map[string]any, len(values))
	for k, v := range values {
		f.values[k] = v
	}
}

// Validate runs schema validation plus the slug and social text rules.
// Errors from the last run are kept for inline display.
func (f *SchemaForm) Validate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []string

	if slug, ok := f.values["slug"].(string); ok && !slugPattern.MatchString(slug) {
		if len(slug) > maxSlugLength && slugPattern.MatchString(slug[:maxSlugLength]) {
			f.values["slug"] = slug[:maxSlugLength]
		} else {
			errs = append(errs, "slug: Must contain fewer than 60 numbers, lowercase letters, hyphens, and underscores.")
		}
	}

	if text, ok := f.values["tweet_text"].(string); ok {
		theme, _ := f.values["theme"].(string)
		if limit, known := SocialTextLimit(theme); known && utf8.RuneCountInString(text) > limit {
			errs = append(errs, fmt.Sprintf("tweet_text: must be at most %d characters", limit))
		}
	}

	instance, err := normalize(f.values)
	if err != nil {
		errs = append(errs, err.Error())
	} else if err := f.resolved.Validate(instance); err != nil {
		errs = append(errs, err.Error())
	}

	f.errs = errs
	return len(errs) == 0
}

// Errors returns the messages of the last Validate call.
func (f *SchemaForm) Errors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.errs)
}

// normalize converts Go values into their JSON decoded form.
func normalize(values map[string]any) (map[string]any, error) {
	b, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
