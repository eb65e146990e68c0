// Package document holds the edited document and blueprint models the
// preview controller reads. The controller never mutates them; fresh copies
// come from a refetch.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Status is a document build status published by the host application.
type Status string

const (
	StatusNew      Status = "new"
	StatusBuilding Status = "building"
	StatusBuilt    Status = "built"
	StatusUpdated  Status = "updated"
	StatusError    Status = "error"
)

// PreviewMode selects how a blueprint's preview is produced.
type PreviewMode string

const (
	PreviewLive        PreviewMode = "live"
	PreviewServerBuilt PreviewMode = "server-built"
	PreviewNone        PreviewMode = "none"
)

// TypeGraphic is the document type whose server-built preview is embedded.
const TypeGraphic = "graphic"

// DefaultThemes is used when a blueprint does not list its themes.
var DefaultThemes = []string{"generic"}

// Document is the entity being edited.
type Document struct {
	ID               string         `json:"id,omitempty"`
	Type             string         `json:"type,omitempty"`
	Slug             string         `json:"slug,omitempty"`
	SlugSansTheme    string         `json:"slug_sans_theme,omitempty"`
	Theme            string         `json:"theme,omitempty"`
	Status           Status         `json:"status,omitempty"`
	Data             map[string]any `json:"data,omitempty"`
	BuildData        map[string]any `json:"build_data,omitempty"`
	HasInitialBuild  bool           `json:"has_initial_build"`
	PreviewURL       string         `json:"preview_url,omitempty"`
	BlueprintID      string         `json:"blueprint_id,omitempty"`
	BlueprintVersion string         `json:"blueprint_version,omitempty"`
}

// UnmarshalJSON accepts id and blueprint_id as JSON numbers or strings.
func (d *Document) UnmarshalJSON(b []byte) error {
	type plain Document
	aux := struct {
		*plain
		ID          flexibleID `json:"id,omitempty"`
		BlueprintID flexibleID `json:"blueprint_id,omitempty"`
	}{plain: (*plain)(d), ID: flexibleID(d.ID), BlueprintID: flexibleID(d.BlueprintID)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	d.ID, d.BlueprintID = string(aux.ID), string(aux.BlueprintID)
	return nil
}

// IsNew reports whether the document has never been saved.
func (d *Document) IsNew() bool {
	return d.ID == ""
}

// HasStatus reports whether the document is currently in status s.
func (d *Document) HasStatus(s Status) bool {
	return d.Status == s
}

// BuildDataEmpty reports whether every build data value is unset.
func (d *Document) BuildDataEmpty() bool {
	for _, v := range d.BuildData {
		if v != nil {
			return false
		}
	}
	return true
}

// FormConfig is the blueprint's form definition.
type FormConfig struct {
	Schema json.RawMessage `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Blueprint is the template definition governing a document.
type Blueprint struct {
	ID                  string      `json:"id"`
	Slug                string      `json:"slug"`
	Title               string      `json:"title,omitempty"`
	Description         string      `json:"description,omitempty"`
	Version             string      `json:"version"`
	PreviewMode         PreviewMode `json:"preview_mode"`
	Themes              []string    `json:"themes,omitempty"`
	Form                *FormConfig `json:"form,omitempty"`
	SpreadsheetTemplate bool        `json:"spreadsheet_template,omitempty"`
}

// UnmarshalJSON accepts id as a JSON number or string.
func (b *Blueprint) UnmarshalJSON(data []byte) error {
	type plain Blueprint
	aux := struct {
		*plain
		ID flexibleID `json:"id"`
	}{plain: (*plain)(b), ID: flexibleID(b.ID)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b.ID = string(aux.ID)
	return nil
}

// flexibleID is an identifier the host serves either as a number or a string.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a number or a string: %w", err)
	}
	*id = flexibleID(n.String())
	return nil
}

// HasPreviewMode reports whether the blueprint previews in mode m.
func (b *Blueprint) HasPreviewMode(m PreviewMode) bool {
	return b.PreviewMode == m
}

// ConfiguredThemes returns the blueprint themes, DefaultThemes when unset.
func (b *Blueprint) ConfiguredThemes() []string {
	if len(b.Themes) == 0 {
		return DefaultThemes
	}
	return b.Themes
}

// Theme is an entry of the host's theme catalog.
type Theme struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// AllowedThemes filters the catalog down to the configured themes. A
// configuration of exactly ["generic"] allows every theme.
func AllowedThemes(catalog []Theme, configured []string) []Theme {
	if len(configured) == 0 || (len(configured) == 1 && configured[0] == "generic") {
		return catalog
	}

	allowed := make(map[string]bool, len(configured))
	for _, v := range configured {
		allowed[v] = true
	}

	var out []Theme
	for _, t := range catalog {
		if allowed[t.Value] {
			out = append(out, t)
		}
	}
	return out
}

// ThemeValues returns the values of themes in order.
func ThemeValues(themes []Theme) []string {
	values := make([]string, 0, len(themes))
	for _, t := range themes {
		values = append(values, t.Value)
	}
	return values
}

// RendererURL builds the live renderer location for a blueprint version and
// theme. The #new fragment marks a document without an initial build.
func RendererURL(mediaBaseURL, version, theme string, unpopulated bool) string {
	u := strings.TrimRight(mediaBaseURL, "/") + "/" + version + "-" + theme + "/preview"
	if unpopulated {
		u += "#new"
	}
	return u
}

// Topic is the event bus topic carrying status changes for a document.
func Topic(entity, documentID string) string {
	return "change:" + entity + ":" + documentID
}
