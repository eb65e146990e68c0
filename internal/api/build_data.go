package api

import (
	"context"
	"encoding/json"
)

const (
	fieldTheme               = "theme"
	fieldSpreadsheetTemplate = "spreadsheet_template"
	fieldGoogleDocURL        = "google_doc_url"
)

// BuildData is a renderer-ready payload returned by the build data endpoint.
type BuildData struct {
	// Payload is forwarded to the renderer.
	Payload map[string]any
	// Theme is the computed theme; HasTheme is false when the response
	// did not carry one.
	Theme    string
	HasTheme bool
	// GoogleDocURL is set when the response carried spreadsheet template
	// data. The template itself is stripped from Payload.
	GoogleDocURL   string
	HasSpreadsheet bool
}

// Encode serializes the payload for an updateData message.
func (b *BuildData) Encode() (string, error) {
	raw, err := json.Marshal(b.Payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// FetchBuildData POSTs form values to {documentURL}/preview_build_data and
// returns the transformed payload. forced appends force_update=true.
func (c *Client) FetchBuildData(ctx context.Context, documentID string, values map[string]any, forced bool) (*BuildData, error) {
	u := c.DocumentURL(documentID) + "/preview_build_data"
	if forced {
		u += "?" + forceUpdateQuery
	}

	var payload map[string]any
	if err := c.postJSON(ctx, u, values, &payload); err != nil {
		return nil, err
	}
	return newBuildData(payload), nil
}

func newBuildData(payload map[string]any) *BuildData {
	if payload == nil {
		payload = map[string]any{}
	}

	bd := &BuildData{Payload: payload}
	if theme, ok := payload[fieldTheme].(string); ok {
		bd.Theme = theme
		bd.HasTheme = true
	}
	if tmpl, ok := payload[fieldSpreadsheetTemplate]; ok && tmpl != nil {
		delete(payload, fieldSpreadsheetTemplate)
		bd.HasSpreadsheet = true
		bd.GoogleDocURL, _ = payload[fieldGoogleDocURL].(string)
	}
	return bd
}
