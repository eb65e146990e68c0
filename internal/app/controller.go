// Package app wires the preview synchronization pieces to the edit view
// lifecycle.
package app

import (
	"context"
	"log/slog"
	"time"

	"go-live-preview/internal/api"
	"go-live-preview/internal/bus"
	"go-live-preview/internal/channel"
	"go-live-preview/internal/detect"
	"go-live-preview/internal/document"
	"go-live-preview/internal/form"
	"go-live-preview/internal/loop"
	"go-live-preview/internal/notify"
	"go-live-preview/internal/status"
	"go-live-preview/internal/theme"
)

const (
	supportMessage  = "There was a problem updating the preview, please contact support"
	loadFailMessage = "The preview could not be loaded"
	buildingMessage = "Building... This might take a moment."
	builtMessage    = "Building complete"

	buildingAlertDuration = 16 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

// API is the slice of the document service the controller calls.
type API interface {
	FetchBuildData(ctx context.Context, documentID string, values map[string]any, forced bool) (*api.BuildData, error)
	FetchDocument(ctx context.Context, id string) (*document.Document, error)
}

// View re-renders the edit view for a refetched document.
type View interface {
	Render(doc *document.Document) error
}

type Options struct {
	Document  *document.Document
	Blueprint *document.Blueprint
	Form      form.Source

	API       API
	Transport channel.Transport
	Bus       bus.Bus
	Notifier  notify.Notifier
	View      View

	MediaBaseURL string
	// ContainerID defaults to {blueprint slug}__graphic.
	ContainerID string
	Entity      string
	Debounce    time.Duration
	// RequestTimeout bounds each build data and refetch call.
	RequestTimeout time.Duration
	// DiscardStale drops build data responses older than the last one
	// applied. Off by default: responses apply in arrival order.
	DiscardStale bool
	// Copy marks a document duplicated from an existing one; its preview
	// opens populated.
	Copy bool

	Logger *slog.Logger
}

// SyncController keeps the rendering frame in step with the form. Every
// exported method posts onto the loop and returns immediately.
type SyncController struct {
	loop *loop.Loop
	opts Options
	log  *slog.Logger

	doc      *document.Document
	previous *document.Document

	detector *detect.Detector
	channel  *channel.Channel
	themes   *theme.Coordinator
	statuses *status.Subscription

	active     bool
	epoch      uint64
	seq        uint64
	applied    uint64
	rawTouched bool
}

func New(l *loop.Loop, opts Options) *SyncController {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ContainerID == "" {
		opts.ContainerID = opts.Blueprint.Slug + "__graphic"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Entity == "" {
		opts.Entity = "project"
	}

	c := &SyncController{
		loop: l,
		opts: opts,
		log:  logger.With("document", opts.Document.ID, "blueprint", opts.Blueprint.ID),
		doc:  opts.Document,
	}

	c.channel = channel.New(l, opts.Transport, c.log)
	c.channel.OnLoadError = func(*channel.Session, error) {
		c.opts.Notifier.Error(loadFailMessage)
	}
	c.themes = theme.NewCoordinator(c.channel, opts.ContainerID, c.rendererURL, c.log)
	c.statuses = status.New(l, opts.Bus, opts.Entity, c.log)
	c.detector = detect.New(l, opts.Debounce, opts.Blueprint.PreviewMode, opts.Form, c.push, c.log)
	return c
}

// Activate runs the after-render step: the initial preview session and
// status subscription.
func (c *SyncController) Activate() {
	c.loop.Post(func() {
		if c.active {
			return
		}
		c.active = true
		c.epoch++
		c.rawTouched = false
		c.log.Debug("preview sync activated", "mode", c.opts.Blueprint.PreviewMode)
		c.afterRender()
	})
}

// Deactivate cancels pending work and drops the session. Responses still
// in flight are ignored when they arrive.
func (c *SyncController) Deactivate() {
	c.loop.Post(func() {
		if !c.active {
			return
		}
		c.active = false
		c.epoch++
		c.detector.Cancel()
		c.statuses.Unsubscribe()
		c.channel.Close()
		c.log.Debug("preview sync deactivated")
	})
}

// UserActivity reports a keystroke or change in the form.
func (c *SyncController) UserActivity() {
	c.loop.Post(func() {
		if c.active {
			c.detector.Activity()
		}
	})
}

// Focus requests a full refresh on the next evaluation.
func (c *SyncController) Focus() {
	c.loop.Post(func() {
		if c.active {
			c.detector.Force()
		}
	})
}

func (c *SyncController) LoadingStarted() {
	c.loop.Post(func() { c.statuses.Unsubscribe() })
}

func (c *SyncController) LoadingStopped() {
	c.loop.Post(func() {
		if c.active {
			c.listen()
		}
	})
}

func (c *SyncController) BeforeSubmit() {
	c.loop.Post(func() { c.statuses.Unsubscribe() })
}

// AfterSubmit adopts the saved document and resumes status listening.
func (c *SyncController) AfterSubmit(doc *document.Document) {
	c.loop.Post(func() {
		if doc != nil {
			c.doc = doc
		}
		if !c.active {
			return
		}
		c.listen()
		if c.doc.HasStatus(document.StatusBuilding) {
			c.opts.Notifier.Alert(buildingMessage, notify.LevelNotice, false, buildingAlertDuration)
		}
	})
}

// RawEditorChanged stops status listening the first time the raw editor
// is edited after activation.
func (c *SyncController) RawEditorChanged() {
	c.loop.Post(func() {
		if !c.active || c.rawTouched {
			return
		}
		c.rawTouched = true
		c.statuses.Unsubscribe()
	})
}

func (c *SyncController) rendererURL(themeName string) string {
	unpopulated := !(c.opts.Copy || c.doc.HasInitialBuild)
	return document.RendererURL(c.opts.MediaBaseURL, c.opts.Blueprint.Version, themeName, unpopulated)
}

func (c *SyncController) afterRender() {
	bp := c.opts.Blueprint

	switch {
	case bp.HasPreviewMode(document.PreviewLive):
		if name := c.knownTheme(); name != "" {
			c.themes.Open(name)
			if c.opts.Copy || c.doc.HasInitialBuild || !c.doc.BuildDataEmpty() {
				c.channel.OnReady(c.detector.Activity)
			}
		}
	case c.doc.Type == document.TypeGraphic && c.doc.HasInitialBuild:
		link := c.doc.PreviewURL
		if c.previous != nil && c.previous.PreviewURL != "" && c.previous.PreviewURL != link {
			link = c.previous.PreviewURL
		}
		if link != "" {
			c.channel.Open(c.opts.ContainerID, link, "")
		}
	}

	c.listen()
}

func (c *SyncController) knownTheme() string {
	if c.doc.Theme != "" {
		return c.doc.Theme
	}
	values, err := c.opts.Form.Value()
	if err != nil {
		return ""
	}
	name, _ := values["theme"].(string)
	return name
}

// listen subscribes to status events; live previews never need them.
func (c *SyncController) listen() {
	if c.opts.Blueprint.HasPreviewMode(document.PreviewLive) {
		return
	}
	c.statuses.Subscribe(c.doc.ID, c.doc.IsNew(), c.onStatus)
}

func (c *SyncController) push(values map[string]any, forced bool) {
	c.seq++
	seq, epoch, id := c.seq, c.epoch, c.doc.ID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
		defer cancel()

		bd, err := c.opts.API.FetchBuildData(ctx, id, values, forced)
		c.loop.Post(func() { c.applyBuildData(epoch, seq, bd, err) })
	}()
}

func (c *SyncController) applyBuildData(epoch, seq uint64, bd *api.BuildData, err error) {
	if epoch != c.epoch {
		c.log.Debug("build data response after deactivation dropped", "seq", seq)
		return
	}
	if err != nil {
		c.reportBuildError(err)
		return
	}
	if c.opts.DiscardStale && seq < c.applied {
		c.log.Debug("stale build data dropped", "seq", seq, "applied", c.applied)
		return
	}
	c.applied = seq

	if bd.HasSpreadsheet {
		c.opts.Form.SetField("google_doc_url", bd.GoogleDocURL)
	}

	payload, err := bd.Encode()
	if err != nil {
		c.log.Error("build data not encodable", "error", err)
		return
	}
	c.themes.Apply(bd.Theme, bd.HasTheme, payload)
}

func (c *SyncController) reportBuildError(err error) {
	if se, ok := api.AsStatusError(err); ok && se.ClientError() {
		msg := se.Message
		if msg == "" {
			msg = se.StatusText
		}
		c.log.Warn("preview build data rejected", "status", se.StatusCode, "message", msg)
		c.opts.Notifier.Error(msg)
		return
	}
	c.log.Error("preview build data failed", "error", err)
	c.opts.Notifier.Error(supportMessage)
}

func (c *SyncController) onStatus(s document.Status) {
	c.log.Debug("document status", "status", s)
	switch s {
	case document.StatusUpdated:
		return
	case document.StatusBuilt:
		c.opts.Notifier.Success(builtMessage)
	}
	c.refetch()
}

func (c *SyncController) refetch() {
	epoch, id := c.epoch, c.doc.ID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
		defer cancel()

		doc, err := c.opts.API.FetchDocument(ctx, id)
		c.loop.Post(func() {
			if epoch != c.epoch {
				return
			}
			if err != nil {
				c.log.Error("document refetch failed", "error", err)
				if se, ok := api.AsStatusError(err); ok {
					c.opts.Notifier.DisplayError(se.StatusCode, se.StatusText, se.Body)
				} else {
					c.opts.Notifier.DisplayError(0, err.Error(), "")
				}
				return
			}
			c.rerender(doc)
		})
	}()
}

func (c *SyncController) rerender(doc *document.Document) {
	c.statuses.Unsubscribe()
	c.previous, c.doc = c.doc, doc
	if c.opts.View == nil {
		c.afterRender()
		return
	}
	if err := c.opts.View.Render(doc); err != nil {
		c.log.Error("edit view render failed", "error", err)
	}
	c.afterRender()
}
