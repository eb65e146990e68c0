package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neovim/go-client/nvim"
	"github.com/neovim/go-client/nvim/plugin"
	"github.com/redis/go-redis/v9"

	"go-live-preview/internal/api"
	"go-live-preview/internal/app"
	"go-live-preview/internal/bus"
	"go-live-preview/internal/channel"
	"go-live-preview/internal/config"
	"go-live-preview/internal/document"
	"go-live-preview/internal/form"
	"go-live-preview/internal/loop"
	"go-live-preview/internal/transport/ws"
)

const augroup = "GoLivePreviewSync"

// Commands is a state container for Neovim command handlers.
// It owns at most one running preview sync session for the buffer it was
// started in.
type Commands struct {
	configPath string
	log        *slog.Logger

	mu      sync.Mutex
	session *session
}

type session struct {
	cfg    *config.Config
	client *api.Client
	bus    bus.Bus
	ctrl   *app.SyncController
	loop   *loop.Loop
	cancel context.CancelFunc
	buf    nvim.Buffer
	editor *bufferEditor
	schema *form.SchemaForm
}

func NewCommands(configPath string, logger *slog.Logger) *Commands {
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{configPath: configPath, log: logger}
}

// Register registers Neovim command/function handlers.
func Register(p *plugin.Plugin, configPath string, logger *slog.Logger) error {
	commands := NewCommands(configPath, logger)

	p.Handle("poll", func() (string, error) {
		return "ok", nil
	})

	p.HandleCommand(&plugin.CommandOptions{
		Name:  "PreviewSyncStart",
		NArgs: "?",
	}, commands.PreviewSyncStart)

	p.HandleCommand(&plugin.CommandOptions{
		Name: "PreviewSyncStop",
	}, commands.PreviewSyncStop)

	p.HandleFunction(&plugin.FunctionOptions{
		Name: "PreviewSyncInternalUpdate",
	}, commands.PreviewSyncUpdate)

	p.HandleFunction(&plugin.FunctionOptions{
		Name: "PreviewSyncInternalFocus",
	}, commands.PreviewSyncFocus)

	p.HandleFunction(&plugin.FunctionOptions{
		Name: "PreviewSyncInternalWritePre",
	}, commands.PreviewSyncWritePre)

	p.HandleFunction(&plugin.FunctionOptions{
		Name: "PreviewSyncInternalWritePost",
	}, commands.PreviewSyncWritePost)

	return nil
}

// PreviewSyncStart loads the configured document into the current buffer
// and starts syncing it. An optional argument overrides the config path.
func (c *Commands) PreviewSyncStart(v *nvim.Nvim, args []string) error {
	path := c.configPath
	if len(args) > 0 && args[0] != "" {
		path = args[0]
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.stopLocked()
	}

	s, err := c.start(v, cfg)
	if err != nil {
		return err
	}
	c.session = s
	return v.Command(fmt.Sprintf(`echom "%spreview sync started for %s %s"`, prefix, cfg.Entity, cfg.DocumentID))
}

func (c *Commands) start(v *nvim.Nvim, cfg *config.Config) (*session, error) {
	client := api.NewClient(cfg.API.BaseURL, cfg.API.Collection, cfg.API.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()

	doc, err := client.FetchDocument(ctx, cfg.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", cfg.Entity, cfg.DocumentID, err)
	}
	if doc.BlueprintID == "" {
		return nil, errors.New("document has no blueprint")
	}
	bp, err := client.FetchBlueprint(ctx, doc.BlueprintID)
	if err != nil {
		return nil, fmt.Errorf("fetch blueprint %s: %w", doc.BlueprintID, err)
	}

	buf, err := v.CurrentBuffer()
	if err != nil {
		return nil, err
	}
	editor := &bufferEditor{}
	source := form.RawText(editor)
	var schema *form.SchemaForm
	if bp.Form != nil && len(bp.Form.Schema) > 0 {
		schema, err = form.NewSchemaForm(bp, cfg.Themes, doc.Data)
		if err != nil {
			return nil, fmt.Errorf("blueprint %s form: %w", bp.ID, err)
		}
		source = form.Structured(schema)
	}

	view := &bufferView{buf: buf, writer: v, editor: editor}
	if err := view.Render(doc); err != nil {
		return nil, err
	}
	// The form already holds the initial data with its theme checked.
	view.schema = schema
	if err := v.SetBufferOption(buf, "filetype", "json"); err != nil {
		c.log.Warn("set filetype failed", "error", err)
	}

	b, err := newBus(ctx, cfg)
	if err != nil {
		return nil, err
	}

	notifier := &echoNotifier{out: v, log: c.log}
	var next channel.Transport = ws.NewTransport(c.log)
	if !bp.HasPreviewMode(document.PreviewLive) {
		next = linkTransport{}
	}
	transport := &announcingTransport{
		next:     next,
		announce: func(url string) { notifier.write("preview: " + url) },
	}

	l := loop.New()
	loopCtx, stop := context.WithCancel(context.Background())
	go func() {
		if err := l.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error("preview loop stopped", "error", err)
		}
	}()

	ctrl := app.New(l, app.Options{
		Document:     doc,
		Blueprint:    bp,
		Form:         source,
		API:          client,
		Transport:    transport,
		Bus:          b,
		Notifier:     notifier,
		View:         view,
		MediaBaseURL: cfg.MediaBaseURL,
		ContainerID:  cfg.Preview.ContainerID,
		Entity:       cfg.Entity,
		Debounce:     cfg.Preview.Debounce,
		DiscardStale: cfg.Preview.DiscardStale,
		Logger:       c.log,
	})
	ctrl.Activate()

	if err := installAutocmds(v); err != nil {
		c.log.Warn("autocmds not installed", "error", err)
	}

	return &session{
		cfg:    cfg,
		client: client,
		bus:    b,
		ctrl:   ctrl,
		loop:   l,
		cancel: stop,
		buf:    buf,
		editor: editor,
		schema: schema,
	}, nil
}

func (c *Commands) PreviewSyncStop(v *nvim.Nvim) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	c.stopLocked()
	_ = v.Command("silent! autocmd! " + augroup)
	return v.Command(fmt.Sprintf(`echom "%spreview sync stopped"`, prefix))
}

func (c *Commands) stopLocked() {
	s := c.session
	c.session = nil

	s.ctrl.Deactivate()
	// Deactivate is queued; wait for it before stopping the loop.
	s.loop.Call(func() {})
	s.cancel()
	if closer, ok := s.bus.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// PreviewSyncUpdate runs on TextChanged in the synced buffer. With a
// blueprint form the buffer feeds the structured form; text that does not
// parse leaves the form untouched until it does.
func (c *Commands) PreviewSyncUpdate(v *nvim.Nvim) error {
	s := c.current()
	if s == nil {
		return nil
	}

	lines, err := v.BufferLines(s.buf, 0, -1, true)
	if err != nil {
		return err
	}
	s.editor.setLines(lines)

	if s.schema == nil {
		s.ctrl.RawEditorChanged()
		s.ctrl.UserActivity()
		return nil
	}

	values, err := form.RawText(s.editor).Value()
	if err != nil {
		return nil
	}
	s.schema.Replace(values)
	s.ctrl.UserActivity()
	return nil
}

func (c *Commands) PreviewSyncFocus(v *nvim.Nvim) error {
	if s := c.current(); s != nil {
		s.ctrl.Focus()
	}
	return nil
}

func (c *Commands) PreviewSyncWritePre(v *nvim.Nvim) error {
	if s := c.current(); s != nil {
		s.ctrl.BeforeSubmit()
	}
	return nil
}

// PreviewSyncWritePost picks up the saved document's status once the host
// application has accepted the write.
func (c *Commands) PreviewSyncWritePost(v *nvim.Nvim) error {
	s := c.current()
	if s == nil {
		return nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.API.Timeout)
		defer cancel()

		doc, err := s.client.FetchDocument(ctx, s.cfg.DocumentID)
		if err != nil {
			c.log.Error("saved document refetch failed", "error", err)
			s.ctrl.AfterSubmit(nil)
			return
		}
		s.ctrl.AfterSubmit(doc)
	}()
	return nil
}

func (c *Commands) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func installAutocmds(v *nvim.Nvim) error {
	cmds := []string{
		"augroup " + augroup,
		"autocmd!",
		"autocmd TextChanged,TextChangedI <buffer> call PreviewSyncInternalUpdate()",
		"autocmd FocusGained,BufEnter <buffer> call PreviewSyncInternalFocus()",
		"autocmd BufWritePre <buffer> call PreviewSyncInternalWritePre()",
		"autocmd BufWritePost <buffer> call PreviewSyncInternalWritePost()",
		"augroup END",
	}
	for _, cmd := range cmds {
		if err := v.Command(cmd); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
	return nil
}

func newBus(ctx context.Context, cfg *config.Config) (bus.Bus, error) {
	if cfg.Bus.RedisAddr == "" {
		return bus.NewMemory(), nil
	}
	r := bus.NewRedis(&redis.Options{
		Addr:     cfg.Bus.RedisAddr,
		Password: cfg.Bus.RedisPassword,
		DB:       cfg.Bus.RedisDB,
	})
	if err := r.Ping(ctx); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("status bus %s: %w", cfg.Bus.RedisAddr, err)
	}
	return r, nil
}
