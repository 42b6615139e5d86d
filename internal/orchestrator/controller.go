// Package orchestrator coordinates streaming, session persistence, and
// configuration changes for one workspace.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sheetwise/sheetwise/internal/config"
	"github.com/sheetwise/sheetwise/internal/grid"
	"github.com/sheetwise/sheetwise/internal/llm"
	"github.com/sheetwise/sheetwise/internal/session"
	"github.com/sheetwise/sheetwise/internal/tools"
	"github.com/sheetwise/sheetwise/internal/transcript"
	"github.com/sheetwise/sheetwise/internal/workspace"
)

// ErrStreaming rejects session-mutating operations while a stream is live.
// Callers retry after the stream completes or is aborted.
var ErrStreaming = errors.New("operation not allowed while streaming")

const sessionNameMax = 40

// UIState is the read-only projection handed to the UI after every state
// transition.
type UIState struct {
	Turns       []transcript.Turn
	IsStreaming bool
	Error       string
	Stats       transcript.Stats
	Sessions    []session.Session
	Current     session.Session
	Uploads     []string
	Pending     *config.Config
}

// Controller owns the live conversation for one workspace: it drives the
// reconciler from the agent's event stream, guards session operations during
// streaming, autosaves on clean completion, and defers configuration changes
// until the stream is idle.
//
// All state lives behind one mutex; event handling, user actions, and
// configuration changes serialize on it so no caller ever observes a
// half-applied transition.
// ProviderFactory builds a model provider from configuration. Swappable so
// tests can run against a scripted provider.
type ProviderFactory func(name, apiKey, model string) (llm.Provider, error)

type Controller struct {
	logger  *slog.Logger
	store   session.Store
	nav     grid.Navigator
	factory ProviderFactory

	mu          sync.Mutex
	cfg         config.Config
	pending     *config.Config
	ws          *workspace.Workspace
	rec         *transcript.Reconciler
	engine      *llm.Engine
	workspaceID string
	current     session.Session
	sessions    []session.Session
	uploads     []string
	isStreaming bool
	errMsg      string
	cancel      context.CancelFunc
	streamDone  chan struct{}
}

// New builds a controller for the given workspace identifier. The store may
// be nil, in which case sessions live only in memory.
func New(cfg config.Config, workspaceID string, store session.Store, nav grid.Navigator, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = session.NewMemoryStore()
	}
	if nav == nil {
		nav = grid.NopNavigator{}
	}

	c := &Controller{
		logger:      logger,
		store:       session.NewLoggingStore(store, logger),
		nav:         nav,
		factory:     llm.NewProvider,
		cfg:         cfg,
		ws:          workspace.New(),
		rec:         transcript.NewReconciler(logger),
		workspaceID: workspaceID,
	}
	c.rec.SetFollowFunc(c.followRanges)

	engine, err := c.buildEngine(cfg, nil)
	if err != nil {
		return nil, err
	}
	c.engine = engine
	return c, nil
}

// buildEngine constructs the execution context for a configuration,
// preserving any existing conversation history.
func (c *Controller) buildEngine(cfg config.Config, history []llm.Message) (*llm.Engine, error) {
	name, apiKey, model := cfg.Active()
	provider, err := c.factory(name, apiKey, model)
	if err != nil {
		return nil, fmt.Errorf("build provider: %w", err)
	}
	engine := llm.NewEngine(provider, tools.NewRegistry(c.ws))
	engine.SetMaxOutputTokens(cfg.MaxOutputTokens)
	if history != nil {
		engine.ResetHistory(history)
	}
	return engine, nil
}

// Start resolves the workspace's most recent session, or creates one, and
// restores its conversation and files into live state.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok, err := c.store.MostRecent(ctx, c.workspaceID)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		sess, err = c.store.CreateSession(ctx, c.workspaceID, "")
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}
	if err := c.restoreLocked(ctx, sess); err != nil {
		return err
	}
	c.refreshSessionsLocked(ctx)
	return nil
}

// restoreLocked loads a session's snapshot into the workspace, the
// reconciler, and the engine's replay history.
func (c *Controller) restoreLocked(ctx context.Context, sess session.Session) error {
	snap, err := c.store.LoadSnapshot(ctx, sess.ID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := c.ws.Restore(snap.Files); err != nil {
		return fmt.Errorf("restore workspace: %w", err)
	}
	c.rec.Load(snap.Turns, snap.Stats)
	c.engine.ResetHistory(transcript.ToMessages(snap.Turns))
	c.current = sess
	c.uploads = nil
	c.errMsg = ""
	return nil
}

// SendMessage applies any pending configuration, appends the user's message,
// and starts streaming the assistant's turn. It returns once the stream is
// running; events are folded into state as they arrive.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.isStreaming {
		c.mu.Unlock()
		return ErrStreaming
	}

	// A queued configuration applies before the send so this message already
	// runs on the new provider, with the conversation carried over.
	if c.pending != nil {
		if err := c.applyConfigLocked(*c.pending); err != nil {
			c.mu.Unlock()
			return err
		}
		c.pending = nil
	}

	c.errMsg = ""
	c.rec.AddUserTurn(text)
	c.isStreaming = true

	streamCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	done := make(chan struct{})
	c.streamDone = done
	engine := c.engine
	c.mu.Unlock()

	stream := engine.Send(streamCtx, text)
	go c.pump(stream, done)
	return nil
}

// pump consumes the lifecycle stream until EOF, applying each event under
// the state lock, then performs the idle transition.
func (c *Controller) pump(stream llm.AgentStream, done chan struct{}) {
	defer close(done)
	clean := true
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			clean = false
			c.setError(err.Error())
			break
		}

		c.mu.Lock()
		c.rec.Apply(event)
		c.mu.Unlock()

		if event.Type == llm.AgentStreamEnd && event.Stop.Failed() {
			clean = false
			if event.Err != nil {
				c.setError(event.Err.Error())
			} else {
				c.setError(fmt.Sprintf("stream ended: %s", event.Stop))
			}
		}
	}
	stream.Close()
	c.finishStream(clean)
}

// finishStream is the single streaming-to-idle transition. Autosave runs
// exactly here and only after a clean completion; a discarded turn is never
// persisted.
func (c *Controller) finishStream(clean bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isStreaming {
		return
	}
	c.isStreaming = false
	c.cancel = nil

	if clean {
		c.autosaveLocked(context.Background())
	}
}

// autosaveLocked persists {conversation, workspace} for the active session.
// Failures are logged and the in-memory state stays authoritative.
func (c *Controller) autosaveLocked(ctx context.Context) {
	files, err := c.ws.Snapshot()
	if err != nil {
		// No partial write: without a workspace capture nothing is saved.
		c.logger.Warn("workspace snapshot failed, skipping autosave", "error", err)
		return
	}

	turns := c.rec.Turns()
	c.maybeNameSessionLocked(ctx, turns)

	snap := session.Snapshot{Turns: turns, Stats: c.rec.Stats(), Files: files}
	if err := c.store.SaveSnapshot(ctx, c.current.ID, snap); err != nil {
		return
	}
	if sess, err := c.store.GetSession(ctx, c.current.ID); err == nil {
		c.current = sess
	}
	c.refreshSessionsLocked(ctx)
}

// maybeNameSessionLocked derives a session name from the first user message
// while the session is still default-named.
func (c *Controller) maybeNameSessionLocked(ctx context.Context, turns []transcript.Turn) {
	if !c.current.DefaultNamed() {
		return
	}
	for _, turn := range turns {
		if turn.Role != transcript.RoleUser {
			continue
		}
		var text string
		for _, part := range turn.Parts {
			if part.Type == transcript.PartText {
				text += part.Text
			}
		}
		if name := session.TruncateSummary(text, sessionNameMax); name != "" {
			if err := c.store.RenameSession(ctx, c.current.ID, name); err == nil {
				c.current.Name = name
			}
		}
		return
	}
}

func (c *Controller) refreshSessionsLocked(ctx context.Context) {
	sessions, err := c.store.ListSessions(ctx, c.workspaceID)
	if err != nil {
		return
	}
	c.sessions = sessions
}

// NewSession resets the workspace and starts an empty session. Rejected
// while streaming.
func (c *Controller) NewSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isStreaming {
		c.logger.Warn("new session rejected while streaming")
		return ErrStreaming
	}

	sess, err := c.store.CreateSession(ctx, c.workspaceID, "")
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	c.ws.Reset()
	c.rec.Reset()
	c.engine.ResetHistory(nil)
	c.current = sess
	c.uploads = nil
	c.errMsg = ""
	c.refreshSessionsLocked(ctx)
	return nil
}

// SwitchSession replaces all live state with the target session's. Rejected
// while streaming so a completing stream cannot persist into the wrong
// session.
func (c *Controller) SwitchSession(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isStreaming {
		c.logger.Warn("session switch rejected while streaming", "target", id)
		return ErrStreaming
	}

	sess, err := c.store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("switch session: %w", err)
	}
	if err := c.restoreLocked(ctx, sess); err != nil {
		return err
	}
	c.refreshSessionsLocked(ctx)
	return nil
}

// DeleteCurrentSession removes the active session and falls back to the
// workspace's most recent remaining session, creating one if none is left.
// Rejected while streaming.
func (c *Controller) DeleteCurrentSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isStreaming {
		c.logger.Warn("session delete rejected while streaming")
		return ErrStreaming
	}

	if err := c.store.DeleteSession(ctx, c.current.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	next, ok, err := c.store.MostRecent(ctx, c.workspaceID)
	if err != nil {
		return fmt.Errorf("resolve fallback session: %w", err)
	}
	if !ok {
		next, err = c.store.CreateSession(ctx, c.workspaceID, "")
		if err != nil {
			return fmt.Errorf("create fallback session: %w", err)
		}
	}
	if err := c.restoreLocked(ctx, next); err != nil {
		return err
	}
	c.refreshSessionsLocked(ctx)
	return nil
}

// SetConfig applies a new configuration, or queues it while a stream is
// active. At most one configuration is pending; a newer request replaces an
// older one. The in-flight stream keeps its original provider either way.
func (c *Controller) SetConfig(cfg config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isStreaming {
		c.pending = &cfg
		return nil
	}
	return c.applyConfigLocked(cfg)
}

// applyConfigLocked rebuilds the execution context under the new
// configuration, carrying the conversation history forward.
func (c *Controller) applyConfigLocked(cfg config.Config) error {
	engine, err := c.buildEngine(cfg, c.engine.History())
	if err != nil {
		return err
	}
	c.engine = engine
	c.cfg = cfg
	return nil
}

// Abort cancels the in-flight stream. The partial turn is discarded by the
// reconciler when the terminal event arrives.
func (c *Controller) Abort() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current stream, if any, has fully settled.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.streamDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// RecordUpload notes an externally attached file for UI display.
func (c *Controller) RecordUpload(name string) {
	c.mu.Lock()
	c.uploads = append(c.uploads, name)
	c.mu.Unlock()
}

// ExportCurrent renders the active session in the given format
// ("json", "yaml", or "markdown").
func (c *Controller) ExportCurrent(ctx context.Context, format string) ([]byte, error) {
	c.mu.Lock()
	sess := c.current
	snap := session.Snapshot{Turns: c.rec.Turns(), Stats: c.rec.Stats()}
	c.mu.Unlock()

	switch format {
	case "json":
		return session.ExportJSON(sess, snap)
	case "yaml":
		return session.ExportYAML(sess, snap)
	case "markdown", "md":
		return session.ExportMarkdown(sess, snap), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// Snapshot returns the UI projection of current state.
func (c *Controller) Snapshot() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := UIState{
		Turns:       c.rec.Turns(),
		IsStreaming: c.isStreaming,
		Error:       c.errMsg,
		Stats:       c.rec.Stats(),
		Sessions:    append([]session.Session(nil), c.sessions...),
		Current:     c.current,
		Uploads:     append([]string(nil), c.uploads...),
	}
	if c.pending != nil {
		pending := *c.pending
		state.Pending = &pending
	}
	return state
}

// Config returns the active configuration.
func (c *Controller) Config() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
}

// followRanges navigates the host to the first resolvable mutated region.
// Called by the reconciler once per completed tool call; runs under the
// state lock.
func (c *Controller) followRanges(ranges []grid.DirtyRange) {
	if !c.cfg.Follow {
		return
	}
	for _, d := range ranges {
		if d.Unknown() {
			continue
		}
		ref := d.Ref
		if ref == grid.Wildcard {
			ref = ""
		}
		if err := c.nav.Focus(d.SheetID, ref); err != nil {
			c.logger.Warn("follow navigation failed", "sheet", d.SheetID, "ref", ref, "error", err)
		}
		return
	}
}
