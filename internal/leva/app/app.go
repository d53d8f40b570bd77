// Package app wires Leva together: storage, memory, the LLM backend, the
// command router and the Matrix client.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/leva/common/redact"
	"github.com/bdobrica/leva/common/trace"
	"github.com/bdobrica/leva/internal/leva/chat"
	"github.com/bdobrica/leva/internal/leva/commands"
	"github.com/bdobrica/leva/internal/leva/matrix"
	"github.com/bdobrica/leva/internal/leva/memory"
	"github.com/bdobrica/leva/internal/leva/moderation"
	"github.com/bdobrica/leva/internal/leva/observability"
	"github.com/bdobrica/leva/internal/leva/persona"
	"github.com/bdobrica/leva/internal/leva/store"
)

// defaultShutdownTimeout bounds how long Stop waits for in-flight work.
const defaultShutdownTimeout = 30 * time.Second

// chatClient is the part of matrix.Client the app drives.
type chatClient interface {
	commands.Messenger
	Redact(ctx context.Context, roomID, eventID, reason string) error
	Start(ctx context.Context, onMessage matrix.MessageHandler, onJoin matrix.JoinHandler) error
	Stop()
}

// App is the running bot.
type App struct {
	config      *Config
	persona     *persona.Persona
	store       *store.Store
	coordinator *memory.Coordinator
	router      *commands.Router
	filter      *moderation.Filter
	metrics     *observability.Metrics
	matrix      chatClient
	health      *HealthServer

	sem             *semaphore.Weighted
	inflight        sync.WaitGroup
	shutdownTimeout time.Duration
	ctx             context.Context
	stopOnce        sync.Once
}

// New opens the database and memory backends and builds every component.
// Nothing touches the network until Run.
func New(config *Config) (*App, error) {
	p, err := persona.Load(config.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	db, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}

	config.Matrix.DB = db.DB()
	mx, err := matrix.New(&config.Matrix)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	a, err := build(config, p, db, mx)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// build assembles the app around an already opened store and chat client.
func build(config *Config, p *persona.Persona, db *store.Store, mx chatClient) (*App, error) {
	logger := slog.Default()
	metrics := observability.NewMetrics("leva")

	provider, err := newProvider(config.LLM, logger)
	if err != nil {
		return nil, err
	}
	ltm, err := newLongTermStore(config.Memory, db.DB(), logger)
	if err != nil {
		return nil, err
	}
	coordinator, err := memory.NewCoordinator(memory.CoordinatorConfig{
		Capacity:   config.Memory.Capacity,
		LongTerm:   ltm,
		Summariser: memory.NewLLMSummariser(provider, p.SummariserPrompt),
		Logger:     logger,
		Recorder:   metrics,
	})
	if err != nil {
		ltm.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	responder := chat.NewResponder(chat.Config{
		Provider:     provider,
		Memory:       coordinator,
		SystemPrompt: p.SystemPrompt,
		MemoryNote:   p.MemoryNote,
		Observer:     metrics,
		Logger:       logger,
	})

	router := commands.NewRouter(config.CommandPrefix)
	commands.NewHandlers(commands.HandlersConfig{
		Persona:     p,
		Chat:        responder,
		Memory:      coordinator,
		Roles:       db,
		Messenger:   mx,
		RecallLimit: config.Memory.RecallLimit,
		Logger:      logger,
	}).Register(router)

	workers := config.Workers
	if workers < 1 {
		workers = defaultWorkers
	}

	a := &App{
		config:          config,
		persona:         p,
		store:           db,
		coordinator:     coordinator,
		router:          router,
		filter:          moderation.NewFilter(p.Moderation.Words),
		metrics:         metrics,
		matrix:          mx,
		sem:             semaphore.NewWeighted(int64(workers)),
		shutdownTimeout: defaultShutdownTimeout,
		ctx:             context.Background(),
	}
	if config.HTTPAddr != "" {
		a.health = NewHealthServer(config.HTTPAddr, coordinator, metrics.Handler())
	}
	return a, nil
}

// Run loads long-term memory, starts the HTTP server and Matrix sync, and
// blocks until ctx is cancelled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.ctx = ctx

	if err := memory.LoadStore(ctx, a.coordinator.LongTerm(), corruptPolicy(a.config.Memory), slog.Default()); err != nil {
		return fmt.Errorf("app: load long-term memory: %w", err)
	}

	if a.health != nil {
		if err := a.health.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.dispatch, a.onJoin); err != nil {
		return fmt.Errorf("app: start Matrix client: %w", err)
	}

	slog.Info("Leva is running; press Ctrl+C to stop",
		"llm", a.config.LLM.Backend, "memory", a.config.Memory.Backend)
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// Stop stops sync, waits for in-flight messages and flushes for at most
// the shutdown timeout, then closes the long-term store and the database.
// It is safe to call more than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		slog.Info("stopping Matrix client")
		a.matrix.Stop()

		if a.health != nil {
			slog.Info("stopping health server")
			a.health.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()
		if !a.waitInflight(ctx) {
			slog.Warn("stopped waiting for in-flight messages", "timeout", a.shutdownTimeout)
		}
		if err := a.coordinator.Close(ctx); err != nil {
			slog.Error("closing memory", "err", err)
		}

		slog.Info("closing database")
		if err := a.store.Close(); err != nil {
			slog.Error("closing database", "err", err)
		}
	})
}

// waitInflight waits for dispatched work until ctx is done. It reports
// whether everything finished.
func (a *App) waitInflight(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// dispatch runs handleMessage on the worker pool. Acquiring blocks the
// sync loop when every worker is busy.
func (a *App) dispatch(_ context.Context, evt *event.Event) {
	a.spawn(func(ctx context.Context) { a.handleMessage(ctx, evt) })
}

func (a *App) onJoin(_ context.Context, roomID id.RoomID, userID id.UserID) {
	a.spawn(func(ctx context.Context) { a.welcome(ctx, roomID, userID) })
}

func (a *App) spawn(fn func(ctx context.Context)) {
	ctx := a.ctx
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return
	}
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer a.sem.Release(1)
		fn(ctx)
	}()
}

// handleMessage moderates one inbound message, routes it to a command and
// sends the reply.
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	log := observability.LoggerWithTrace(ctx, slog.Default())

	msg := evt.Content.AsMessage()
	if msg == nil {
		return
	}
	roomID := evt.RoomID.String()
	text := msg.Body

	if _, hit := a.filter.Match(text); hit {
		a.moderate(ctx, evt)
		return
	}

	cmd, err := a.router.Parse(text)
	if errors.Is(err, commands.ErrNotACommand) {
		a.metrics.Messages.WithLabelValues("ignored").Inc()
		return
	}
	kind := "command"
	if cmd != nil && cmd.Name == "ai" {
		kind = "chat"
	}
	a.metrics.Messages.WithLabelValues(kind).Inc()
	log.Debug("command received", "sender", evt.Sender, "room", roomID, "kind", kind)

	response, err := a.router.Route(ctx, text, evt)
	if err != nil {
		log.Info("command failed", "sender", evt.Sender, "err", a.redact(err))
		if rerr := a.matrix.Reply(ctx, roomID, evt.ID.String(), "❌ Error: "+a.redact(err)); rerr != nil {
			log.Error("failed to send error reply", "room", roomID, "err", rerr)
		}
		return
	}
	a.send(ctx, roomID, response)
}

// moderate removes a filtered message and warns its sender.
func (a *App) moderate(ctx context.Context, evt *event.Event) {
	log := observability.LoggerWithTrace(ctx, slog.Default())
	a.metrics.ModeratedEvents.Inc()
	roomID := evt.RoomID.String()

	if err := a.matrix.Redact(ctx, roomID, evt.ID.String(), "word filter"); err != nil {
		log.Warn("could not redact filtered message", "room", roomID, "err", err)
	}
	warning := persona.Fill(a.persona.Moderation.Warning, "user", evt.Sender.String())
	if _, err := a.matrix.SendText(ctx, roomID, warning); err != nil {
		log.Error("failed to send moderation warning", "room", roomID, "err", err)
	}
	log.Info("message removed by word filter", "sender", evt.Sender, "room", roomID)
}

// welcome greets a user who joined a room by DM.
func (a *App) welcome(ctx context.Context, roomID id.RoomID, userID id.UserID) {
	text := persona.Fill(a.persona.Welcome, "name", userID.String(), "user", userID.String())
	if err := a.matrix.SendDM(ctx, userID.String(), text); err != nil {
		slog.Warn("failed to send welcome", "user", userID, "room", roomID, "err", err)
		return
	}
	slog.Info("welcomed new member", "user", userID, "room", roomID)
}

// send posts text split into chunks the homeserver accepts.
func (a *App) send(ctx context.Context, roomID, text string) {
	for _, part := range chat.Split(text, a.config.MessageChunk) {
		if _, err := a.matrix.SendText(ctx, roomID, part); err != nil {
			observability.LoggerWithTrace(ctx, slog.Default()).Error("failed to send response",
				"room", roomID, "err", err)
			return
		}
	}
}

func (a *App) redact(err error) string {
	return redact.Error(err, a.config.LLM.APIKey, a.config.Matrix.AccessToken)
}
