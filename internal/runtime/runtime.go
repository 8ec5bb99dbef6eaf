package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/voicenav/internal/bus"
	"github.com/loqalabs/voicenav/internal/command"
	"github.com/loqalabs/voicenav/internal/config"
	"github.com/loqalabs/voicenav/internal/eventstore"
	"github.com/loqalabs/voicenav/internal/natsserver"
	"github.com/loqalabs/voicenav/internal/notify"
	"github.com/loqalabs/voicenav/internal/recognition"
	"github.com/loqalabs/voicenav/internal/shell"
	"github.com/loqalabs/voicenav/internal/synthesis"
	"github.com/loqalabs/voicenav/internal/voice"
)

const pruneInterval = time.Hour

// Runtime owns the voice navigation components and the HTTP surface the
// presentation shell talks to.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer     *http.Server
	metricsServer  *http.Server
	metricHandler  http.Handler
	telemetryClose func(context.Context) error
	ready          atomic.Bool
	wg             sync.WaitGroup

	nats       *natsserver.EmbeddedServer
	bus        *bus.Client
	store      *eventstore.Store
	center     *notify.Center
	hub        *shell.Hub
	shells     shell.Multi
	dispatcher *command.Dispatcher
	tts        *synthesis.ExecPlatform
	speaker    *synthesis.Speaker
	controller *voice.Controller
	adapter    *recognition.Adapter
	simulator  *recognition.MockPlatform
	closeFns   []func()
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry
	r.metricHandler = metricHandler

	if err := r.build(ctx); err != nil {
		cancel()
		r.close()
		r.wg.Wait()
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if bind := r.cfg.Telemetry.PrometheusBind; bind != "" && r.metricHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", r.metricHandler)
		r.metricsServer = &http.Server{
			Addr:              bind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("recognition", r.cfg.Recognition.Mode),
		slog.String("synthesis", r.cfg.Synthesis.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.close()
	r.wg.Wait()

	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("server failed", slog.String("server", name), slog.String("error", err.Error()))
		}
	}()
}

// build wires the components in dependency order. Each step registers its
// cleanup so close can unwind in reverse.
func (r *Runtime) build(ctx context.Context) error {
	ns, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	if ns != nil {
		r.nats = ns
		r.onClose(ns.Shutdown)
	}

	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		if ns != nil {
			busCfg.Servers = []string{ns.ClientURL()}
		}
		client, err := bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		r.bus = client
		r.onClose(client.Close)
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	r.store = store
	r.onClose(func() {
		if err := store.Close(); err != nil {
			r.logger.Warn("event store close error", slog.String("error", err.Error()))
		}
	})
	if store.Enabled() {
		r.schedulePrune(ctx)
	}

	r.center = notify.NewCenter(millis(r.cfg.Notifications.DefaultDurationMS), r.cfg.Notifications.MaxRetained, r.logger)
	r.onClose(r.center.Close)

	if r.cfg.Shell.WebSocket {
		r.hub = shell.NewHub(r.logger)
		r.shells = append(r.shells, r.hub)
		r.onClose(r.hub.Close)
	}
	if r.cfg.Shell.PublishBus && r.bus != nil {
		r.shells = append(r.shells, shell.NewBusPublisher(r.bus))
	}

	table, err := command.LoadTable(r.cfg.Commands.File)
	if err != nil {
		return fmt.Errorf("failed to load commands: %w", err)
	}
	r.dispatcher = command.NewDispatcher(table, r.shells, r.shells, r.logger)

	ttsPlatform, err := r.synthesisPlatform()
	if err != nil {
		return err
	}
	r.speaker = synthesis.NewSpeaker(ttsPlatform, synthesis.Options{
		Language: r.cfg.Synthesis.Language,
		Rate:     r.cfg.Synthesis.Rate,
		Pitch:    r.cfg.Synthesis.Pitch,
		Volume:   r.cfg.Synthesis.Volume,
	}, r.logger)
	r.onClose(r.speaker.Cancel)

	controller, err := voice.NewController(ctx, voice.Options{
		Dispatcher:    r.dispatcher,
		Speaker:       r.speaker,
		Notifier:      r.center,
		Recorder:      r.store,
		Publisher:     r.shells,
		DispatchDelay: millis(r.cfg.Recognition.DispatchDelayMS),
		Platform:      r.cfg.Recognition.Mode,
		Language:      r.cfg.Recognition.Language,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create voice controller: %w", err)
	}
	r.controller = controller
	r.onClose(controller.Close)

	sttPlatform, err := r.recognitionPlatform()
	if err != nil {
		return err
	}
	r.adapter = recognition.NewAdapter(ctx, sttPlatform, controller, recognition.Settings{
		Language:       r.cfg.Recognition.Language,
		InterimResults: r.cfg.Recognition.InterimResults,
	}, millis(r.cfg.Recognition.TimeoutMS), r.logger)
	r.onClose(r.adapter.Close)
	controller.Attach(r.adapter)

	events, unsubscribe := r.center.Subscribe(64)
	r.onClose(unsubscribe)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		shell.Forward(ctx, events, r.shells, r.logger)
	}()

	return nil
}

func (r *Runtime) synthesisPlatform() (synthesis.Platform, error) {
	if !r.cfg.Synthesis.Enabled {
		return nil, nil
	}
	switch r.cfg.Synthesis.Mode {
	case "exec":
		var sink synthesis.AudioSink
		if r.bus != nil {
			sink = synthesis.BusSink{Client: r.bus}
		}
		platform, err := synthesis.NewExecPlatform(r.cfg.Synthesis, sink, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create synthesis platform: %w", err)
		}
		r.tts = platform
		r.onClose(platform.Close)
		return platform, nil
	default:
		return synthesis.NewMockPlatform(200 * time.Millisecond), nil
	}
}

func (r *Runtime) recognitionPlatform() (recognition.Platform, error) {
	if !r.cfg.Recognition.Enabled {
		return nil, nil
	}
	switch r.cfg.Recognition.Mode {
	case "exec":
		platform, err := recognition.NewExecPlatform(r.cfg.Recognition.Command, r.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create recognition platform: %w", err)
		}
		return platform, nil
	case "bus":
		if r.bus == nil {
			return nil, errors.New("recognition mode bus requires bus.enabled")
		}
		return recognition.NewBusPlatform(r.bus.Conn(), r.cfg.Recognition.Source, r.logger), nil
	default:
		r.simulator = recognition.NewMockPlatform()
		return r.simulator, nil
	}
}

func (r *Runtime) schedulePrune(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.store.Prune(ctx); err != nil {
					r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

func (r *Runtime) onClose(fn func()) {
	r.closeFns = append(r.closeFns, fn)
}

// close releases components in reverse construction order.
func (r *Runtime) close() {
	for i := len(r.closeFns) - 1; i >= 0; i-- {
		r.closeFns[i]()
	}
	r.closeFns = nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
