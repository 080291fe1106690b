package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/InfinitePIP/internal/api"
	"github.com/bryanchriswhite/InfinitePIP/internal/capture"
	"github.com/bryanchriswhite/InfinitePIP/internal/config"
	"github.com/bryanchriswhite/InfinitePIP/internal/display"
	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"github.com/bryanchriswhite/InfinitePIP/internal/notify"
	"github.com/bryanchriswhite/InfinitePIP/internal/output"
	"github.com/bryanchriswhite/InfinitePIP/internal/platform"
	"github.com/bryanchriswhite/InfinitePIP/internal/remote"
	"github.com/bryanchriswhite/InfinitePIP/internal/selector"
	"github.com/bryanchriswhite/InfinitePIP/internal/session"
	"github.com/bryanchriswhite/InfinitePIP/internal/source"
	"github.com/bryanchriswhite/InfinitePIP/internal/surface"
	"github.com/bryanchriswhite/InfinitePIP/internal/ui"
	"github.com/bryanchriswhite/InfinitePIP/internal/window"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start InfinitePIP",
	Long: `Start the overlay event loop together with the remote trigger and the
HTTP API. PIP sessions can be opened from flags, over the API or through
the remote trigger.`,
	Example: `  # Start and wait for remote or API requests
  infinitepip serve

  # Open a PIP of the first monitor
  infinitepip serve --monitor 0

  # Open a PIP of a region and of a window by title
  infinitepip serve --region 0,0,1280,720 --window-title "Firefox"

  # Drag out a region to mirror
  infinitepip serve --select

  # Stream only, no on-screen overlays
  infinitepip serve --headless --monitor 0`,
	RunE: runServe,
}

var (
	serveMonitors []int
	serveRegions  []string
	serveTitles   []string
	serveSelect   bool
	serveHeadless bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntSliceVar(&serveMonitors, "monitor", nil, "open a PIP of the monitor at this 0-based index (repeatable)")
	serveCmd.Flags().StringArrayVar(&serveRegions, "region", nil, "open a PIP of the region x,y,width,height (repeatable)")
	serveCmd.Flags().StringArrayVar(&serveTitles, "window-title", nil, "open a PIP of the window with this title (repeatable)")
	serveCmd.Flags().BoolVar(&serveSelect, "select", false, "drag out a region to mirror on startup")
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "do not create on-screen overlays, stream only")
}

// initialSources validates the source flags before anything is started.
func initialSources() ([]*source.Descriptor, error) {
	var sources []*source.Descriptor
	for _, idx := range serveMonitors {
		src, err := source.NewMonitor(idx)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	for _, spec := range serveRegions {
		src, err := source.ParseRegionSpec(spec)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	for _, title := range serveTitles {
		src, err := source.NewWindow(0, title, source.Rect{})
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("🖼  InfinitePIP - picture-in-picture for anything on screen")
	fmt.Println("==========================================================")

	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")

	sources, err := initialSources()
	if err != nil {
		return err
	}

	log.Info().Str("path", configMgr.GetConfigPath()).Str("log_level", cfg.LogLevel).Msg("Configuration loaded")

	caps := platform.Detect()

	var locator window.Locator
	if l, err := window.NewLocator(); err != nil {
		log.Warn().Err(err).Msg("Window lookup by title unavailable")
	} else {
		locator = l
		defer l.Close()
	}

	var backend capture.Backend
	if caps.HasWindowCapture {
		if b, err := capture.NewBackend(); err != nil {
			log.Warn().Err(err).Msg("Native window capture unavailable, falling back to screen grabs")
		} else {
			backend = b
			defer b.Close()
		}
	}

	capturer := capture.New(caps, capture.Options{Backend: backend, Locator: locator})

	loop := ui.NewLoop()
	factory, hub, closeSurfaces, err := buildSurfaces(cfg, caps, loop)
	if err != nil {
		return err
	}
	defer closeSurfaces()

	sessions := session.NewManager(capturer, loop, factory, session.OptionsFromConfig(cfg))
	sessions.OnChange(func(ev session.Event) {
		log.Info().
			Str("event", string(ev.Type)).
			Str("session_id", ev.Session.ID).
			Str("source", ev.Session.Source.Name).
			Int("count", ev.Count).
			Msg("Active PIP sessions changed")
	})

	notifier := notify.New(cfg.Notifications && caps.HasNotifications)
	defer notifier.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Remote.Enabled {
		startRemote(ctx, cfg, sessions, notifier)
	}

	if cfg.ServerEnabled {
		server := api.NewServer(sessions, api.Options{
			Streams: hub,
			Stats:   capturer,
			Config:  configMgr,
			Caps:    caps,
		})
		go func() {
			if err := server.Start(ctx, cfg.ServerPort); err != nil {
				log.Error().Err(err).Msg("API server stopped")
			}
		}()
	}

	// Sessions are created off the UI loop; Create waits for it.
	go openInitial(ctx, sessions, sources)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	go func() {
		<-ctx.Done()
		log.Info().Int("sessions", sessions.Count()).Msg("Shutting down gracefully")

		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sessions.CloseAll(closeCtx); err != nil {
			log.Warn().Err(err).Msg("Some sessions did not close in time")
		}
		stopLoop()
	}()

	log.Info().
		Int("port", cfg.ServerPort).
		Bool("api", cfg.ServerEnabled).
		Bool("remote", cfg.Remote.Enabled).
		Msg("InfinitePIP is running, press Ctrl+C to stop")

	// Surfaces belong to this goroutine from here on.
	loop.Run(loopCtx)
	return nil
}

// buildSurfaces combines the on-screen overlay and the MJPEG mirror into
// one factory. The returned hub is nil when streaming is disabled.
func buildSurfaces(cfg *config.Config, caps platform.Capabilities, loop *ui.Loop) (surface.Factory, *output.Hub, func(), error) {
	log := logger.WithComponent("serve")

	var (
		factories []surface.Factory
		closers   []func()
		hub       *output.Hub
	)

	if cfg.Overlay.Enabled && !serveHeadless {
		if !caps.HasOverlay {
			log.Warn().Msg("No overlay support on this platform")
		} else if dm, err := display.NewManager(loop); err != nil {
			log.Warn().Err(err).Msg("On-screen overlays unavailable")
		} else {
			factories = append(factories, dm)
			closers = append(closers, dm.Close)
		}
	}

	if cfg.MJPEG.Enabled {
		hub = output.NewHub(output.Config{Quality: cfg.MJPEG.Quality})
		factories = append(factories, hub)
		closers = append(closers, hub.CloseAll)
	}

	if len(factories) == 0 {
		return nil, nil, nil, errors.New("no output available: enable overlays on a desktop session or mjpeg.enabled")
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return surface.Combine(factories...), hub, closeAll, nil
}

func startRemote(ctx context.Context, cfg *config.Config, sessions *session.Manager, notifier notify.Notifier) {
	log := logger.WithComponent("serve")

	handler := remote.HandlerFunc(func(ctx context.Context, src *source.Descriptor) error {
		if _, err := sessions.Create(src); err != nil {
			notifier.Notify(notify.Failed(err))
			return err
		}
		notifier.Notify(notify.Created(src.Title()))
		return nil
	})

	rs := remote.NewServer(cfg.Remote.Address, handler)
	if err := rs.Start(); err != nil {
		log.Warn().Err(err).Msg("Remote trigger disabled")
		return
	}
	go func() {
		if err := rs.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("Remote trigger stopped")
		}
	}()
}

func openInitial(ctx context.Context, sessions *session.Manager, sources []*source.Descriptor) {
	log := logger.WithComponent("serve")

	for _, src := range sources {
		if _, err := sessions.Create(src); err != nil {
			log.Error().Err(err).Str("source", src.Name()).Msg("Failed to open PIP")
		}
	}

	if !serveSelect {
		return
	}
	src, err := selector.Await(ctx, selector.New())
	if err != nil {
		if !errors.Is(err, selector.ErrCancelled) {
			log.Error().Err(err).Msg("Region selection failed")
		}
		return
	}
	if _, err := sessions.Create(src); err != nil {
		log.Error().Err(err).Str("source", src.Name()).Msg("Failed to open PIP")
	}
}
