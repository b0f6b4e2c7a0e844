package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/echocat/slf4g"
	"github.com/echocat/slf4g/native"
	"github.com/echocat/slf4g/native/consumer"
	"github.com/echocat/slf4g/native/facade/value"
	"github.com/echocat/slf4g/native/formatter"
	"github.com/mattn/go-isatty"

	"github.com/ayusman/pinchvol/internal/app"
	"github.com/ayusman/pinchvol/internal/plugin"
	"github.com/ayusman/pinchvol/internal/server"
	"github.com/ayusman/pinchvol/internal/store"
	"github.com/ayusman/pinchvol/internal/tray"
)

func main() {
	consumer.Default = consumer.NewWriter(os.Stderr)

	lv := value.NewProvider(native.DefaultProvider)
	lv.Consumer.Formatter.Codec = value.MappingFormatterCodec{
		"text": formatter.NewText(func(v *formatter.Text) {
			bv := true
			v.AllowMultiLineMessage = &bv
			v.MultiLineMessageAfterFields = &bv
		}),
		"json": formatter.NewJson(),
	}

	a := app.NewApp()

	cmd := kingpin.New("pinchvol", "Controls the system volume by the distance between thumb and index finger.")
	a.SetupConfiguration(cmd)

	cmd.Flag("log.level", "").
		SetValue(lv.Level)
	cmd.Flag("log.format", "").
		Default("text").
		SetValue(lv.Consumer.Formatter)
	cmd.Flag("log.color", "").
		Default(colorMode(os.Stderr)).
		SetValue(lv.Consumer.Formatter.ColorMode)

	cmd.Command("run", "Runs the control loop until the cancel key is pressed or the process is terminated.").
		Default().
		Action(func(*kingpin.ParseContext) error {
			return run(a)
		})

	sessionsCmd := cmd.Command("sessions", "Lists the most recent sessions recorded in the journal.")
	limit := sessionsCmd.Flag("limit", "Maximum number of sessions to show; 0 shows all.").
		Short('n').
		Default("20").
		Int()
	sessionsCmd.Action(func(*kingpin.ParseContext) error {
		return listSessions(a, os.Stdout, *limit)
	})

	cmd.Command("plugins", "Lists the actuator plugins found in the plugin directory.").
		Action(func(*kingpin.ParseContext) error {
			return listPlugins(a, os.Stdout)
		})

	kingpin.MustParse(cmd.Parse(os.Args[1:]))
}

func run(a *app.App) error {
	config, err := a.Configuration()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(c)
		select {
		case <-c:
			log.Info("Terminated. Going down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if config.Listen != "" {
		srv, closeJournal, err := newServer(a, config)
		if err != nil {
			return err
		}
		defer closeJournal()
		if _, err := srv.Start(config.Listen); err != nil {
			return fmt.Errorf("cannot start status server on %s: %w", config.Listen, err)
		}
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				log.WithError(err).Warn("Cannot stop status server.")
			}
		}()
	}

	if !config.Tray {
		return a.Execute(ctx)
	}

	t := tray.New(a, a.Monitor, app.UnitOf(config.Actuator.Kind))
	t.OnQuit(cancel)
	var rErr error
	t.Run(func() {
		rErr = a.Execute(ctx)
	})
	return rErr
}

// newServer creates the status server. It reads the journal through its own
// connection so that sessions stay browsable while the loop writes.
func newServer(a *app.App, config app.Configuration) (*server.Server, func(), error) {
	sc := server.Config{
		StaticDir:  findWebDir(),
		Monitor:    a.Monitor,
		Controller: a,
	}
	closeJournal := func() {}
	if !config.Journal.Disabled {
		st, err := store.New(config.Journal.File)
		if err != nil {
			return nil, nil, err
		}
		sc.Store = st
		closeJournal = func() { _ = st.Close() }
	}
	if sc.StaticDir != "" {
		log.With("dir", sc.StaticDir).Info("Serving static files.")
	}
	return server.New(sc), closeJournal, nil
}

func listSessions(a *app.App, w io.Writer, limit int) error {
	config, err := a.Configuration()
	if err != nil {
		return err
	}
	if config.Journal.Disabled {
		return fmt.Errorf("journal is disabled")
	}

	st, err := store.New(config.Journal.File)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	sessions, err := st.Sessions().List(limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		_, err = fmt.Fprintln(w, "No sessions recorded.")
		return err
	}

	_, err = fmt.Fprintln(w, renderTable(sessionHeaders, sessionRows(sessions), sessionAligns))
	return err
}

func listPlugins(a *app.App, w io.Writer) error {
	config, err := a.Configuration()
	if err != nil {
		return err
	}

	manager := plugin.NewManager(config.Actuator.PluginDir)
	if err := manager.Discover(); err != nil {
		return err
	}

	plugins := manager.List()
	if len(plugins) == 0 {
		_, err = fmt.Fprintf(w, "No plugins found in %s.\n", manager.PluginDir())
		return err
	}

	_, err = fmt.Fprintln(w, renderTable(pluginHeaders, pluginRows(plugins), nil))
	return err
}

func colorMode(f *os.File) string {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return "always"
	}
	return "never"
}

// findWebDir searches for the status page in common locations.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	homeWebDir := filepath.Join(homeDir, ".pinchvol", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
