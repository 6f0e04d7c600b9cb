// Command joybridge runs the Nintendo Switch controller-to-SlimeVR bridge:
// a device reader per physical controller, the fusion-and-uplink loop, and
// a local control/status HTTP surface for the (out-of-scope) UI layer.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/slimevr-wrangler/joybridge/internal/config"
	"github.com/slimevr-wrangler/joybridge/internal/configpaths"
	"github.com/slimevr-wrangler/joybridge/internal/controlapi"
	"github.com/slimevr-wrangler/joybridge/internal/log"
	"github.com/slimevr-wrangler/joybridge/internal/reader"
	"github.com/slimevr-wrangler/joybridge/internal/status"
	"github.com/slimevr-wrangler/joybridge/internal/uplink"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
)

// CLI is the root Kong command tree. It is intentionally small: the bridge
// has one long-running mode (Bridge) plus config scaffolding, unlike the
// teacher's multi-subcommand USB-IP server/proxy split.
type CLI struct {
	Log struct {
		Level   string `help:"Log level: trace, debug, info, warn, error" enum:"trace,debug,info,warn,error" default:"info" env:"JOYBRIDGE_LOG_LEVEL"`
		File    string `help:"Write logs to this file in addition to stderr" env:"JOYBRIDGE_LOG_FILE"`
		RawFile string `help:"Write raw SlimeVR packet traces to this file" env:"JOYBRIDGE_RAW_LOG_FILE"`
	} `embed:"" prefix:"log."`

	Bridge BridgeCmd       `cmd:"" default:"1" help:"Run the controller-to-SlimeVR bridge"`
	Config config.ConfigCmd `cmd:"" help:"Configuration file scaffolding"`
}

// BridgeCmd's flags become the initial Settings snapshot; later changes
// arrive only through the control API, never by re-parsing flags.
type BridgeCmd struct {
	Address     string `help:"SlimeVR server address" default:"127.0.0.1:6969" env:"JOYBRIDGE_ADDRESS"`
	SendReset   bool   `help:"Forward a reset button press (release of Up or B) to the server" default:"true" env:"JOYBRIDGE_SEND_RESET"`
	KeepIDs     bool   `help:"Persist sensor ids across restarts" default:"false" env:"JOYBRIDGE_KEEP_IDS"`
	Synthetic   bool   `help:"Use the six-device synthetic test reader instead of real hardware" default:"false" env:"JOYBRIDGE_SYNTHETIC"`
	ControlAddr string `help:"Listen address for the local control/status API" default:"127.0.0.1:47590" env:"JOYBRIDGE_CONTROL_ADDR"`
	EmulatedMAC string `help:"MAC address announced in the handshake, as six colon-separated hex octets" default:"02:00:00:00:00:01" env:"JOYBRIDGE_EMULATED_MAC"`
}

func (b *BridgeCmd) toSettings() *config.Settings {
	s := config.Default()
	s.Address = b.Address
	s.SendReset = b.SendReset
	s.KeepIDs = b.KeepIDs
	if mac, err := net.ParseMAC(b.EmulatedMAC); err == nil && len(mac) == 6 {
		copy(s.EmulatedMAC[:], mac)
	}
	return s
}

// Run is invoked by Kong when "bridge" (or no subcommand) is selected.
func (b *BridgeCmd) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return b.run(ctx, logger, rawLogger)
}

func (b *BridgeCmd) run(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	store := config.NewStore(b.toSettings())
	events := make(chan reader.Event, 4096)
	statusFeed := status.NewFeed()

	readerStop := make(chan struct{})
	if b.Synthetic {
		logger.Info("using synthetic six-device test reader")
		readerStop = reader.SpawnSynthetic(events)
	} else {
		supervisor := &reader.Supervisor{
			Out: events,
			GyroScaleFactor: func(serial string) float64 {
				return store.Load().GyroScaleFactor(serial)
			},
			Logger: logger,
		}
		go supervisor.Run(readerStop)
	}

	loop := &uplink.Loop{Settings: store, Events: events, Status: statusFeed, Logger: logger, RawLogger: rawLogger}
	loopDone := make(chan error, 1)
	loopStop := make(chan struct{})
	go func() { loopDone <- loop.Run(loopStop) }()

	configDir, err := configpaths.DefaultConfigDir()
	if err != nil {
		logger.Warn("could not resolve config dir for control API token; using cwd", "error", err)
		configDir = "."
	}
	token, created, err := controlapi.LoadOrCreateToken(configDir)
	if err != nil {
		return err
	}
	if created {
		logger.Info("generated new control API token", "dir", configDir)
	}

	apiSrv := &controlapi.Server{
		Addr: b.ControlAddr, Token: token, Settings: store, Status: statusFeed, Logger: logger,
	}
	apiErrCh := make(chan error, 1)
	go func() { apiErrCh <- apiSrv.ListenAndServe() }()

	logger.Info("joybridge running", "server_address", b.Address, "control_address", b.ControlAddr)

	select {
	case <-ctx.Done():
		close(readerStop)
		close(loopStop)
		<-loopDone
		return nil
	case err := <-loopDone:
		close(readerStop)
		return err
	case err := <-apiErrCh:
		close(readerStop)
		close(loopStop)
		<-loopDone
		return err
	}
}

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("joybridge"),
		kong.Description("Nintendo Switch controller to SlimeVR tracker bridge"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closeFiles, err := log.SetupLogger(cli.Log.Level, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() {
		for _, c := range closeFiles {
			_ = c.Close()
		}
	}()

	var rawLogger log.RawLogger
	if cli.Log.RawFile != "" {
		f, err := os.OpenFile(cli.Log.RawFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Error("failed to open raw log file", "file", cli.Log.RawFile, "error", err)
			rawLogger = log.NewRaw(nil)
		} else {
			rawLogger = log.NewRaw(f)
			closeFiles = append(closeFiles, f)
		}
	} else if cli.Log.Level == "trace" {
		rawLogger = log.NewRaw(os.Stdout)
	} else {
		rawLogger = log.NewRaw(nil)
	}

	kctx.Bind(logger)
	kctx.BindTo(rawLogger, (*log.RawLogger)(nil))

	err = kctx.Run()
	kctx.FatalIfErrorf(err)
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v := os.Getenv("JOYBRIDGE_CONFIG"); v != "" {
		return v
	}
	return ""
}
