// cmdmenu turns a YAML file into a navigable terminal menu of shell
// commands, streaming each command's output live and optionally mirroring
// it to detached WebSocket clients.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cmdmenu/internal/config"
	"cmdmenu/internal/engine"
	"cmdmenu/internal/mirror"
	"cmdmenu/internal/tui"
	"cmdmenu/internal/watcher"
)

var version = "dev"

var (
	configPath string
	logPath    string
	mirrorAddr string
)

var rootCmd = &cobra.Command{
	Use:   "cmdmenu",
	Short: "Config-driven menu of shell commands with live output",
	Long: `cmdmenu reads a YAML menu definition and presents it as a navigable
terminal menu. Selecting an item runs its command through the shell and
streams stdout and stderr live, with stdin relayed from the keyboard.
One command runs at a time; the config file is watched and the menu
reloads on change.`,
	SilenceUsage: true,
	RunE:         runApp,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("%s: ok (%d sections)\n", configPath, len(cfg.MenuItems))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cmdmenu " + version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "path to the menu config")
	rootCmd.Flags().StringVar(&logPath, "log", "", "append debug logs to this file")
	rootCmd.Flags().StringVar(&mirrorAddr, "mirror", "", "serve the mirror on this address (overrides config)")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes to the log file when one is configured. The TUI owns
// the terminal, so there is no stderr fallback.
func newLogger() (*slog.Logger, func(), error) {
	if logPath == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { f.Close() }, nil
}

func runApp(cmd *cobra.Command, args []string) error {
	logger, closeLog, err := newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	reg := engine.NewRegistry(
		engine.WithShell(cfg.Shell),
		engine.WithRetention(cfg.RetentionLines),
		engine.WithLogger(logger),
	)
	defer reg.Shutdown()

	p := tui.NewProgram(cfg, reg, logger)

	addr := mirrorAddr
	if addr == "" && cfg.Mirror.Enabled {
		addr = cfg.Mirror.Listen
	}
	if addr != "" {
		srv := mirror.New(reg, logger)
		go func() {
			if err := srv.ListenAndServe(addr); err != nil {
				logger.Error("mirror server stopped", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		logger.Info("mirror listening", "addr", addr)
	}

	w, err := watcher.New(configPath, func(path string) {
		next, err := config.Load(path)
		if err != nil {
			logger.Warn("config reload skipped", "err", err)
			return
		}
		p.Send(tui.ConfigReloaded(next))
	}, logger)
	if err != nil {
		logger.Warn("config watching disabled", "err", err)
	} else {
		defer w.Close()
	}

	_, err = p.Run()
	return err
}
