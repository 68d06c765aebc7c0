package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/widyatma/loratag/internal/config"
	"github.com/widyatma/loratag/internal/logger"
	"github.com/widyatma/loratag/pkg/server"
)

var (
	outputDirName string
	prefix        string
	resume        bool
	autoSave      int
	host          string
	port          int
	watch         bool
)

var serveCmd = &cobra.Command{
	Use:   "serve <input-dir>",
	Short: "Serve the tagging UI for a directory of images",
	Long: `Serve scans the input directory for images, renames them into the
output directory with sequential filenames, and exposes the tagging
interface over HTTP and websocket until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&outputDirName, "output", "o", "", "output directory name inside the input directory")
	serveCmd.Flags().StringVarP(&prefix, "prefix", "p", "", "filename prefix for renamed images")
	serveCmd.Flags().BoolVarP(&resume, "resume", "r", true, "resume from an existing session file")
	serveCmd.Flags().IntVarP(&autoSave, "auto-save", "a", 0, "auto-save interval in seconds")
	serveCmd.Flags().StringVar(&host, "host", "", "bind address")
	serveCmd.Flags().IntVar(&port, "port", 0, "listen port")
	serveCmd.Flags().BoolVar(&watch, "watch", false, "watch the input directory for new images")
}

func runServe(cmd *cobra.Command, args []string) error {
	// A .env next to the working directory can seed LORATAG_ variables.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	inputDir, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve input directory: %w", err)
	}
	cfg.Workspace.InputDir = inputDir

	applyFlagOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return err
	}
	defer lg.Close()
	zl := lg.GetZerolog()

	app, err := server.NewApp(cfg, zl)
	if err != nil {
		return err
	}

	zl.Info().Str("inputDir", cfg.Workspace.InputDir).Msg("Scanning input directory")
	if err := app.ScanAndProcess(context.Background()); err != nil {
		return err
	}

	srv, err := server.NewServer(cfg, app, zl)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	zl.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Ready; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	return srv.Stop()
}

// applyFlagOverrides layers explicitly set flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("output") {
		cfg.Workspace.OutputDirName = outputDirName
	}
	if cmd.Flags().Changed("prefix") {
		cfg.Workspace.Prefix = prefix
	}
	if cmd.Flags().Changed("resume") {
		cfg.Session.Resume = resume
	}
	if cmd.Flags().Changed("auto-save") {
		cfg.Session.AutoSaveInterval = autoSave
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if cmd.Flags().Changed("watch") {
		cfg.Workspace.Watch = watch
	}
	if cmd.Flags().Changed("log-level") || logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
