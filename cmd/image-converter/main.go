package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-converter-go/internal/batch"
	"image-converter-go/internal/config"
	"image-converter-go/internal/converter"
	"image-converter-go/internal/history"
	"image-converter-go/internal/imageinfo"
	"image-converter-go/internal/logger"
	"image-converter-go/internal/statistics"
	"image-converter-go/internal/store"
	"image-converter-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	verbose     bool
	quiet       bool
	backendName string
	storePath   string
	format      string
	quality     int
	outputDir   string
	port        int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "image-converter",
	Short: "Convert images to WebP, JPEG, PNG or AVIF",
	Long: `Image Converter re-encodes images into WebP, JPEG, PNG or AVIF at a chosen
quality and reports how much space each conversion saved.

Features:
- Sequential batch conversion with per-file status
- ImageMagick, libvips or pure Go encoding backends
- Persistent history of the last 100 conversions
- Remembers the last output directory
- HTTP API with live progress over WebSocket`,
}

// convertCmd converts one or more files with the same settings.
var convertCmd = &cobra.Command{
	Use:   "convert <file>...",
	Short: "Convert images one after another",
	Long: `Converts every given file in order with the same format and quality.
Output files are written next to the source unless --output is given.
A failed file does not stop the remaining conversions.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd.Context(), args)
	},
}

// infoCmd prints image properties.
var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Show format, dimensions and size of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(args[0])
	},
}

// historyCmd lists recorded conversions.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent successful conversions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory()
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded conversions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistoryClear()
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts an HTTP server exposing conversion, batch, history and image info
endpoints under /api, with batch progress pushed to WebSocket clients on /ws.

The server listens on http://localhost:<port> (default: 8080)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "conversion backend (imaging, magick, vips)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "path of the JSON state file")

	convertCmd.Flags().StringVarP(&format, "format", "f", "", "output format (webp, jpg, png, avif)")
	convertCmd.Flags().IntVarP(&quality, "quality", "q", 0, "output quality 1-100 (default from config)")
	convertCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: next to each source)")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default 8080)")

	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}

// app holds the components shared by the commands.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	kv      *store.Store
	history *history.Store
}

// newApp loads configuration, the logger and the persisted state.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := setupLogger(cfg)

	kv, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	hist, err := history.Open(kv)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return &app{cfg: cfg, log: log, kv: kv, history: hist}, nil
}

func (a *app) converter() (*converter.Executor, error) {
	backend, err := converter.NewBackend(a.cfg.Backend.Name, a.cfg.BackendOptions())
	if err != nil {
		return nil, err
	}
	return converter.NewExecutor(backend, a.log), nil
}

// runConvert converts args sequentially and prints one line per file.
func runConvert(ctx context.Context, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	exec, err := a.converter()
	if err != nil {
		return err
	}

	session := batch.NewSession(batch.Settings{
		Quality:         a.cfg.Defaults.Quality,
		OutputDirectory: a.cfg.Defaults.OutputDirectory,
		Format:          converter.Format(a.cfg.Defaults.Format),
	})
	session.Add(args...)

	runner := batch.NewRunner(exec, a.history, a.log)
	runner.SetDirectoryRecorder(a.kv)
	runner.SetUpdateCallback(func(item batch.Item) {
		if quiet {
			return
		}
		switch item.Status {
		case batch.StatusConverted:
			fmt.Printf("✓ %s -> %s (%s -> %s, %s%%)\n", item.Path, item.OutputPath,
				statistics.FormatBytes(item.OriginalSize), statistics.FormatBytes(item.NewSize), item.CompressionRatio)
		case batch.StatusError:
			fmt.Printf("✗ %s: %s\n", item.Path, item.Error)
		}
	})

	stats := runner.Run(ctx, session)

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		if stats.FilesFailed > 0 {
			fmt.Println(stats.GetErrorSummary())
		}
	}

	if stats.FilesFailed > 0 {
		return fmt.Errorf("%d of %d conversions failed", stats.FilesFailed, stats.TotalFiles)
	}
	return nil
}

// runInfo prints the properties of one image.
func runInfo(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	inspector := imageinfo.NewInspector(setupLogger(cfg))
	info, err := inspector.Inspect(filePath)
	if err != nil {
		return fmt.Errorf("error getting image info: %w", err)
	}

	fmt.Printf("File:        %s\n", filePath)
	fmt.Printf("Format:      %s\n", info.Format)
	fmt.Printf("Dimensions:  %dx%d\n", info.Width, info.Height)
	fmt.Printf("Size:        %s\n", statistics.FormatBytes(info.Size))
	if info.Orientation != 0 {
		fmt.Printf("Orientation: %d\n", info.Orientation)
	}
	return nil
}

// runHistory prints the recorded conversions.
func runHistory() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	items := a.history.List()
	if len(items) == 0 {
		fmt.Println("No conversions recorded")
		return nil
	}

	for _, item := range items {
		fmt.Printf("%s  %s -> %s  %s -> %s (%s%%)\n", item.Timestamp, item.OriginalPath, item.OutputPath,
			statistics.FormatBytes(item.OriginalSize), statistics.FormatBytes(item.NewSize), item.CompressionRatio)
	}
	return nil
}

func runHistoryClear() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.history.Clear(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	if !quiet {
		fmt.Println("History cleared")
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe() error {
	a, err := newApp()
	if err != nil {
		return err
	}

	exec, err := a.converter()
	if err != nil {
		return err
	}

	server := web.NewServer(a.cfg, a.log, exec, a.history, a.kv, imageinfo.NewInspector(a.log))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(a.cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			a.log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("Image Converter API started with the %s backend\n", exec.Backend().Name())
	fmt.Printf("Listening on http://localhost:%d\n", a.cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if backendName != "" {
		cfg.Backend.Name = backendName
	}
	if storePath != "" {
		cfg.Storage.Path = storePath
	}
	if format != "" {
		cfg.Defaults.Format = format
	}
	if quality != 0 {
		cfg.Defaults.Quality = quality
	}
	if outputDir != "" {
		cfg.Defaults.OutputDirectory = outputDir
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    verbose,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
