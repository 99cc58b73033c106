package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/albumport/albumport/internal/config"
	"github.com/albumport/albumport/internal/engine"
	"github.com/albumport/albumport/internal/ledger"
	"github.com/albumport/albumport/internal/reconcile"
	"github.com/albumport/albumport/internal/remote"
	"github.com/albumport/albumport/internal/scanner"
	"github.com/albumport/albumport/pkg/utils"
	"github.com/albumport/albumport/pkg/version"
)

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	app := &cli.App{
		Name:                 "albumport",
		Usage:                "Migrate local photo folders into remote albums, resumably",
		Version:              version.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Printf("Version:    %s\n", version.Version)
					fmt.Printf("Git commit: %s\n", version.GitCommit)
					fmt.Printf("Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "scan",
				Usage: "Scan the source root and classify folders against the ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Source root directory",
						Required: true,
					},
				},
				Action: runScan,
			},
			{
				Name:   "status",
				Usage:  "Show ledger statistics",
				Action: runStatus,
			},
			{
				Name:  "migrate",
				Usage: "Start or resume the transfer of selected folders",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "Source root directory",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "folder",
						Usage: "Folder name to migrate (repeatable; default: all incomplete)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel folder workers (overrides config)",
					},
				},
				Action: runMigrate,
			},
			{
				Name:  "import-state",
				Usage: "Import processed-folder state left by the legacy tool",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "Path to the legacy state file",
						Value: "processed_folders.json",
					},
				},
				Action: runImportState,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})).With().Timestamp().Logger().Level(level)
	return cfg, log, nil
}

func runScan(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer l.Close()

	folders, err := scanner.New(c.String("source"), cfg.Extensions, cfg.LibraryPrefixes, log).Scan()
	if err != nil {
		return err
	}
	classifications, err := reconcile.Classify(l, folders)
	if err != nil {
		return err
	}

	fmt.Printf("%-30s %-12s %8s %8s %10s\n", "FOLDER", "STATE", "FILES", "PENDING", "SIZE")
	for _, cl := range classifications {
		fmt.Printf("%-30s %-12s %8d %8d %10s\n",
			cl.Folder.Name,
			cl.State,
			len(cl.Folder.Files),
			len(cl.Pending),
			utils.FormatSize(cl.Folder.TotalSize()),
		)
	}
	return nil
}

func runStatus(c *cli.Context) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer l.Close()

	stats, err := l.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Ledger: %s\n", cfg.LedgerPath)
	fmt.Printf("Albums: %d\n", stats.Albums)
	fmt.Printf("Uploaded files: %d (%s)\n", stats.UploadedFiles, utils.FormatSize(stats.UploadedSize))
	return nil
}

func runMigrate(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if w := c.Int("workers"); w > 0 {
		cfg.Workers = w
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer l.Close()

	folders, err := scanner.New(c.String("source"), cfg.Extensions, cfg.LibraryPrefixes, log).Scan()
	if err != nil {
		return err
	}
	classifications, err := reconcile.Classify(l, folders)
	if err != nil {
		return err
	}
	queue, err := reconcile.Select(classifications, c.StringSlice("folder"))
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		fmt.Println("Nothing to do: all selected folders are complete")
		return nil
	}

	client, err := buildClient(ctx, cfg, log)
	if err != nil {
		return err
	}

	var pendingFiles, pendingSize int64
	for _, cl := range queue {
		pendingFiles += int64(len(cl.Pending))
		for _, f := range cl.Pending {
			pendingSize += f.Size
		}
	}
	fmt.Printf("Migrating %d folder(s), %d file(s) (%s) pending\n",
		len(queue), pendingFiles, utils.FormatSize(pendingSize))

	eng := engine.New(l, client, engine.Options{Workers: cfg.Workers, Logger: log})

	start := time.Now()
	bar := pb.New64(pendingSize)
	bar.Set(pb.Bytes, true)
	bar.Start()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range eng.Events() {
			switch ev.Stage {
			case engine.StageUploaded:
				bar.Add64(ev.Size)
			case engine.StageFolderFailed:
				log.Warn().Err(ev.Err).Str("folder", ev.Folder).Msg("folder failed; will retry on next run")
			}
		}
	}()

	runErr := eng.Run(ctx, queue)
	<-done
	bar.Finish()

	if runErr != nil {
		return runErr
	}
	fmt.Printf("Migration completed in %s\n", utils.FormatDuration(time.Since(start)))
	return nil
}

// legacyState is the processed_folders.json format written by the
// predecessor tool: folder path -> status.
type legacyState map[string]string

func runImportState(c *cli.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	path := c.String("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading legacy state %s: %w", path, err)
	}
	var state legacyState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parsing legacy state %s: %w", path, err)
	}

	var processed []string
	for folderPath, status := range state {
		if status == "processed" {
			processed = append(processed, filepath.Base(folderPath))
		}
	}
	if len(processed) == 0 {
		fmt.Println("No processed folders found in legacy state")
		return nil
	}

	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.ImportProcessed(processed); err != nil {
		return err
	}
	if err := os.Rename(path, path+".bak"); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("could not rename legacy state file")
	}
	fmt.Printf("Imported %d processed folder(s) from %s\n", len(processed), path)
	return nil
}

func buildClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (remote.Client, error) {
	var inner remote.Client
	switch cfg.Backend {
	case config.BackendPhotos:
		creds := remote.NewOAuthCredentials(cfg.TokenSource(ctx))
		inner = remote.NewPhotosClient(cfg.PhotosBaseURL, creds, log)
	case config.BackendS3:
		s3, err := remote.NewS3Client(remote.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Secure:    cfg.S3Secure,
		}, log)
		if err != nil {
			return nil, err
		}
		inner = s3
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	return remote.WithRetry(inner, remote.RetryConfig{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}), nil
}
