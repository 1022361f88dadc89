// Command fileshared runs the multi-user file-share server: a TCP
// line protocol on one port, metadata in SQLite, per-user trees under
// a root directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/TiepKun/fileshare/internal/audit"
	"github.com/TiepKun/fileshare/internal/config"
	"github.com/TiepKun/fileshare/internal/db"
	"github.com/TiepKun/fileshare/internal/fsutil"
	"github.com/TiepKun/fileshare/internal/logging"
	"github.com/TiepKun/fileshare/internal/metrics"
	"github.com/TiepKun/fileshare/internal/quota"
	"github.com/TiepKun/fileshare/internal/server"
	"github.com/TiepKun/fileshare/internal/version"
)

// main is the process entry point and forwards to run for testable logic.
func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := flag.NewFlagSet("fileshared", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "path to fileshared.yaml (when set, other flags are overrides)")
		showVersion = fs.Bool("version", false, "print version and exit")
		logLevel    = fs.String("log-level", "", "log level: debug|info|warning|error")
		logJSON     = fs.Bool("log-json", false, "log in JSON instead of text")
		dbPath      = fs.String("db", "", "sqlite database path")
		rootDir     = fs.String("root", "", "root directory for user trees")
		bindAddr    = fs.String("bind", "", "bind address")
		port        = fs.Int("port", 0, "TCP port to listen on")
		auditPath   = fs.String("audit-log", "", "audit log file path")
		accountFile = fs.String("account-file", "", "legacy plaintext account file to import at startup")
		metricsOn   = fs.Bool("metrics", false, "expose Prometheus metrics over HTTP")
		metricsAddr = fs.String("metrics-addr", "", "metrics listen address (host:port)")
	)
	if err := fs.Parse(argv[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("fileshared %s\n", version.Version)
		return nil
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	}

	// CLI overrides config; a bare positional argument is the port,
	// matching the old server's invocation.
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}
	if *dbPath != "" {
		cfg.DB.Path = *dbPath
	}
	if *rootDir != "" {
		cfg.RootDir = *rootDir
	}
	if *bindAddr != "" {
		cfg.Listen.Bind = *bindAddr
	}
	if *port != 0 {
		cfg.Listen.Port = *port
	}
	if *auditPath != "" {
		cfg.AuditLogPath = *auditPath
	}
	if *accountFile != "" {
		cfg.AccountFile = *accountFile
	}
	if *metricsOn {
		cfg.Metrics.Enable = true
	}
	if args := fs.Args(); len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid port argument %q", args[0])
		}
		cfg.Listen.Port = p
	}

	lg, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		JSON:       cfg.Log.JSON,
		SetDefault: true,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := db.Open(ctx, cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer d.Close()

	al, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer al.Close()

	srv, err := server.New(server.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Listen.Bind, cfg.Listen.Port),
		RootDir:      cfg.RootDir,
		DB:           d,
		Quota:        quota.NewManager(),
		Audit:        al,
		Logger:       lg,
		DefaultQuota: cfg.DefaultQuotaMB << 20,
	})
	if err != nil {
		return err
	}

	if cfg.AccountFile != "" {
		if !fsutil.FileExists(cfg.AccountFile) {
			lg.Warn("account file not found, skipping import", "path", cfg.AccountFile)
		} else if err := srv.ImportLegacyAccounts(ctx, cfg.AccountFile); err != nil {
			return fmt.Errorf("importing accounts: %w", err)
		}
	}

	if cfg.Metrics.Enable {
		addr := *metricsAddr
		if addr == "" {
			addr = fmt.Sprintf("%s:%d", cfg.Metrics.Bind, cfg.Metrics.Port)
		}
		go func() {
			if err := metrics.ListenAndServe(ctx, addr); err != nil {
				lg.Error("metrics server failed", "error", err)
			}
		}()
		lg.Info("metrics enabled", "addr", addr)
	}

	return srv.ListenAndServe(ctx)
}
