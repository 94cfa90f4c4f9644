package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	ddns "github.com/Travis-Britz/cfddns"
	"github.com/cloudflare/cloudflare-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logrus.Fatal(err)
	}
}

func run(args []string) error {
	var (
		configPath string
		keyFile    string
		verbose    bool
	)
	flags := flag.NewFlagSet("cfddns", flag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "Path to an INI config file; environment variables take priority")
	flags.StringVar(&keyFile, "k", filepath.Join(os.Getenv("HOME"), ".cloudflare"), "Path to cloudflare API credentials file, used when API_TOKEN is not set")
	flags.BoolVar(&verbose, "v", false, "Enable verbose logging")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// a missing .env file is fine
	_ = godotenv.Load()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg, verbose)

	token := cfg.APIToken
	if token == "" {
		if token, err = tokenFromKeyFile(keyFile, logger); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reconciler, err := ddns.New(cfg.ZoneID,
		ddns.UsingCloudflare(token),
		ddns.UsingWebResolver(cfg.IPURLs...),
		ddns.UsingDomains(ddns.DomainFile(cfg.DomainFile)),
		ddns.WithLogger(logger),
		ddns.WithMetrics(reg),
	)
	if err != nil {
		return fmt.Errorf("error creating reconciler: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ddns.RunDaemon(ctx, reconciler, cfg.RunEvery, cfg.CleanupEvery)
	})
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Infof("Serving metrics on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	switch {
	case errors.Is(err, ddns.ErrZoneNotFound):
		logger.WithField("severity", "critical").Errorf("Could not find zone %s, exiting: %s", cfg.ZoneID, err)
		return err
	case errors.Is(err, context.Canceled):
		logger.Info("Shutting down")
		return nil
	}
	return err
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// tokenFromKeyFile reads the API token from path, running interactive setup first
// when the file does not exist and stdin is a terminal.
func tokenFromKeyFile(path string, logger logrus.FieldLogger) (string, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Infof("key file \"%s\" does not exist", path)
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return "", fmt.Errorf("API_TOKEN is not set and key file \"%s\" does not exist", path)
		}
		if err := runSetup(path, logger); err != nil {
			return "", fmt.Errorf("setup: %w", err)
		}
	}
	if err := verifyPermissions(path); err != nil {
		return "", err
	}
	key, err := readKey(path)
	if err != nil {
		return "", err
	}
	logger.Debug("successfully read key from key file")
	return key, nil
}

func runSetup(path string, logger logrus.FieldLogger) error {
	logger.Debug("running setup")
	fmt.Fprintf(os.Stderr, "Enter Cloudflare API Token: \n")
	bytekey, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	key := string(bytekey)

	api, err := cloudflare.NewWithAPIToken(key)
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("verifying token...")
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	logger.Info("token verified successfully")

	return writeKey(path, key)
}

func writeKey(path, key string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, key); err != nil {
		return fmt.Errorf("unable to write \"%s\": %w", path, err)
	}
	return nil
}

func readKey(path string) (key string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	if len(keyb) == 0 {
		return "", fmt.Errorf("key file \"%s\" is empty", path)
	}
	return string(keyb), nil
}

func verifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// 0400 is accepted too; secrets managers often mount keys read-only.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}
	return nil
}
