// Clash Geosite
// Converts v2fly domain-list-community data into Clash rule providers
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xxxbrian/clash-geosite/internal/build"
	"github.com/xxxbrian/clash-geosite/internal/cache"
	"github.com/xxxbrian/clash-geosite/internal/config"
	"github.com/xxxbrian/clash-geosite/internal/converter"
	"github.com/xxxbrian/clash-geosite/internal/geoip"
	"github.com/xxxbrian/clash-geosite/internal/lint"
	"github.com/xxxbrian/clash-geosite/internal/server"
	"github.com/xxxbrian/clash-geosite/internal/source"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "clash-geosite",
	Short:         "Convert v2fly domain-list-community data into Clash rule providers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return applyFlags(cmd)
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert data files into classical and domain rule-provider files",
	RunE:  runConvert,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve rule providers over HTTP, converting on demand",
	RunE:  runServe,
}

var lintCmd = &cobra.Command{
	Use:   "lint [files...]",
	Short: "Report invalid values and rules each behavior will drop",
	RunE:  runLint,
}

var lintStrict bool

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("data", "", "data directory (default domain-list-community/data)")
	rootCmd.PersistentFlags().String("archive", "", "local domain-list-community zip snapshot, used instead of --data")

	convertCmd.Flags().StringP("output", "o", "", "output directory (default output)")
	convertCmd.Flags().Bool("clean", true, "remove the output directory before writing")
	convertCmd.Flags().Bool("with-policy", false, "append a policy to every classical rule")
	convertCmd.Flags().String("policy", "", "policy appended with --with-policy (default PROXY)")
	convertCmd.Flags().String("geoip-db", "", "local MMDB file to build geoip-<code> providers from")
	convertCmd.Flags().StringSlice("geoip-codes", nil, "geoip codes to export (default all)")

	serveCmd.Flags().String("listen", "", "listen address (default :8080)")
	serveCmd.Flags().String("base-url", "", "public base URL used in index.json")
	serveCmd.Flags().String("repo-url", "", "URL / redirects to")
	serveCmd.Flags().Duration("result-ttl", 0, "rendered result cache TTL (default 24h)")
	serveCmd.Flags().Bool("watch", true, "watch the data directory for changes")
	serveCmd.Flags().String("policy", "", "policy used for ?policy without a value (default PROXY)")

	lintCmd.Flags().BoolVar(&lintStrict, "strict", false, "exit non-zero when findings are reported")

	rootCmd.AddCommand(convertCmd, serveCmd, lintCmd)
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Lookup(name) != nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("data", func() (e error) { cfg.DataDir, e = flags.GetString("data"); return })
	set("archive", func() (e error) { cfg.Archive, e = flags.GetString("archive"); return })
	set("output", func() (e error) { cfg.OutputDir, e = flags.GetString("output"); return })
	set("clean", func() (e error) { cfg.Clean, e = flags.GetBool("clean"); return })
	set("with-policy", func() (e error) { cfg.Policy.Enabled, e = flags.GetBool("with-policy"); return })
	set("policy", func() (e error) { cfg.Policy.Name, e = flags.GetString("policy"); return })
	set("geoip-db", func() (e error) { cfg.GeoIP.Database, e = flags.GetString("geoip-db"); return })
	set("geoip-codes", func() (e error) { cfg.GeoIP.Codes, e = flags.GetStringSlice("geoip-codes"); return })
	set("listen", func() (e error) { cfg.Server.Listen, e = flags.GetString("listen"); return })
	set("base-url", func() (e error) { cfg.Server.BaseURL, e = flags.GetString("base-url"); return })
	set("repo-url", func() (e error) { cfg.Server.RepoURL, e = flags.GetString("repo-url"); return })
	set("result-ttl", func() (e error) { cfg.Server.ResultTTL, e = flags.GetDuration("result-ttl"); return })
	set("watch", func() (e error) { cfg.Server.Watch, e = flags.GetBool("watch"); return })
	if err != nil {
		return err
	}
	return cfg.Validate()
}

// openSource returns the archive source when configured, the data directory otherwise.
func openSource() source.Source {
	if cfg.Archive != "" {
		return source.NewArchiveSource(cfg.Archive, cfg.ArchivePrefix)
	}
	return source.NewDirSource(cfg.DataDir, log.Default())
}

func runConvert(cmd *cobra.Command, args []string) error {
	fsys, version, err := openSource().Open()
	if err != nil {
		return err
	}
	log.Printf("Using data version %s", version)

	opts := build.Options{
		OutputDir: cfg.OutputDir,
		Files:     args,
		Clean:     cfg.Clean,
		Converter: converter.Options{
			WithPolicy: cfg.Policy.Enabled,
			Policy:     cfg.Policy.Name,
		},
	}
	if cfg.GeoIP.Database != "" {
		g := geoip.NewGeoIP(log.Default())
		if err := g.LoadFile(cfg.GeoIP.Database); err != nil {
			return err
		}
		opts.GeoIP = g
		opts.GeoIPCodes = cfg.GeoIP.Codes
	}

	summary, err := build.Run(cmd.Context(), fsys, opts, log.Default())
	if err != nil {
		return err
	}

	fmt.Printf("\nDone! Output saved to %s/\n", cfg.OutputDir)
	fmt.Printf("  - Processed: %d, skipped: %d, failed: %d, files written: %d\n",
		len(summary.Processed), len(summary.Skipped), len(summary.Failed), summary.Written)
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d data files could not be converted", len(summary.Failed))
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	src := openSource()
	if dirSrc, ok := src.(*source.DirSource); ok && cfg.Server.Watch {
		if err := dirSrc.Watch(ctx); err != nil {
			log.Printf("Watch disabled: %v", err)
		}
	}

	resultCache := cache.NewResultCache(cfg.Server.ResultTTL)
	srv := server.NewServer(src, resultCache, server.Config{
		BaseURL: cfg.Server.BaseURL,
		RepoURL: cfg.Server.RepoURL,
		Policy:  cfg.Policy.Name,
	})

	// Start cache cleanup goroutine
	go func() {
		ticker := time.NewTicker(cfg.Server.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				resultCache.Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting Clash-Geosite server on %s", cfg.Server.Listen)
	log.Printf("Result cache TTL: %v", cfg.Server.ResultTTL)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func runLint(cmd *cobra.Command, args []string) error {
	fsys, _, err := openSource().Open()
	if err != nil {
		return err
	}

	files := args
	if len(files) == 0 {
		if files, err = build.ListDataFiles(fsys); err != nil {
			return err
		}
	}

	loader := converter.NewLoader(fsys, log.Default())
	findings := 0
	for _, name := range files {
		rules, err := loader.Load(name)
		if err != nil {
			fmt.Printf("%s: %v\n", name, err)
			findings++
			continue
		}

		report := lint.Check(name, rules)
		for _, f := range report.Findings {
			fmt.Printf("%s: %s\n", name, f)
		}
		findings += len(report.Findings)

		kinds := make([]string, 0, len(report.ByKind))
		for kind, n := range report.ByKind {
			kinds = append(kinds, fmt.Sprintf("%s=%d", kind, n))
		}
		sort.Strings(kinds)
		fmt.Printf("%s: %d rules %v, classical drops %d, domain drops %d\n",
			name, report.Rules, kinds, report.ClassicalDropped, report.DomainDropped)
	}

	if lintStrict && findings > 0 {
		return fmt.Errorf("%d findings", findings)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("Error: %v", err)
		stop()
		os.Exit(1)
	}
}
