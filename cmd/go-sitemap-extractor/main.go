package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	gositemapextractor "github.com/kotylevskiy/go-sitemap-extractor"
	"github.com/kotylevskiy/go-sitemap-extractor/export"
	"github.com/spf13/cobra"
)

func main() {
	// Optional .env in the working directory; absence is fine.
	_ = godotenv.Load()

	var (
		output          string
		maxDepth        int
		timeout         time.Duration
		evasionAttempts int
		noEvasion       bool
		browser         bool
		discover        bool
		interactive     bool
		logIP           bool
		quiet           bool
		userAgent       string
		logLevel        string
	)

	cmd := &cobra.Command{
		Use:          "go-sitemap-extractor [flags] <sitemap path or URL>",
		Short:        "Extract page URLs from sitemaps, escalating past anti-bot blocks",
		SilenceUsage: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return errors.New("expected a single sitemap path or URL")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			level, err := resolveLogLevel(logLevel)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			source := ""
			if len(args) == 1 {
				source = args[0]
			}
			if interactive {
				answers, err := promptForRun(source)
				if err != nil {
					return err
				}
				source = answers.source
				if answers.output != "" {
					output = answers.output
				}
				browser = browser || answers.browser
			}
			if source == "" {
				return errors.New("missing sitemap path or URL (pass it as an argument or use --interactive)")
			}

			if logIP {
				logPublicIP(ctx, logger)
			}

			extractor := gositemapextractor.New(gositemapextractor.Options{
				UserAgent:         userAgent,
				PerRequestTimeout: timeout,
				EvasionAttempts:   evasionAttempts,
				MaxDepth:          maxDepth,
				DisableEvasion:    noEvasion,
				EnableBrowser:     browser,
				Confirmer:         terminalConfirmer{},
				Logger:            logger,
			})

			urls, err := extract(ctx, extractor, source, discover, logger)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return errors.New("no URLs found in the sitemap")
			}

			if !quiet {
				fmt.Fprintf(os.Stderr, "extracted %d URLs\n", len(urls))
			}
			if output != "" {
				if err := export.Write(output, urls); err != nil {
					return err
				}
				if !quiet {
					fmt.Fprintf(os.Stderr, "saved to %s\n", output)
				}
				return nil
			}
			for _, u := range urls {
				if _, err := fmt.Fprintln(os.Stdout, u); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "Write results to a file (txt, json, csv, xlsx, or yaml by extension)")
	flags.IntVar(&maxDepth, "max-depth", 0, "Maximum sitemap index depth (0 = default 20, negative = no limit)")
	flags.DurationVar(&timeout, "timeout", 0, "Per-request timeout (e.g. 5s, 500ms)")
	flags.IntVar(&evasionAttempts, "evasion-attempts", 0, "Evasion attempts before giving up (0 = default 3)")
	flags.BoolVar(&noEvasion, "no-evasion", false, "Disable the browser-like header and cookie fallback")
	flags.BoolVar(&browser, "browser", false, "Allow the interactive browser fallback for blocked sitemaps")
	flags.BoolVar(&discover, "discover", false, "Treat the argument as a site and discover its sitemaps first")
	flags.BoolVarP(&interactive, "interactive", "i", false, "Prompt for source, output file, and browser fallback")
	flags.BoolVar(&logIP, "log-ip", false, "Print the public IP used for requests before fetching")
	flags.BoolVar(&quiet, "quiet", false, "Suppress the result summary on stderr")
	flags.StringVar(&userAgent, "user-agent", "", "User-Agent for direct HTTP requests")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// extract resolves the CLI argument into a deduplicated URL list, either
// directly or through sitemap discovery for a bare site URL.
func extract(ctx context.Context, extractor *gositemapextractor.Extractor, arg string, discover bool, logger *slog.Logger) ([]string, error) {
	if !discover {
		results, err := extractor.Extract(ctx, gositemapextractor.ParseSource(arg))
		if err != nil {
			return nil, describeFailure(err)
		}
		return results.URLs(), nil
	}

	site, err := url.Parse(strings.TrimSpace(arg))
	if err != nil {
		return nil, fmt.Errorf("invalid site URL %q: %w", arg, err)
	}
	sources, err := extractor.Discover(ctx, site)
	if err != nil {
		return nil, err
	}

	var (
		urls []string
		seen = make(map[string]struct{})
	)
	for _, source := range sources {
		results, err := extractor.Extract(ctx, source)
		if err != nil {
			var cancelled *gositemapextractor.ErrCancelled
			if errors.As(err, &cancelled) {
				return nil, err
			}
			logger.Warn(fmt.Sprintf("skipping discovered sitemap %s: %v", source, err))
			continue
		}
		for _, u := range results.URLs() {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// describeFailure augments block errors with the manual workarounds.
func describeFailure(err error) error {
	var blocked *gositemapextractor.ErrBlocked
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w\nhint: retry with --browser, or download the sitemap manually and run against the local file", err)
	}
	return err
}

// logPublicIP reports the caller's public IP so blocks can be correlated
// with the address that triggered them.
func logPublicIP(ctx context.Context, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.ipify.org", nil)
	if err != nil {
		logger.Warn(fmt.Sprintf("public IP lookup failed: %v", err))
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Warn(fmt.Sprintf("public IP lookup failed: %v", err))
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil || resp.StatusCode != http.StatusOK {
		logger.Warn(fmt.Sprintf("public IP lookup returned status %d", resp.StatusCode))
		return
	}
	fmt.Fprintf(os.Stderr, "public IP used for requests: %s\n", strings.TrimSpace(string(data)))
}

func resolveLogLevel(flagValue string) (slog.Level, error) {
	value := strings.TrimSpace(flagValue)
	if value == "" {
		value = strings.TrimSpace(os.Getenv("GO_SITEMAP_EXTRACTOR_LOG_LEVEL"))
	}
	if value == "" {
		return slog.LevelError, nil
	}
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (use debug, info, warn, error)", value)
	}
}
