package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/config"
	"github.com/minios-linux/jsonloc/jsondoc"
	"github.com/minios-linux/jsonloc/langdetect"
	"github.com/minios-linux/jsonloc/ratelimit"
	"github.com/minios-linux/jsonloc/server"
	"github.com/minios-linux/jsonloc/settings"
)

// ---------------------------------------------------------------------------
// extract
// ---------------------------------------------------------------------------

func newExtractCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Print the translatable strings of a JSON document",
		Long: `Print every translatable string with its path, one per line:

  <path><TAB><value>

Use "-" to read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			_, leaves, err := jsondoc.Load(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return printLeaves(cmd.OutOrStdout(), leaves, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print leaves as a JSON array")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

func printLeaves(w io.Writer, leaves []jsondoc.Leaf, asJSON bool) error {
	if asJSON {
		arr := make([]any, len(leaves))
		for i, l := range leaves {
			obj := jsondoc.NewObject()
			obj.Set("path", l.Path)
			obj.Set("value", l.Value)
			arr[i] = obj
		}
		data, err := jsondoc.Marshal(arr, "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	for _, l := range leaves {
		value := strings.NewReplacer("\n", `\n`, "\t", `\t`).Replace(l.Value)
		if _, err := fmt.Fprintf(w, "%s\t%s\n", l.Path, value); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// providers
// ---------------------------------------------------------------------------

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers with default models and rate limits",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			provs := backend.DefaultProviders()

			fmt.Fprintf(w, "%-15s %-26s %-26s %8s %5s %6s  %s\n", "ID", "NAME", "MODEL", "REQ/MIN", "CONC", "BATCH", "AUTH")
			for _, id := range backend.ProviderIDs() {
				p := provs[id]
				lim := ratelimit.DefaultsFor(id)
				auth := "-"
				switch {
				case settings.GetAPIKey(id) != "":
					auth = colorGreen + "stored" + colorReset
				case p.RequiresKey:
					auth = colorYellow + "key required" + colorReset
				}
				model := p.DefaultModel
				if model == "" {
					model = "-"
				}
				fmt.Fprintf(w, "%-15s %-26s %-26s %8d %5d %6d  %s\n",
					p.ID, p.Name, model, lim.RequestsPerMinute, lim.MaxConcurrentRequests, lim.BatchSize(), auth)
			}
		},
	}
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func newServeCmd() *cobra.Command {
	var (
		a            translateArgs
		listen       string
		maxBody      int64
		readTimeout  time.Duration
		writeTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the translation HTTP API",
		Long: `Serve the translation HTTP API.

Endpoints:
  GET  /healthz        Liveness and the configured provider
  GET  /metrics        Prometheus metrics
  GET  /v1/providers   Provider table with default limits
  POST /v1/extract     Translatable strings of a document
  POST /v1/translate   Translate a document into one language

All requests share one rate limiter and one translation cache.

Examples:
  jsonloc serve --provider openai --listen :8080
  JSONLOC_PROVIDER=ollama jsonloc serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			log, err := newLogger(env, a.verbose)
			if err != nil {
				return err
			}
			file, err := loadProjectFile(a.configPath)
			if err != nil {
				return err
			}
			s, err := config.Resolve(overridesFromFlags(cmd, a), env, file, settings.Lookup)
			if errors.Is(err, config.ErrNoProvider) {
				return fmt.Errorf("no provider specified. Use --provider or JSONLOC_PROVIDER (%s)", strings.Join(backend.ProviderIDs(), ", "))
			}
			if err != nil {
				return err
			}

			if listen == "" {
				listen = env.ListenAddr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			srv, err := server.New(server.Options{
				Addr:         listen,
				Settings:     s,
				Detector:     langdetect.New(),
				Registry:     reg,
				Logger:       log,
				Tracer:       otel.Tracer("github.com/minios-linux/jsonloc/server"),
				MaxBodyBytes: maxBody,
				ReadTimeout:  readTimeout,
				WriteTimeout: writeTimeout,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logInfo("Listening on %s (provider: %s, strategy: %s)", listen, s.Provider, s.Strategy)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: JSONLOC_LISTEN_ADDR or :8080)")
	cmd.Flags().Int64Var(&maxBody, "max-body", 0, "Maximum request body in bytes (default: 8 MiB)")
	cmd.Flags().DurationVar(&readTimeout, "read-timeout", 0, "HTTP read timeout (default: 30s)")
	cmd.Flags().DurationVar(&writeTimeout, "write-timeout", 0, "HTTP write timeout (default: 10m)")
	cmd.Flags().StringVar(&a.configPath, "config", "", "Project file (default: ./"+config.FileName+" if present)")

	cmd.Flags().StringVar(&a.provider, "provider", "", "AI provider: "+strings.Join(backend.ProviderIDs(), ", "))
	cmd.Flags().StringVar(&a.model, "model", "", "Model name (default: provider default)")
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key (or JSONLOC_API_KEY env var)")
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "Custom API base URL")
	cmd.Flags().StringVar(&a.strategy, "strategy", "", "Default dispatch strategy: parallel or batched")
	cmd.Flags().StringVar(&a.prompt, "prompt", "", "Custom system prompt (use {{targetLang}} placeholder)")
	cmd.Flags().IntVar(&a.rpm, "rpm", 0, "Requests per minute (0 = provider default)")
	cmd.Flags().IntVar(&a.maxConcurrent, "max-concurrent", 0, "Maximum concurrent requests (0 = provider default)")
	cmd.Flags().IntVar(&a.batchSize, "batch-size", 0, "Strings per batched request (0 = provider default)")
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = provider default)")
	cmd.Flags().IntVar(&a.maxRetries, "max-retries", backend.DefaultMaxRetries, "Maximum retries per request")
	cmd.Flags().BoolVar(&a.verbose, "verbose", false, "Enable detailed logging")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeProviders)

	return cmd
}
