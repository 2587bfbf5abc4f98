package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/config"
	"github.com/minios-linux/jsonloc/jsondoc"
	"github.com/minios-linux/jsonloc/langdetect"
	"github.com/minios-linux/jsonloc/ratelimit"
	"github.com/minios-linux/jsonloc/settings"
	"github.com/minios-linux/jsonloc/translate"
)

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	input, output, langs, sourceLang string
	provider, apiKey, model, baseURL string
	strategy, prompt, configPath     string
	rpm, maxConcurrent, batchSize    int
	maxRetries, retryFailed          int
	requestDelay, timeout            time.Duration
	proxy                            string
	verbose, dryRun                  bool
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a JSON document using AI",
		Long: `Translate every string of a JSON document into one or more languages.

Without --input, the files listed in .jsonloc.yaml are translated. The
output may contain {lang}, which is replaced by each target language
(default: <input dir>/<lang>.json).

Press Ctrl+C to stop. Requests already sent finish, then the partial
document is written with untranslated strings left in the source language.

Examples:
  # Translate into German and French
  jsonloc translate --provider openai --input locales/en.json --lang de,fr

  # Batch strings into numbered prompts, 30 per request
  jsonloc translate --provider gemini --input en.json --lang uk --strategy batched --batch-size 30

  # Retry failed strings twice more
  jsonloc translate --provider groq --input en.json --lang es --retry-failed 2

  # Dry run (no API calls, output equals input)
  jsonloc translate --input en.json --lang de --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, a)
		},
	}

	// Input / output
	cmd.Flags().StringVarP(&a.input, "input", "i", "", "Source JSON document")
	cmd.Flags().StringVarP(&a.output, "output", "o", "", "Output file or pattern with {lang}")
	cmd.Flags().StringVar(&a.langs, "lang", "", "Target languages (comma-separated)")
	cmd.Flags().StringVar(&a.sourceLang, "source-lang", "", "Source language (default: detect)")
	cmd.Flags().StringVar(&a.configPath, "config", "", "Project file (default: ./"+config.FileName+" if present)")

	// Provider selection
	cmd.Flags().StringVar(&a.provider, "provider", "", "AI provider: "+strings.Join(backend.ProviderIDs(), ", "))
	cmd.Flags().StringVar(&a.model, "model", "", "Model name (default: provider default)")
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key (or JSONLOC_API_KEY env var)")
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "Custom API base URL")

	// Translation behavior
	cmd.Flags().StringVar(&a.strategy, "strategy", "", "Dispatch strategy: parallel or batched")
	cmd.Flags().StringVar(&a.prompt, "prompt", "", "Custom system prompt (use {{targetLang}} placeholder)")
	cmd.Flags().IntVar(&a.retryFailed, "retry-failed", 0, "Extra rounds retrying failed strings")
	cmd.Flags().BoolVar(&a.verbose, "verbose", false, "Enable detailed logging")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Use the noop provider (no API calls)")

	// Rate limits
	cmd.Flags().IntVar(&a.rpm, "rpm", 0, "Requests per minute (0 = provider default)")
	cmd.Flags().IntVar(&a.maxConcurrent, "max-concurrent", 0, "Maximum concurrent requests (0 = provider default)")
	cmd.Flags().IntVar(&a.batchSize, "batch-size", 0, "Strings per batched request (0 = provider default)")
	cmd.Flags().DurationVar(&a.requestDelay, "request-delay", 0, "Extra delay between requests")

	// Network
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = provider default)")
	cmd.Flags().StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().IntVar(&a.maxRetries, "max-retries", backend.DefaultMaxRetries, "Maximum retries per request")

	_ = cmd.RegisterFlagCompletionFunc("provider", completeProviders)
	_ = cmd.RegisterFlagCompletionFunc("strategy", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"parallel\tone request per string", "batched\tnumbered multi-string prompts"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func completeProviders(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	provs := backend.DefaultProviders()
	out := make([]string, 0, len(provs))
	for _, id := range backend.ProviderIDs() {
		out = append(out, id+"\t"+provs[id].Name)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// overridesFromFlags keeps only the flags the user set.
func overridesFromFlags(cmd *cobra.Command, a translateArgs) config.Overrides {
	changed := cmd.Flags().Changed
	o := config.Overrides{
		Provider:          a.provider,
		Model:             a.model,
		APIKey:            a.apiKey,
		BaseURL:           a.baseURL,
		SourceLang:        a.sourceLang,
		Strategy:          a.strategy,
		Prompt:            a.prompt,
		RequestsPerMinute: a.rpm,
		MaxConcurrent:     a.maxConcurrent,
		BatchSize:         a.batchSize,
		RequestDelay:      a.requestDelay,
		Timeout:           a.timeout,
	}
	if a.langs != "" {
		o.TargetLangs = []string{a.langs}
	}
	if changed("max-retries") {
		n := a.maxRetries
		o.MaxRetries = &n
	}
	if a.dryRun {
		o.Provider = backend.ProviderNoop
	}
	return o
}

// loadProjectFile returns the explicit --config file or ./.jsonloc.yaml.
func loadProjectFile(path string) (*config.File, error) {
	if path != "" {
		return config.LoadFilePath(path)
	}
	return config.LoadFile(".")
}

// translateJob is one document to translate into several languages.
type translateJob struct {
	input  string
	output string
	langs  []string
}

func runTranslate(cmd *cobra.Command, a translateArgs) error {
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
		return fmt.Errorf("no provider specified. Use --provider (%s), JSONLOC_PROVIDER, or %s",
			strings.Join(backend.ProviderIDs(), ", "), config.FileName)
	}
	if err != nil {
		return err
	}

	jobs, err := translateJobs(a, file, s)
	if err != nil {
		return err
	}

	gov, err := ratelimit.New(s.Limits)
	if err != nil {
		return err
	}
	bcfg := s.BackendConfig()
	bcfg.Proxy = a.proxy
	bcfg.Pauser = gov
	bcfg.Logger = log
	b, err := backend.New(bcfg)
	if err != nil {
		return err
	}

	info := b.Info()
	logInfo("Provider: %s (%s), strategy: %s, %d req/min, %d concurrent",
		info.ID, info.Model, s.Strategy, s.Limits.RequestsPerMinute, s.Limits.MaxConcurrentRequests)
	if a.dryRun {
		logWarning("Dry run: no API calls, output equals input")
	}

	r := &runner{settings: s, backend: b, gov: gov, log: log, retryRounds: a.retryFailed}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logWarning("Interrupted, saving progress... (press Ctrl+C again to abort requests)")
			r.interrupt()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			stop()
		case <-ctx.Done():
		}
	}()

	var summaries []langSummary
	for _, job := range jobs {
		sums, err := r.translateFile(ctx, job)
		summaries = append(summaries, sums...)
		if err != nil {
			return err
		}
		if r.interrupted() {
			break
		}
	}

	printSummary(summaries)
	if r.interrupted() {
		logWarning("Translation interrupted, partial progress saved")
		return nil
	}
	for _, sum := range summaries {
		if sum.failed > 0 {
			return fmt.Errorf("%d strings failed; rerun with --retry-failed to retry them", countFailed(summaries))
		}
	}
	logSuccess("Translation complete!")
	return nil
}

func translateJobs(a translateArgs, file *config.File, s config.Settings) ([]translateJob, error) {
	if a.input != "" {
		if len(s.TargetLangs) == 0 {
			return nil, errors.New("no target languages. Use --lang de,fr or target_langs in " + config.FileName)
		}
		if len(s.TargetLangs) > 1 && a.output != "" && !strings.Contains(a.output, config.LangPlaceholder) {
			return nil, fmt.Errorf("--output must contain %s when translating to several languages", config.LangPlaceholder)
		}
		return []translateJob{{input: a.input, output: a.output, langs: s.TargetLangs}}, nil
	}

	if file == nil || len(file.Files) == 0 {
		return nil, fmt.Errorf("nothing to translate. Use --input or list files in %s", config.FileName)
	}
	var jobs []translateJob
	for _, rt := range file.Resolve() {
		langs := rt.Languages
		if a.langs != "" || len(langs) == 0 {
			langs = s.TargetLangs
		}
		if len(langs) == 0 {
			return nil, fmt.Errorf("%s: no target languages", rt.Input)
		}
		jobs = append(jobs, translateJob{input: rt.Input, output: rt.Output, langs: langs})
	}
	return jobs, nil
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// runner translates documents one language at a time and tracks the active
// orchestrator so that an interrupt can cancel it.
type runner struct {
	settings    config.Settings
	backend     backend.Backend
	gov         *ratelimit.Governor
	log         logrus.FieldLogger
	retryRounds int

	detectOnce sync.Once
	detector   *langdetect.Detector

	mu      sync.Mutex
	active  *translate.Orchestrator
	stopped bool
}

type langSummary struct {
	lang      string
	output    string
	completed int
	failed    int
	cancelled int
	cacheHits int
	elapsed   time.Duration
}

func countFailed(sums []langSummary) int {
	n := 0
	for _, s := range sums {
		n += s.failed
	}
	return n
}

func (r *runner) interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.active != nil {
		r.active.Cancel()
	}
}

func (r *runner) interrupted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *runner) setActive(o *translate.Orchestrator) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = o
	return !r.stopped
}

func (r *runner) sourceLang(leaves []jsondoc.Leaf) string {
	if r.settings.SourceLang != "" {
		return r.settings.SourceLang
	}
	r.detectOnce.Do(func() { r.detector = langdetect.New() })
	texts := make([]string, len(leaves))
	for i, l := range leaves {
		texts[i] = l.Value
	}
	code, ok := r.detector.Detect(texts)
	if !ok {
		return ""
	}
	return code
}

func (r *runner) translateFile(ctx context.Context, job translateJob) ([]langSummary, error) {
	data, err := os.ReadFile(job.input)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", job.input, err)
	}
	doc, leaves, err := jsondoc.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", job.input, err)
	}

	src := r.sourceLang(leaves)
	if src != "" {
		logInfo("%s: %d strings, source language %s", job.input, len(leaves), src)
	} else {
		logInfo("%s: %d strings, source language unknown", job.input, len(leaves))
	}

	langs := job.langs
	if src != "" {
		langs = filterOutLang(langs, src)
	}

	var sums []langSummary
	for _, lang := range langs {
		out := config.OutputPath(job.input, job.output, lang)
		sum, err := r.translateLang(ctx, doc, src, lang, out)
		if err != nil {
			return sums, err
		}
		sums = append(sums, sum)
		if r.interrupted() {
			break
		}
	}
	return sums, nil
}

func (r *runner) translateLang(ctx context.Context, doc any, src, lang, out string) (langSummary, error) {
	sum := langSummary{lang: lang, output: out}

	var lineMu sync.Mutex
	orch, err := translate.New(translate.Options{
		Backend:      r.backend,
		SourceLang:   src,
		TargetLang:   lang,
		Strategy:     r.settings.Strategy,
		Governor:     r.gov,
		RequestDelay: r.settings.RequestDelay,
		Logger:       r.log.WithField("target", lang),
		OnProgress: func(p translate.Progress) {
			lineMu.Lock()
			fmt.Fprintf(os.Stderr, "\r%s", progressLine(lang, p))
			lineMu.Unlock()
		},
	})
	if err != nil {
		return sum, err
	}
	if !r.setActive(orch) {
		return sum, nil
	}
	defer r.setActive(nil)

	start := time.Now()
	res, err := orch.TranslateDocument(ctx, doc)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return sum, err
	}
	hits := res.Stats.CacheHits

	for round := 1; round <= r.retryRounds && res.Stats.Failed > 0 && !r.interrupted(); round++ {
		logInfo("%s: retrying %d failed strings (round %d/%d)", lang, res.Stats.Failed, round, r.retryRounds)
		if _, err := orch.RetryFailed(ctx); err != nil {
			return sum, err
		}
		fmt.Fprintln(os.Stderr)
		res = orch.Rebuild(doc)
		hits += res.Stats.CacheHits
	}

	for _, ae := range res.ApplyErrors {
		logError("%s: %v", lang, ae)
	}
	if err := writeDocument(out, res.Document); err != nil {
		return sum, err
	}

	sum.completed = res.Stats.Completed
	sum.failed = res.Stats.Failed
	sum.cancelled = res.Stats.Cancelled
	sum.cacheHits = hits
	sum.elapsed = time.Since(start)
	return sum, nil
}

func writeDocument(path string, doc any) error {
	data, err := jsondoc.Marshal(doc, "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func printSummary(sums []langSummary) {
	if len(sums) == 0 {
		return
	}
	langs := make([]string, len(sums))
	for i, s := range sums {
		langs[i] = s.lang
	}
	width := langColumnWidth(langs)

	fmt.Fprintf(os.Stderr, "\n%sSummary%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	for _, s := range sums {
		status := fmt.Sprintf("%s%d ok%s", colorGreen, s.completed, colorReset)
		if s.failed > 0 {
			status += fmt.Sprintf(", %s%d failed%s", colorRed, s.failed, colorReset)
		}
		if s.cancelled > 0 {
			status += fmt.Sprintf(", %s%d cancelled%s", colorYellow, s.cancelled, colorReset)
		}
		if s.cacheHits > 0 {
			status += fmt.Sprintf(", %d cached", s.cacheHits)
		}
		fmt.Fprintf(os.Stderr, "  %s  %s  %s (%s)\n", langCell(s.lang, width), status, s.output, s.elapsed.Round(time.Millisecond))
	}
	fmt.Fprintln(os.Stderr)
}
