package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Client talks to an HTTP LLM provider. It implements Backend and Completer.
type Client struct {
	prov         Provider
	apiKey       string
	baseURL      string
	model        string
	maxRetries   int
	temperature  float64
	systemPrompt string

	http   *http.Client
	pauser Pauser
	log    logrus.FieldLogger

	// retryWait returns the backoff before retry number attempt+1.
	retryWait func(attempt int) time.Duration
}

func newClient(prov Provider, cfg Config) *Client {
	c := &Client{
		prov:         prov,
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		model:        cfg.Model,
		maxRetries:   cfg.MaxRetries,
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
		http:         cfg.HTTPClient,
		pauser:       cfg.Pauser,
		log:          cfg.Logger,
		retryWait: func(attempt int) time.Duration {
			return time.Duration(math.Pow(2, float64(attempt))) * time.Second
		},
	}
	if c.baseURL == "" {
		c.baseURL = strings.TrimRight(prov.BaseURL, "/")
	}
	if c.model == "" {
		c.model = prov.DefaultModel
	}
	if c.systemPrompt == "" {
		c.systemPrompt = DefaultSystemPrompt
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = prov.Timeout
		}
		c.http = makeHTTPClient(cfg.Proxy, timeout)
	}
	return c
}

// Info implements Backend.
func (c *Client) Info() ProviderInfo {
	return ProviderInfo{
		ID:      c.prov.ID,
		Name:    c.prov.Name,
		BaseURL: c.baseURL,
		Model:   c.model,
		Format:  c.prov.Format,
	}
}

// ValidateConfig implements Backend.
func (c *Client) ValidateConfig() error {
	if c.baseURL == "" {
		return fmt.Errorf("%s: %w (set --base-url)", c.prov.ID, ErrMissingBaseURL)
	}
	if u, err := url.Parse(c.baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s: invalid base URL %q", c.prov.ID, c.baseURL)
	}
	if c.model == "" {
		return fmt.Errorf("%s: %w (set --model)", c.prov.ID, ErrMissingModel)
	}
	if c.prov.RequiresKey && c.apiKey == "" {
		return fmt.Errorf("%s: %w (set --api-key, JSONLOC_API_KEY or run 'jsonloc auth set-key')", c.prov.ID, ErrMissingAPIKey)
	}
	return nil
}

// Translate implements Backend.
func (c *Client) Translate(ctx context.Context, req Request) Result {
	system := ResolvePrompt(c.systemPrompt, req.SourceLang, req.TargetLang)
	reply, err := c.Complete(ctx, system, buildUserPrompt(req))
	if err != nil {
		return Fail(err)
	}
	text := cleanReply(reply, req.Text)
	if text == "" {
		return Fail(ErrEmptyResponse)
	}
	return Ok(text)
}

// Complete sends one prompt and returns the raw reply text. Network errors
// and 5xx responses are retried with exponential backoff; 429 responses
// pause the Pauser for the advertised delay before retrying.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	endpoint, headers, body, err := c.buildHTTPRequest(systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	log := c.log.WithFields(logrus.Fields{"provider": c.prov.ID, "model": c.model})

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("creating request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		log.WithField("attempt", attempt+1).Debugf("POST %s", endpoint)

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				if err := sleep(ctx, c.retryWait(attempt)); err != nil {
					return "", err
				}
				continue
			}
			return "", fmt.Errorf("API request failed: %w", err)
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := parseRetryDelay(respBody, resp.Header.Get("Retry-After"))
			log.WithFields(logrus.Fields{"attempt": attempt + 1, "delay": delay}).Warn("rate limited by provider")
			if c.pauser != nil {
				c.pauser.Pause(delay)
			}
			if attempt < c.maxRetries {
				if err := sleep(ctx, delay); err != nil {
					return "", err
				}
				continue
			}
			return "", fmt.Errorf("rate limited after %d retries: %s", c.maxRetries, truncate(string(respBody), 500))
		}

		if resp.StatusCode != http.StatusOK {
			if attempt < c.maxRetries && resp.StatusCode >= 500 {
				if err := sleep(ctx, c.retryWait(attempt)); err != nil {
					return "", err
				}
				continue
			}
			return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
		}

		return extractResponseText(respBody)
	}

	return "", fmt.Errorf("exhausted all %d retries", c.maxRetries)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ---------------------------------------------------------------------------
// Request builders for each API format
// ---------------------------------------------------------------------------

func (c *Client) buildHTTPRequest(systemPrompt, userPrompt string) (string, map[string]string, []byte, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	var (
		endpoint string
		body     []byte
		err      error
	)

	switch c.prov.Format {
	case FormatGemini:
		endpoint = fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
		if c.apiKey != "" {
			headers["x-goog-api-key"] = c.apiKey
		}
		body, err = buildGeminiRequest(systemPrompt, userPrompt, c.temperature)

	case FormatAnthropic:
		endpoint = c.baseURL + "/messages"
		if c.apiKey != "" {
			headers["x-api-key"] = c.apiKey
		}
		headers["anthropic-version"] = "2023-06-01"
		body, err = buildAnthropicRequest(c.model, systemPrompt, userPrompt, c.temperature)

	default:
		endpoint = c.baseURL
		if !strings.HasSuffix(endpoint, "/chat/completions") {
			endpoint += "/chat/completions"
		}
		if c.apiKey != "" {
			headers["Authorization"] = "Bearer " + c.apiKey
		}
		body, err = buildOpenAIChatRequest(c.model, systemPrompt, userPrompt, c.temperature)
	}

	if err != nil {
		return "", nil, nil, err
	}
	return endpoint, headers, body, nil
}

func buildOpenAIChatRequest(model, systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	}
	return json.Marshal(req)
}

func buildGeminiRequest(systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	type genConfig struct {
		Temperature float64 `json:"temperature"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		GenerationConfig  genConfig `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents:         []content{{Role: "user", Parts: []part{{Text: userPrompt}}}},
		GenerationConfig: genConfig{Temperature: temperature},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

func buildAnthropicRequest(model, systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		System      string  `json:"system,omitempty"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
	}{
		Model:       model,
		MaxTokens:   8192,
		System:      systemPrompt,
		Messages:    []msg{{Role: "user", Content: userPrompt}},
		Temperature: temperature,
	}
	return json.Marshal(req)
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

// extractResponseText tries all known response formats and returns the text.
func extractResponseText(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid JSON response: %s", truncate(string(body), 200))
	}
	r := gjson.ParseBytes(body)

	if e := r.Get("error"); e.Exists() && e.Type != gjson.Null {
		if msg := e.Get("message"); msg.Exists() {
			return "", fmt.Errorf("API error: %s", msg.String())
		}
		return "", fmt.Errorf("API error: %s", e.Raw)
	}

	paths := []string{
		"choices.0.message.content",                                     // OpenAI chat
		"candidates.0.content.parts.0.text",                             // Gemini
		`content.#(type=="text").text`,                                  // Anthropic
		`output.#(type=="message").content.#(type=="output_text").text`, // OpenAI responses
		"message.content",                                               // Ollama native
		"response",                                                      // generate endpoints
	}
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type == gjson.String {
			return v.String(), nil
		}
	}

	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

// parseRetryDelay returns how long to back off after a 429. It honours a
// Retry-After header, then Google's RetryInfo detail (plus a 5s buffer), and
// otherwise defaults to 65s.
func parseRetryDelay(body []byte, retryAfter string) time.Duration {
	const defaultDelay = 65 * time.Second

	if retryAfter != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(retryAfter); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
			return 0
		}
	}

	delay := defaultDelay
	gjson.GetBytes(body, "error.details").ForEach(func(_, detail gjson.Result) bool {
		fields := detail.Map()
		if !strings.Contains(fields["@type"].String(), "RetryInfo") {
			return true
		}
		d := strings.TrimSuffix(fields["retryDelay"].String(), "s")
		if secs, err := strconv.ParseFloat(d, 64); err == nil {
			delay = time.Duration(secs*1000)*time.Millisecond + 5*time.Second
			return false
		}
		return true
	})
	return delay
}

// ---------------------------------------------------------------------------
// HTTP client with proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
