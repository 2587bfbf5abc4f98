package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/settings"
)

// ---------------------------------------------------------------------------
// auth (login / logout / list)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored API keys",
		Long: `Manage API keys and endpoints for AI providers.

Keys are stored in ` + settings.FilePath() + ` (mode 0600).
A key given with --api-key or JSONLOC_API_KEY always wins over the stored one.

Examples:
  jsonloc auth login                          Interactive provider selection
  jsonloc auth login --provider openai        Store an OpenAI API key
  jsonloc auth login --provider ollama        Store a custom Ollama endpoint
  jsonloc auth logout --provider groq         Remove the Groq key
  jsonloc auth logout                         Remove all credentials
  jsonloc auth list                           Show stored credentials`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

// authProviders are the providers that take a key or a custom endpoint.
func authProviders() []backend.Provider {
	provs := backend.DefaultProviders()
	var out []backend.Provider
	for _, id := range backend.ProviderIDs() {
		if p := provs[id]; p.Format != backend.FormatNone {
			out = append(out, p)
		}
	}
	return out
}

// needsEndpoint reports whether login should ask for a base URL.
func needsEndpoint(p backend.Provider) bool {
	return !p.RequiresKey
}

func completeAuthProviders(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, p := range authProviders() {
		out = append(out, p.ID+"\t"+p.Name)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// prompter reads answers line by line.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

func (p *prompter) ask(format string, args ...any) (string, error) {
	fmt.Fprintf(p.out, format, args...)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no input received")
	}
	return strings.TrimSpace(p.in.Text()), nil
}

// chooseProvider matches a menu number or a provider name.
func chooseProvider(choice string, provs []backend.Provider) (backend.Provider, bool) {
	if n, err := strconv.Atoi(choice); err == nil {
		if n >= 1 && n <= len(provs) {
			return provs[n-1], true
		}
		return backend.Provider{}, false
	}
	id := backend.NormalizeProviderName(choice)
	for _, p := range provs {
		if p.ID == id {
			return p, true
		}
	}
	return backend.Provider{}, false
}

func newAuthLoginCmd() *cobra.Command {
	var provider, key, baseURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key or endpoint for a provider",
		Long: `Store an API key (and optionally a base URL) for a provider.

If --provider is not specified, you will be prompted to choose. Without
--key, the key is read from standard input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pr := newPrompter(cmd.InOrStdin(), os.Stderr)
			provs := authProviders()

			var prov backend.Provider
			if provider == "" {
				fmt.Fprintln(os.Stderr)
				fmt.Fprintf(os.Stderr, "%sSelect provider to authenticate:%s\n\n", colorBlue, colorReset)
				for i, p := range provs {
					label := "API key"
					if needsEndpoint(p) {
						label = "endpoint"
					}
					fmt.Fprintf(os.Stderr, "  %d. %s%-13s%s %s (%s)\n", i+1, colorYellow, p.ID, colorReset, p.Name, label)
				}
				fmt.Fprintln(os.Stderr)
				choice, err := pr.ask("Enter choice (number or name): ")
				if err != nil {
					return err
				}
				var ok bool
				if prov, ok = chooseProvider(choice, provs); !ok {
					return errors.New("invalid choice. Use: jsonloc auth login --provider PROVIDER")
				}
			} else {
				var ok bool
				if prov, ok = chooseProvider(provider, provs); !ok {
					return fmt.Errorf("unknown provider %q (supported: %s)", provider, strings.Join(providerIDs(provs), ", "))
				}
			}

			return authLogin(pr, prov, key, baseURL, cmd.Flags().Changed("key"))
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to authenticate")
	cmd.Flags().StringVar(&key, "key", "", "API key (default: prompt)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL (default: prompt for endpoint providers)")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeAuthProviders)

	return cmd
}

func providerIDs(provs []backend.Provider) []string {
	ids := make([]string, len(provs))
	for i, p := range provs {
		ids[i] = p.ID
	}
	return ids
}

func authLogin(pr *prompter, prov backend.Provider, key, baseURL string, keyGiven bool) error {
	fmt.Fprintf(os.Stderr, "\n%s%s Setup%s\n", colorBlue, prov.Name, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintln(os.Stderr)

	existing := settings.Get(prov.ID)

	if needsEndpoint(prov) && baseURL == "" {
		def := prov.BaseURL
		if existing != nil && existing.BaseURL != "" {
			def = existing.BaseURL
		}
		var err error
		if def != "" {
			baseURL, err = pr.ask("  Endpoint URL [%s]: ", def)
		} else {
			baseURL, err = pr.ask("  Endpoint URL (e.g., https://api.example.com/v1): ")
		}
		if err != nil {
			return err
		}
		if baseURL == "" {
			baseURL = def
		}
		if baseURL == "" {
			return errors.New("endpoint URL is required")
		}
	}

	if !keyGiven {
		switch {
		case existing != nil && existing.Key != "":
			fmt.Fprintf(os.Stderr, "  Current key: %s%s%s\n", colorYellow, settings.MaskKey(existing.Key), colorReset)
			k, err := pr.ask("  Enter new key to replace, or press Enter to keep: ")
			if err != nil {
				return err
			}
			key = k
			if key == "" {
				key = existing.Key
			}
		case prov.RequiresKey:
			k, err := pr.ask("  Enter API key: ")
			if err != nil {
				return err
			}
			key = k
		default:
			k, err := pr.ask("  Enter API key (or press Enter if not required): ")
			if err != nil {
				return err
			}
			key = k
		}
	}
	if key == "" && prov.RequiresKey {
		return errors.New("no API key provided")
	}

	if err := settings.SetAPIKeyWithBaseURL(prov.ID, key, baseURL); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	logSuccess("%s credentials saved", prov.Name)
	fmt.Fprintf(os.Stderr, "\n  You can now use: jsonloc translate --provider %s --input en.json --lang de\n\n", prov.ID)
	return nil
}

func newAuthLogoutCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long: `Remove stored credentials for one or all providers.

If --provider is not specified, credentials for ALL providers are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logSuccess("All stored credentials removed")
				return nil
			}

			id := backend.NormalizeProviderName(provider)
			if settings.Get(id) == nil {
				logWarning("No stored credentials for %s", id)
				return nil
			}
			if err := settings.Remove(id); err != nil {
				return fmt.Errorf("removing %s credentials: %w", id, err)
			}
			logSuccess("%s credentials removed", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider to logout (default: all)")
	_ = cmd.RegisterFlagCompletionFunc("provider", completeAuthProviders)

	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			store := settings.Load()

			fmt.Fprintf(w, "%sStored credentials%s (%s)\n", colorBlue, colorReset, settings.FilePath())
			fmt.Fprintln(w, strings.Repeat("─", 60))
			if len(store) == 0 {
				fmt.Fprintln(w, "  (none)")
			}
			for _, id := range store.Providers() {
				info := store[id]
				line := fmt.Sprintf("  %s%-15s%s", colorGreen, id, colorReset)
				if info.Key != "" {
					line += " key " + settings.MaskKey(info.Key)
				}
				if info.BaseURL != "" {
					line += " " + info.BaseURL
				}
				if !info.Updated.IsZero() {
					line += fmt.Sprintf(" (updated %s)", info.Updated.Local().Format("2006-01-02"))
				}
				fmt.Fprintln(w, line)
			}

			if key := os.Getenv("JSONLOC_API_KEY"); key != "" {
				fmt.Fprintln(w)
				fmt.Fprintf(w, "  %sJSONLOC_API_KEY%s is set (%s) and overrides stored keys\n", colorYellow, colorReset, settings.MaskKey(key))
			}
			return nil
		},
	}
}
