package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/config"
	"github.com/minios-linux/jsonloc/jsondoc"
	"github.com/minios-linux/jsonloc/settings"
	"github.com/minios-linux/jsonloc/translate"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name    string
		percent int
		width   int
		want    string
	}{
		{
			name:    "clamps below zero",
			percent: -10,
			width:   4,
			want:    colorRed + "░░░░" + colorReset + "   0%",
		},
		{
			name:    "mid range uses yellow",
			percent: 50,
			width:   4,
			want:    colorYellow + "██░░" + colorReset + "  50%",
		},
		{
			name:    "clamps above hundred",
			percent: 120,
			width:   4,
			want:    colorGreen + "████" + colorReset + " 100%",
		},
	}

	for _, tc := range tests {
		if got := progressBar(tc.percent, tc.width); got != tc.want {
			t.Fatalf("%s: progressBar() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestProgressLine(t *testing.T) {
	line := progressLine("de", translate.Progress{Completed: 3, Failed: 1, Total: 4, Percentage: 75})
	if !strings.Contains(line, "3/4") || !strings.Contains(line, "(1 failed)") {
		t.Fatalf("progressLine() = %q, want counts and failures", line)
	}
}

func TestFlagFromRegion(t *testing.T) {
	if got := flagFromRegion("us"); got != "🇺🇸" {
		t.Fatalf("flagFromRegion(us) = %q, want %q", got, "🇺🇸")
	}
	if got := flagFromRegion("USA"); got != "" {
		t.Fatalf("flagFromRegion(USA) = %q, want empty", got)
	}
	if got := flagFromRegion("1A"); got != "" {
		t.Fatalf("flagFromRegion(1A) = %q, want empty", got)
	}
}

func TestLangHelpers(t *testing.T) {
	if got := langFlag("zz-BR"); got != "🇧🇷" {
		t.Fatalf("langFlag(zz-BR) = %q, want %q", got, "🇧🇷")
	}
	if got := langFlag("pt_PT"); got != "🇵🇹" {
		t.Fatalf("langFlag(pt_PT) = %q, want %q", got, "🇵🇹")
	}
	if got := langFlag("invalid"); got != "" {
		t.Fatalf("langFlag(invalid) = %q, want empty", got)
	}

	langs := []string{"en", "pt-BR", "zh-Hant"}
	if got := langColumnWidth(langs); got != len("zh-Hant") {
		t.Fatalf("langColumnWidth() = %d, want %d", got, len("zh-Hant"))
	}

	cell := langCell("zz-BR", 6)
	if !strings.Contains(cell, "🇧🇷") || !strings.Contains(cell, "zz-BR") {
		t.Fatalf("langCell() = %q, want flag and language code", cell)
	}
}

func TestFilterOutLang(t *testing.T) {
	got := filterOutLang([]string{"en", "de", "EN", "fr"}, "en")
	want := []string{"de", "fr"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("filterOutLang() = %v, want %v", got, want)
	}
}

func TestNewLogger(t *testing.T) {
	defer func(f, l string) { logFormat, logLevel = f, l }(logFormat, logLevel)

	logFormat, logLevel = "json", ""
	l, err := newLogger(&config.Env{LogLevel: "error"}, false)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	if l.GetLevel() != logrus.ErrorLevel {
		t.Fatalf("level = %v, want error", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("formatter = %T, want JSON", l.Formatter)
	}

	logFormat, logLevel = "text", "info"
	l, err = newLogger(&config.Env{LogLevel: "error"}, true)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("verbose level = %v, want debug", l.GetLevel())
	}

	logFormat = "xml"
	if _, err := newLogger(nil, false); err == nil {
		t.Fatal("expected error for unknown log format")
	}
	logFormat, logLevel = "text", "loud"
	if _, err := newLogger(nil, false); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestChooseProvider(t *testing.T) {
	provs := authProviders()
	for _, p := range provs {
		if p.ID == backend.ProviderNoop {
			t.Fatal("noop must not be offered for login")
		}
	}

	if p, ok := chooseProvider("1", provs); !ok || p.ID != provs[0].ID {
		t.Fatalf("chooseProvider(1) = %v, %v", p.ID, ok)
	}
	if p, ok := chooseProvider("google", provs); !ok || p.ID != backend.ProviderGemini {
		t.Fatalf("chooseProvider(google) = %v, %v", p.ID, ok)
	}
	if _, ok := chooseProvider("0", provs); ok {
		t.Fatal("chooseProvider(0) should fail")
	}
	if _, ok := chooseProvider("nope", provs); ok {
		t.Fatal("chooseProvider(nope) should fail")
	}
}

func TestAuthLoginStoresKey(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	prov, _ := backend.Lookup(backend.ProviderGroq)

	pr := newPrompter(strings.NewReader("gsk_1234567890\n"), &bytes.Buffer{})
	if err := authLogin(pr, prov, "", "", false); err != nil {
		t.Fatalf("authLogin() error = %v", err)
	}
	if got := settings.GetAPIKey(backend.ProviderGroq); got != "gsk_1234567890" {
		t.Fatalf("stored key = %q", got)
	}

	// Empty answer keeps the stored key.
	pr = newPrompter(strings.NewReader("\n"), &bytes.Buffer{})
	if err := authLogin(pr, prov, "", "", false); err != nil {
		t.Fatalf("authLogin() keep error = %v", err)
	}
	if got := settings.GetAPIKey(backend.ProviderGroq); got != "gsk_1234567890" {
		t.Fatalf("stored key after keep = %q", got)
	}
}

func TestAuthLoginEndpoint(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	prov, _ := backend.Lookup(backend.ProviderCustomOpenAI)

	pr := newPrompter(strings.NewReader("\n"), &bytes.Buffer{})
	if err := authLogin(pr, prov, "", "", false); err == nil {
		t.Fatal("expected error without endpoint")
	}

	pr = newPrompter(strings.NewReader("https://llm.example.com/v1\n\n"), &bytes.Buffer{})
	if err := authLogin(pr, prov, "", "", false); err != nil {
		t.Fatalf("authLogin() error = %v", err)
	}
	key, url := settings.Lookup(backend.ProviderCustomOpenAI)
	if key != "" || url != "https://llm.example.com/v1" {
		t.Fatalf("Lookup() = %q, %q", key, url)
	}
}

func TestAuthLoginRequiresKey(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	prov, _ := backend.Lookup(backend.ProviderOpenAI)
	pr := newPrompter(strings.NewReader("\n"), &bytes.Buffer{})
	if err := authLogin(pr, prov, "", "", false); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestPrintLeaves(t *testing.T) {
	_, leaves, err := jsondoc.Load([]byte(`{"a":{"b":"Hello\tthere"},"list":["x"]}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	if err := printLeaves(&buf, leaves, false); err != nil {
		t.Fatalf("printLeaves() error = %v", err)
	}
	want := "a.b\tHello\\tthere\nlist[0]\tx\n"
	if buf.String() != want {
		t.Fatalf("printLeaves() = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := printLeaves(&buf, leaves, true); err != nil {
		t.Fatalf("printLeaves(json) error = %v", err)
	}
	if !strings.Contains(buf.String(), `"path": "list[0]"`) {
		t.Fatalf("printLeaves(json) = %s", buf.String())
	}
}

func TestTranslateJobs(t *testing.T) {
	s := config.Settings{TargetLangs: []string{"de", "fr"}}

	if _, err := translateJobs(translateArgs{input: "en.json", output: "out.json"}, nil, s); err == nil {
		t.Fatal("expected error for multi-language output without placeholder")
	}
	jobs, err := translateJobs(translateArgs{input: "en.json"}, nil, s)
	if err != nil {
		t.Fatalf("translateJobs() error = %v", err)
	}
	if len(jobs) != 1 || !reflect.DeepEqual(jobs[0].langs, s.TargetLangs) {
		t.Fatalf("jobs = %+v", jobs)
	}

	if _, err := translateJobs(translateArgs{}, nil, s); err == nil {
		t.Fatal("expected error without input or project file")
	}
	if _, err := translateJobs(translateArgs{input: "en.json"}, nil, config.Settings{}); err == nil {
		t.Fatal("expected error without target languages")
	}
}

func TestTranslateCommandDryRun(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	for _, k := range []string{"JSONLOC_PROVIDER", "JSONLOC_API_KEY", "JSONLOC_MODEL", "JSONLOC_BASE_URL"} {
		t.Setenv(k, "")
	}

	src := "{\n  \"title\": \"Hello\",\n  \"menu\": {\"open\": \"Open\", \"count\": 3},\n  \"a.b\": \"Dotted\"\n}"
	input := filepath.Join(dir, "en.json")
	if err := os.WriteFile(input, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	root.SetArgs([]string{
		"translate", "--dry-run",
		"--input", input,
		"--lang", "de,en,fr",
		"--source-lang", "en",
		"--output", filepath.Join(dir, "out", "{lang}.json"),
	})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want, _ := jsondoc.Parse([]byte(src))
	wantBytes, _ := jsondoc.Marshal(want, "  ")
	for _, lang := range []string{"de", "fr"} {
		got, err := os.ReadFile(filepath.Join(dir, "out", lang+".json"))
		if err != nil {
			t.Fatalf("reading %s output: %v", lang, err)
		}
		if !bytes.Equal(got, wantBytes) {
			t.Fatalf("%s output = %s, want %s", lang, got, wantBytes)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "en.json")); !os.IsNotExist(err) {
		t.Fatalf("source language should be skipped, stat err = %v", err)
	}
}

func TestExtractCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader(`["One", {"k": "Two"}, ""]`))
	root.SetArgs([]string{"extract", "-"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, want := out.String(), "[0]\tOne\n[1].k\tTwo\n"; got != want {
		t.Fatalf("extract output = %q, want %q", got, want)
	}
}
