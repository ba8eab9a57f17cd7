package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/richinex/cinematic/config"
	"github.com/richinex/cinematic/dispatch"
	"github.com/richinex/cinematic/llm/mock"
	"github.com/richinex/cinematic/observe"
	"github.com/richinex/cinematic/storage"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testSettings() config.Settings {
	settings := config.Default()
	settings.Storage.Path = storage.InMemoryPath
	return settings
}

func newTestApp(t *testing.T, settings config.Settings, provider *mock.Provider) *App {
	t.Helper()
	helper := &mock.Provider{Fallback: &mock.Reply{Content: "none"}}
	app, err := NewApp(settings, Options{
		Metrics:  testMetrics(t),
		Provider: provider,
		Helper:   helper,
	})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return app
}

func TestNewAppRegistersConfiguredCollaborators(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	settings := testSettings()
	settings.Radarr.URL = srv.URL
	settings.Search.Provider = "searxng"
	settings.Search.SearXNG.URL = srv.URL

	app := newTestApp(t, settings, mock.Texts("ok"))

	for _, name := range []string{"memory_get", "memory_update", "movie_lookup", "movie_post", "movie_put", "movie_delete", "web_search"} {
		if !app.Registry.Has(name) {
			t.Errorf("expected %s to be registered", name)
		}
	}
	if app.Registry.Has("series_lookup") {
		t.Error("sonarr is not configured, series_lookup should be absent")
	}
}

func TestNewAppMinimal(t *testing.T) {
	app := newTestApp(t, testSettings(), mock.Texts("ok"))

	names := app.Registry.Names()
	if len(names) != 2 {
		t.Errorf("expected only memory operations, got %v", names)
	}
}

func TestNewAppUnknownProvider(t *testing.T) {
	settings := testSettings()
	settings.LLM.Provider = "unknown"

	_, err := NewApp(settings, Options{Metrics: testMetrics(t)})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestAsk(t *testing.T) {
	provider := mock.Texts("Heat (1995) is already on the server.")
	app := newTestApp(t, testSettings(), provider)

	var out bytes.Buffer
	err := Ask(context.Background(), app, dispatch.Caller{User: "cli"}, "do we have heat?", &out)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if out.String() != "Heat (1995) is already on the server.\n" {
		t.Errorf("output = %q", out.String())
	}
	if provider.CallCount() != 1 {
		t.Errorf("expected one model call, got %d", provider.CallCount())
	}
}

func TestChatLoop(t *testing.T) {
	provider := mock.Texts("first answer", "second answer")
	app := newTestApp(t, testSettings(), provider)

	in := strings.NewReader("hello\n\nagain\nexit\nignored\n")
	var out bytes.Buffer
	if err := Chat(context.Background(), app, dispatch.Caller{User: "cli"}, in, &out); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Chatting as cli", "first answer\n", "second answer\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if provider.CallCount() != 2 {
		t.Errorf("expected two model calls, got %d", provider.CallCount())
	}
}

func TestChatContinuesAfterModelError(t *testing.T) {
	provider := mock.New(mock.Reply{Err: context.DeadlineExceeded}, mock.Reply{Content: "recovered"})
	app := newTestApp(t, testSettings(), provider)

	var out bytes.Buffer
	in := strings.NewReader("one\ntwo\n")
	if err := Chat(context.Background(), app, dispatch.Caller{User: "cli"}, in, &out); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(out.String(), "Error: ") || !strings.Contains(out.String(), "recovered") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsoleSink(t *testing.T) {
	var out bytes.Buffer
	sink := &consoleSink{out: &out}
	ctx := context.Background()

	sink.Stream(ctx, 0, "Hel")
	sink.Stream(ctx, 0, "Hello")
	sink.Emit(ctx, 0, "Hello world")
	sink.Emit(ctx, 1, "")
	sink.Stream(ctx, 1, "Draft")
	sink.Emit(ctx, 1, "Final")

	want := "Hello world\nDraft\nFinal\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestListCommands(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	settings := testSettings()
	settings.Sonarr.URL = srv.URL
	app := newTestApp(t, settings, mock.Texts("ok"))

	var user, admin bytes.Buffer
	ListCommands(&user, app.Agent.Dispatcher(), false)
	ListCommands(&admin, app.Agent.Dispatcher(), true)

	if !strings.Contains(user.String(), "series_lookup") || strings.Contains(user.String(), "series_delete") {
		t.Errorf("user listing = %q", user.String())
	}
	if !strings.Contains(admin.String(), "series_delete") {
		t.Errorf("admin listing = %q", admin.String())
	}
}
