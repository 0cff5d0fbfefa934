package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/config"
	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/site"
	csvstore "github.com/JakeFAU/paper-harvester/internal/storage/csv"
	"github.com/JakeFAU/paper-harvester/internal/storage/local"
)

type fakeApp struct {
	mu     sync.Mutex
	cfg    config.Config
	runs   int
	runErr error
	closed bool
	root   string
}

func (f *fakeApp) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Config() config.Config { return f.cfg }

func (f *fakeApp) RunHarvest(context.Context) (harvest.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return harvest.Summary{RunID: "run-1"}, f.runErr
}

func (f *fakeApp) Catalog() *csvstore.Reader {
	return csvstore.NewReader(filepath.Join(f.root, csvstore.FileName))
}

func (f *fakeApp) Blobs() *local.BlobStore {
	store, _ := local.New(local.Config{BaseDir: f.root})
	return store
}

func baseConfig() config.Config {
	return config.Config{
		Site:       config.SiteConfig{BaseURL: site.DefaultBaseURL, Markup: site.ProfileLegacy},
		Harvest:    config.HarvestConfig{StartYear: 2019, EndYear: 2024, OutputDir: "out", Schedule: "@weekly"},
		HTTP:       config.HTTPConfig{MaxConnections: 2, TimeoutSeconds: 180},
		Retry:      config.RetryConfig{MaxAttempts: 5, BackoffSeconds: []int{2}},
		Classifier: config.ClassifierConfig{Provider: config.ProviderNone},
		Sink:       config.SinkConfig{QueueDepth: 1},
		Server:     config.ServerConfig{Port: 8080},
		Logging:    config.LoggingConfig{Level: "info"},
	}
}

// withFakes swaps the package factories; tests using it must not run in parallel.
func withFakes(t *testing.T, fake *fakeApp) *config.Config {
	t.Helper()
	var built config.Config
	origLoad, origApp := loadConfig, newApp
	loadConfig = func(string) (config.Config, error) { return baseConfig(), nil }
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		built = cfg
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() {
		loadConfig, newApp = origLoad, origApp
	})
	return &built
}

func TestHarvestCommand_RunsOnceAndCloses(t *testing.T) {
	fake := &fakeApp{root: t.TempDir()}
	built := withFakes(t, fake)

	root := newRootCmd()
	root.SetArgs([]string{"harvest", "--start-year", "2021", "--end-year", "2022"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Equal(t, 1, fake.runs)
	assert.True(t, fake.closed)
	assert.Equal(t, 2021, built.Harvest.StartYear)
	assert.Equal(t, 2022, built.Harvest.EndYear)
}

func TestHarvestCommand_KeepsConfigYearsWithoutFlags(t *testing.T) {
	fake := &fakeApp{root: t.TempDir()}
	built := withFakes(t, fake)

	root := newRootCmd()
	root.SetArgs([]string{"harvest"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	assert.Equal(t, 2019, built.Harvest.StartYear)
	assert.Equal(t, 2024, built.Harvest.EndYear)
}

func TestHarvestCommand_RejectsInvertedRange(t *testing.T) {
	fake := &fakeApp{root: t.TempDir()}
	withFakes(t, fake)

	root := newRootCmd()
	root.SetArgs([]string{"harvest", "--start-year", "2024", "--end-year", "2020"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid flags")
	assert.Zero(t, fake.runs)
}

func TestHarvestCommand_PropagatesFailure(t *testing.T) {
	fake := &fakeApp{root: t.TempDir(), runErr: errors.New("mkdir denied")}
	withFakes(t, fake)

	root := newRootCmd()
	root.SetArgs([]string{"harvest"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "mkdir denied")
}

func TestHarvestCommand_CancellationIsNotAnError(t *testing.T) {
	fake := &fakeApp{root: t.TempDir(), runErr: context.Canceled}
	withFakes(t, fake)

	root := newRootCmd()
	root.SetArgs([]string{"harvest"})
	require.NoError(t, root.ExecuteContext(context.Background()))
}

func TestScheduleCommand_RunNowThenStops(t *testing.T) {
	fake := &fakeApp{root: t.TempDir()}
	withFakes(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := newRootCmd()
	root.SetArgs([]string{"schedule", "--run-now"})
	require.NoError(t, root.ExecuteContext(ctx))
	assert.Equal(t, 1, fake.runs)
}

func TestScheduleCommand_InvalidExpression(t *testing.T) {
	fake := &fakeApp{root: t.TempDir()}
	withFakes(t, fake)
	origLoad := loadConfig
	loadConfig = func(path string) (config.Config, error) {
		cfg, err := origLoad(path)
		cfg.Harvest.Schedule = "every tuesday"
		return cfg, err
	}

	root := newRootCmd()
	root.SetArgs([]string{"schedule"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "parse schedule")
}

func TestResolveAppWithoutServices(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
