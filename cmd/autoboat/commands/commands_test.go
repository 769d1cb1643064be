package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/autoboat/am"
	"github.com/teranos/autoboat/errors"
	abtest "github.com/teranos/autoboat/internal/testing"
	"github.com/teranos/autoboat/logger"
	"github.com/teranos/autoboat/pulse/correlate"
	"github.com/teranos/autoboat/pulse/dispatch"
	"github.com/teranos/autoboat/pulse/schedule"
	"github.com/teranos/autoboat/transport"
	"github.com/teranos/autoboat/transport/gateway"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

type cliEnv struct {
	dir    string
	config string
	dbPath string
}

// newCLIEnv isolates HOME and the working directory so only the explicit
// config file is discovered.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", filepath.Join(dir, "home"))
	t.Setenv("TOKEN", "")
	t.Setenv("AUTOBOAT_GATEWAY_TOKEN", "")
	chdir(t, dir)

	env := &cliEnv{
		dir:    dir,
		config: filepath.Join(dir, "test.toml"),
		dbPath: filepath.Join(dir, "state.db"),
	}
	content := `[database]
path = "` + env.dbPath + `"

[gateway]
url = "wss://chat.example.invalid/ws"
channel_id = "123"
token = "secret-token-123"

[log]
theme = "gruvbox"
`
	require.NoError(t, os.WriteFile(env.config, []byte(content), 0644))
	return env
}

func (e *cliEnv) exec(ctx context.Context, args ...string) (string, error) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestStateListsConfiguredCommands(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.exec(context.Background(), "state")
	require.NoError(t, err)
	assert.Contains(t, out, "work")

	out, err = env.exec(context.Background(), "state", "--json")
	require.NoError(t, err)
	var rows []stateRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.NotEmpty(t, rows)
	for _, r := range rows {
		if r.Command == "work" {
			assert.True(t, r.Due, "never-fired command is due")
			assert.Nil(t, r.LastFiredAt)
		}
	}
}

func TestHistoryEmpty(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.exec(context.Background(), "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No cycles recorded yet")
}

func TestResetRequiresTarget(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.exec(context.Background(), "reset")
	assert.Error(t, err)

	_, err = env.exec(context.Background(), "reset", "work", "--all")
	assert.Error(t, err)

	_, err = env.exec(context.Background(), "reset", "--all")
	assert.NoError(t, err)
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.exec(context.Background(), "version", "--json")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info)
}

func TestAmShowRedactsToken(t *testing.T) {
	env := newCLIEnv(t)

	for _, format := range []string{"toml", "json", "yaml"} {
		out, err := env.exec(context.Background(), "am", "show", "--format", format)
		require.NoError(t, err, format)
		assert.NotContains(t, out, "secret-token-123", format)
		assert.Contains(t, out, "gruvbox", format)
	}

	_, err := env.exec(context.Background(), "am", "show", "--format", "xml")
	assert.Error(t, err)
}

func TestAmEnableWritesActiveFile(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.exec(context.Background(), "am", "enable", "collect")
	require.NoError(t, err)

	cfg, err := am.LoadFromFile(env.config)
	require.NoError(t, err)
	assert.True(t, cfg.Commands["collect"].IsEnabled())
	assert.Equal(t, "gruvbox", cfg.Log.Theme, "other keys survive the edit")

	_, err = env.exec(context.Background(), "am", "disable", "nope")
	assert.Error(t, err)
}

func TestAmInit(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(env.dir, "fresh", "am.toml")

	_, err := env.exec(context.Background(), "am", "init", path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = env.exec(context.Background(), "am", "init", path)
	assert.Error(t, err, "existing file needs --force")

	_, err = env.exec(context.Background(), "am", "init", path, "--force")
	assert.NoError(t, err)
}

func TestAmValidateAndWhere(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.exec(context.Background(), "am", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	out, err = env.exec(context.Background(), "am", "where")
	require.NoError(t, err)
	assert.Contains(t, out, "explicit")
	assert.Contains(t, out, "database.path")
}

func TestDryRunLeavesStateUntouched(t *testing.T) {
	env := newCLIEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := env.exec(ctx, "run", "--dry-run", "--no-countdown")
	require.NoError(t, err)
	assert.NoFileExists(t, env.dbPath)
}

func TestGatewayConfig(t *testing.T) {
	cfg := &am.Config{
		Gateway: am.GatewayConfig{
			URL:               "wss://a",
			Endpoints:         []string{"wss://a", "wss://b", ""},
			Token:             "t",
			ChannelID:         "c",
			MaxSendsPerMinute: 7,
		},
		Commands: map[string]am.CommandConfig{
			"work":    {Command: "work", SlashCommandID: "111"},
			"deposit": {Command: "deposit all", SlashCommandID: "222"},
			"collect": {Command: "collect"},
		},
	}

	gc := gatewayConfig(cfg, 2)
	assert.Equal(t, []string{"wss://a", "wss://b"}, gc.Endpoints)
	assert.Equal(t, map[string]string{"work": "111", "deposit": "222"}, gc.SlashIDs)
	assert.Equal(t, "t", gc.Token)
	assert.Equal(t, "c", gc.ChannelID)
	assert.Equal(t, 7, gc.MaxSendsPerMinute)
	assert.Equal(t, 2, gc.Verbosity)
}

// When the gateway gives up mid-cycle, Run must not return until the
// dispatcher has settled the outstanding cycle and saved it.
func TestRunPersistsBeforeReturningOnTransportFailure(t *testing.T) {
	fired := make(chan struct{})
	var once sync.Once
	markFired := func() { once.Do(func() { close(fired) }) }

	// Every dial fails, the first one only after the dispatcher has fired
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-fired
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	defer markFired()

	client, err := gateway.New(gateway.Config{
		Endpoints:            []string{"ws" + strings.TrimPrefix(srv.URL, "http")},
		Token:                "t",
		MaxReconnectAttempts: 1,
	}, gateway.WithBackoff(func(int) time.Duration { return time.Millisecond }))
	require.NoError(t, err)

	database := abtest.CreateMigratedTestDB(t)
	clock := clockwork.NewRealClock()
	store := schedule.NewStore(database)
	cycles := schedule.NewCycleStore(database)
	sched := schedule.NewScheduler(nil)
	sched.Reconcile([]schedule.CommandSpec{{
		Name: "work", Invocation: "work", Enabled: true,
		Cooldown: 5 * time.Minute, ResponseWait: time.Minute,
	}})

	// Nobody answers, so the cycle is still awaiting when the gateway fails
	loop := transport.NewLoopback(clock)
	corr := correlate.New(clock, correlate.NewRuleClassifier())
	rt := &runtime{
		clock:     clock,
		log:       logger.ComponentLogger("run"),
		db:        database,
		store:     store,
		cycles:    cycles,
		sched:     sched,
		transport: loop,
		gateway:   client,
		loopback:  loop,
		corr:      corr,
		disp: dispatch.New(clock, sched, loop, corr,
			dispatch.WithStore(store),
			dispatch.WithCycleStore(cycles),
			dispatch.WithObserver(dispatch.ObserverFunc(func(ev dispatch.Event) {
				if ev.Kind == dispatch.EventFired {
					markFired()
				}
			})),
		),
	}

	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()

	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the gateway gave up")
	}
	require.Error(t, err)
	assert.True(t, errors.IsTransportError(err))

	// Nothing may still be writing once Run has returned
	states, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, states, "work")
	assert.NotNil(t, states["work"].LastFiredAt, "fired command is durable before Run returns")

	list, err := cycles.List(context.Background(), "work", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, schedule.OutcomeInterrupted, list[0].Outcome)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory, updates PWD, and restores both on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	oldwd, err := os.Open(".")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(dir) {
		dir, err = os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PWD", dir)
	t.Cleanup(func() {
		err := oldwd.Chdir()
		oldwd.Close()
		if err != nil {
			panic("chdir: " + err.Error())
		}
	})
}
