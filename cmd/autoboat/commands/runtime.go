package commands

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/teranos/autoboat/am"
	"github.com/teranos/autoboat/db"
	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/logger"
	"github.com/teranos/autoboat/pulse/budget"
	"github.com/teranos/autoboat/pulse/correlate"
	"github.com/teranos/autoboat/pulse/dispatch"
	"github.com/teranos/autoboat/pulse/schedule"
	"github.com/teranos/autoboat/transport"
	"github.com/teranos/autoboat/transport/gateway"
)

// dryRunReplyDelay is how long the simulated bot takes to answer
const dryRunReplyDelay = time.Second

type runOptions struct {
	explicitPath string
	dryRun       bool
	noCountdown  bool
	verbosity    int
}

// runtime is every component of a running loop, wired from one Config
type runtime struct {
	cfg   *am.Config
	opts  runOptions
	clock clockwork.Clock
	log   *zap.SugaredLogger

	db     *sql.DB
	store  *schedule.Store
	cycles *schedule.CycleStore
	sched  *schedule.Scheduler

	transport transport.Transport
	gateway   *gateway.Client    // nil in dry-run
	loopback  *transport.Loopback // nil unless dry-run
	corr      *correlate.Correlator
	disp      *dispatch.Dispatcher
}

// newRuntime restores state and wires the loop. A failed state load is fatal:
// without durable last-fired times a restart could double-fire.
func newRuntime(ctx context.Context, cfg *am.Config, opts runOptions) (*runtime, error) {
	rt := &runtime{
		cfg:   cfg,
		opts:  opts,
		clock: clockwork.NewRealClock(),
		log:   logger.AddPulseOpenSymbol(logger.ComponentLogger("run")),
	}

	if err := rt.openState(ctx); err != nil {
		return nil, err
	}
	if err := rt.openTransport(); err != nil {
		rt.Close()
		return nil, err
	}

	classifier := correlate.NewRuleClassifier(
		correlate.WithBotAuthors(cfg.Correlate.BotAuthors...),
		correlate.WithRequiredMention(cfg.Correlate.RequireMention),
		correlate.WithSelfAuthor(cfg.Correlate.SelfAuthor),
	)
	extractor, err := correlate.NewPatternExtractor(cfg.Correlate.CooldownPatterns)
	if err != nil {
		rt.Close()
		return nil, err
	}

	dropLog := logger.AddReplySymbol(logger.ComponentLogger("correlate"))
	rt.corr = correlate.New(rt.clock, classifier,
		correlate.WithInboxSize(cfg.Correlate.InboxSize),
		correlate.WithVerbosity(opts.verbosity),
		correlate.WithDropHandler(func(ev transport.InboundEvent) {
			dropLog.Warnw("Inbox full, dropped oldest event", logger.FieldAuthor, ev.Author)
		}),
	)

	countdown := cfg.Timing.StartupCountdown()
	if opts.noCountdown {
		countdown = 0
	}
	rt.disp = dispatch.New(rt.clock, rt.sched, rt.transport, rt.corr,
		dispatch.WithStore(rt.store),
		dispatch.WithCycleStore(rt.cycles),
		dispatch.WithKeepCycles(cfg.Database.KeepCycles),
		dispatch.WithCooldownExtractor(extractor),
		dispatch.WithBudget(budget.NewLimiterWithClock(cfg.Dispatch.MaxFiresPerMinute, rt.clock)),
		dispatch.WithObserver(dispatch.NewLogObserver(opts.verbosity)),
		dispatch.WithPolicy(dispatch.Policy{
			Initial: cfg.Dispatch.BackoffInitial(),
			Factor:  cfg.Dispatch.BackoffFactor,
			Max:     cfg.Dispatch.BackoffMax(),
		}),
		dispatch.WithMaxIdleSleep(cfg.Timing.MaxIdleSleep()),
		dispatch.WithStartupCountdown(countdown),
	)
	return rt, nil
}

// openState opens the database, loads durable state and reconciles it with
// the configured commands. Dry runs work on an in-memory copy.
func (rt *runtime) openState(ctx context.Context) error {
	var err error
	if rt.opts.dryRun {
		rt.db, err = rehearsalDatabase(ctx, rt.cfg.GetDatabasePath())
	} else {
		rt.db, err = openDatabase(rt.cfg)
	}
	if err != nil {
		return err
	}

	rt.store = schedule.NewStore(rt.db)
	rt.cycles = schedule.NewCycleStore(rt.db)

	states, err := rt.store.Load(ctx)
	if err != nil {
		rt.Close()
		return errors.WithHint(err, "the loop will not start without its durable cooldown state")
	}

	rt.sched = schedule.NewScheduler(states,
		schedule.WithUnknownCooldownRetry(rt.cfg.Timing.UnknownCooldownRetry()))
	for _, name := range rt.sched.Reconcile(rt.cfg.CommandSpecs()) {
		if err := rt.store.Delete(ctx, name); err != nil {
			rt.log.Warnw("Could not drop state of unconfigured command",
				logger.FieldCommand, name, logger.FieldError, err)
		}
	}

	rt.log.Infow("State restored", logger.FieldCount, len(states))
	return nil
}

// rehearsalDatabase copies the persisted state into a private in-memory
// database so a dry run starts from real cooldowns without changing them.
func rehearsalDatabase(ctx context.Context, path string) (*sql.DB, error) {
	mem, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, errors.WrapPersistence(err, "open rehearsal database")
	}
	mem.SetMaxOpenConns(1)
	if err := db.Migrate(mem, nil); err != nil {
		mem.Close()
		return nil, errors.WrapPersistence(err, "migrate rehearsal database")
	}

	if !fileExists(path) {
		return mem, nil
	}
	onDisk, err := db.Open(path, nil)
	if err != nil {
		mem.Close()
		return nil, err
	}
	defer onDisk.Close()

	states, err := schedule.NewStore(onDisk).Load(ctx)
	if err != nil {
		// A database from before the state table existed has nothing to copy
		if !strings.Contains(err.Error(), "no such table") {
			mem.Close()
			return nil, err
		}
		states = nil
	}
	if err := schedule.NewStore(mem).Save(ctx, states); err != nil {
		mem.Close()
		return nil, err
	}
	return mem, nil
}

func (rt *runtime) openTransport() error {
	if rt.opts.dryRun {
		rt.loopback = transport.NewLoopback(rt.clock,
			transport.WithResponder(transport.AutoReply("(dry run) ok: %s", dryRunReplyDelay)))
		rt.transport = rt.loopback
		return nil
	}

	client, err := gateway.New(gatewayConfig(rt.cfg, rt.opts.verbosity), gateway.WithClock(rt.clock))
	if err != nil {
		return err
	}
	rt.gateway = client
	rt.transport = client
	return nil
}

// gatewayConfig maps the [gateway] table and slash command IDs onto the client
func gatewayConfig(cfg *am.Config, verbosity int) gateway.Config {
	var endpoints []string
	if cfg.Gateway.URL != "" {
		endpoints = append(endpoints, cfg.Gateway.URL)
	}
	for _, e := range cfg.Gateway.Endpoints {
		if e != "" && e != cfg.Gateway.URL {
			endpoints = append(endpoints, e)
		}
	}

	slashIDs := make(map[string]string)
	for _, c := range cfg.Commands {
		if c.SlashCommandID == "" {
			continue
		}
		if fields := strings.Fields(c.Command); len(fields) > 0 {
			slashIDs[fields[0]] = c.SlashCommandID
		}
	}

	return gateway.Config{
		Endpoints:            endpoints,
		Token:                cfg.Gateway.Token,
		ChannelID:            cfg.Gateway.ChannelID,
		Silent:               cfg.Gateway.Silent,
		SlashMode:            cfg.SlashMode(),
		SlashIDs:             slashIDs,
		MaxSendsPerMinute:    cfg.Gateway.MaxSendsPerMinute,
		MaxReconnectAttempts: cfg.Gateway.MaxReconnectAttempts,
		Verbosity:            verbosity,
	}
}

// Run starts the transport, the correlator pump and the dispatcher, and
// blocks until ctx is cancelled or a component fails for good. It returns
// only after the dispatcher has settled and persisted its last cycle, so the
// database can be closed safely afterwards.
func (rt *runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stays nil without a gateway; a nil channel never fires in select
	var transportErr chan error
	dispatchErr := make(chan error, 1)
	pumpDone := make(chan struct{})

	if rt.gateway != nil {
		transportErr = make(chan error, 1)
		go func() {
			transportErr <- rt.gateway.Run(ctx)
		}()
	}

	go func() {
		defer close(pumpDone)
		rt.corr.Run(ctx, rt.transport.Events())
	}()

	go func() {
		dispatchErr <- rt.disp.Run(ctx)
	}()

	var err, terr error
	transportDone := false
	select {
	case err = <-dispatchErr:
	case terr = <-transportErr:
		transportDone = true
		if terr != nil {
			rt.log.Errorw("Transport stopped, shutting down", logger.FieldError, terr)
		}
		cancel()
		err = <-dispatchErr
	}
	cancel()

	if !transportDone && transportErr != nil {
		terr = <-transportErr
	}
	<-pumpDone
	if rt.loopback != nil {
		rt.loopback.Close()
	}

	if err == nil {
		err = terr
	}
	return err
}

// Reload applies a reloaded configuration to the running loop
func (rt *runtime) Reload(cfg *am.Config) error {
	rt.disp.Reload(cfg.CommandSpecs())
	return nil
}

// Close releases the database
func (rt *runtime) Close() error {
	if rt.db == nil {
		return nil
	}
	err := rt.db.Close()
	rt.db = nil
	return err
}
