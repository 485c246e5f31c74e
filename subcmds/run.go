// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/bvk/marketgate/cache"
	"github.com/bvk/marketgate/cli"
	"github.com/bvk/marketgate/config"
	"github.com/bvk/marketgate/ctxutil"
	"github.com/bvk/marketgate/daemonize"
	"github.com/bvk/marketgate/draft"
	"github.com/bvk/marketgate/httputil"
	"github.com/bvk/marketgate/imagegen"
	"github.com/bvk/marketgate/journal"
	"github.com/bvk/marketgate/market"
	"github.com/bvk/marketgate/metrics"
	"github.com/bvk/marketgate/pda"
	"github.com/bvk/marketgate/ratelimit"
	"github.com/bvk/marketgate/server"
	"github.com/bvk/marketgate/solana"
	"github.com/bvk/marketgate/subcmds/cmdutil"
	"github.com/bvk/marketgate/watcher"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
	"github.com/nightlyone/lockfile"
	"github.com/redis/go-redis/v9"
	"github.com/visvasity/sglog"
)

const daemonizeEnvKey = "MARKETGATE_DAEMONIZE"

type Run struct {
	cmdutil.ServerFlags

	background bool

	restart         bool
	shutdownTimeout time.Duration

	startupTimeout time.Duration

	noPprof   bool
	logStderr bool
	debug     bool

	envFile string
	dataDir string
}

func (c *Run) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	c.ServerFlags.SetFlags(fset)
	fset.BoolVar(&c.background, "background", false, "runs the gateway in background")
	fset.BoolVar(&c.restart, "restart", false, "when true, kills any old instance")
	fset.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 30*time.Second, "max timeout for shutdown when restarting")
	fset.DurationVar(&c.startupTimeout, "startup-timeout", 30*time.Second, "max time to wait for rpc and redis to become reachable")
	fset.BoolVar(&c.noPprof, "no-pprof", false, "when true net/http/pprof handler is not registered")
	fset.BoolVar(&c.logStderr, "log-stderr", false, "when true, logs go to stderr instead of log files")
	fset.BoolVar(&c.debug, "debug", false, "when true, debug messages are logged")
	fset.StringVar(&c.envFile, "env-file", ".env", "name of the environment file searched in the working directory and its parents")
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	return fset, cli.CmdFunc(c.run)
}

func (c *Run) Synopsis() string {
	return "Runs the market gateway in foreground or background"
}

func (c *Run) CommandHelp() string {
	return `

Command "run" starts the market gateway. All settings are read from the
environment, optionally loaded from a .env file. Variables already set in the
process environment take precedence over the file.

REQUIRED VARIABLES

    RPC_URL        Solana JSON-RPC endpoint
    KEYPAIR_PATH   JSON array keypair file of the market authority
    PROGRAM_ID     market program id
    REDIS_URL      redis://... or memory:// for process-local stores
    FEE_ACCOUNT    fee collector public key

OPTIONAL VARIABLES

    WS_URL, PORT, LISTEN_IP, IMAGE_API_ROOT, DRAFT_API_URL, DRAFT_API_KEY,
    RPC_TIMEOUT, RPC_RATE, CONFIRM_TIMEOUT, RATE_LIMIT_BY_CLIENT, POLICY_FILE

POLICY FILE

Rate limits, cache lifetimes, cache invalidation mode and the bot pattern are
read from the YAML file named by POLICY_FILE. For example:

    rateLimit:
      window: 1h
      max: 100
    cache:
      marketStateTTL: 10s
      invalidation: watch
    errors:
      botPattern: "bot|crawler|spider"

`
}

func (c *Run) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(c.envFile)
	if err != nil {
		return err
	}
	if c.IP != "" {
		cfg.Env.ListenIP = c.IP
	}
	if c.Port != 0 {
		cfg.Env.Port = c.Port
	}
	ip := net.ParseIP(cfg.Env.ListenIP)
	if ip == nil {
		return &config.Error{Field: "LISTEN_IP", Err: fmt.Errorf("invalid ip address %q", cfg.Env.ListenIP)}
	}
	if cfg.Env.Port <= 0 || cfg.Env.Port > 65535 {
		return &config.Error{Field: "PORT", Err: fmt.Errorf("invalid port number %d", cfg.Env.Port)}
	}
	addr := &net.TCPAddr{IP: ip, Port: cfg.Env.Port}

	if len(c.dataDir) == 0 {
		c.dataDir = filepath.Join(os.Getenv("HOME"), ".marketgate")
	}
	if err := os.MkdirAll(c.dataDir, 0700); err != nil {
		return fmt.Errorf("could not create data directory %q: %w", c.dataDir, err)
	}
	dataDir, err := filepath.Abs(c.dataDir)
	if err != nil {
		return fmt.Errorf("could not determine data-dir %q absolute path: %w", c.dataDir, err)
	}

	// Health checker for the background process initialization. Responding
	// http server must be our child and not an older instance.
	check := func(ctx context.Context, pid int) error {
		client := http.Client{Timeout: time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s/pid", addr.String()))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http status: %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if got := string(data); got != strconv.Itoa(pid) {
			return fmt.Errorf("is another instance already running? pid mismatch: want %d got %s", pid, got)
		}
		return nil
	}

	if c.background {
		isParent, err := daemonize.Daemonize(ctx, daemonizeEnvKey, check)
		if err != nil {
			return err
		}
		if isParent {
			log.Printf("started market gateway in background at %s", addr)
			return nil
		}
	}

	closeLog := c.setupLogging(filepath.Join(dataDir, "logs"))
	defer closeLog()

	log.SetFlags(log.Flags() | log.Lmicroseconds)
	log.Printf("using data directory %s", dataDir)

	lockPath := filepath.Join(dataDir, "marketgate.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		if !c.restart {
			return fmt.Errorf("could not get lock on file %q: %w", lockPath, err)
		}
		owner, err := flock.GetOwner()
		if err != nil {
			return fmt.Errorf("could not get current owner of the lock file: %w", err)
		}
		if err := owner.Signal(os.Interrupt); err == nil {
			log.Printf("waiting for the previous instance to shutdown")
			if err := ctxutil.RetryTimeout(ctx, time.Second, c.shutdownTimeout, flock.TryLock); err != nil {
				if err := owner.Signal(os.Kill); err != nil {
					return fmt.Errorf("could not kill current owner of the lock file: %w", err)
				}
				ctxutil.Sleep(ctx, time.Millisecond)
			}
		}
		if err := flock.TryLock(); err != nil {
			return fmt.Errorf("could not get lock on file %q after killing previous instance: %w", lockPath, err)
		}
	}
	defer flock.Unlock()

	// Open the journal database.
	bopts := badger.DefaultOptions(filepath.Join(dataDir, "db"))
	bopts.Logger = nil
	bdb, err := badger.Open(bopts)
	if err != nil {
		return fmt.Errorf("could not open the database: %w", err)
	}
	defer bdb.Close()
	db := kvbadger.New(bdb, cmdutil.IsGoodKey)

	mtx := metrics.New()

	// Cache and rate limit stores.
	var store cache.Store
	var window ratelimit.Window
	if cfg.Redis == nil {
		log.Printf("using process-local cache and rate limit stores")
		store = cache.NewMemoryStore(time.Now)
		window = ratelimit.NewMemoryWindow(cfg.Policy.RateLimit.Window, cfg.Policy.RateLimit.Max, time.Now)
	} else {
		client := redis.NewClient(cfg.Redis)
		defer client.Close()

		ping := func() error {
			pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
			defer pcancel()
			return client.Ping(pctx).Err()
		}
		if err := ctxutil.RetryTimeout(ctx, time.Second, c.startupTimeout, ping); err != nil {
			return &server.StartupError{Component: "redis", Err: err}
		}
		store = cache.NewRedisStore(client)
		window = ratelimit.NewRedisWindow(client, "ratelimit", cfg.Policy.RateLimit.Window, cfg.Policy.RateLimit.Max)
	}

	// Remote ledger program.
	ropts := &solana.Options{
		HttpClientTimeout: cfg.Env.RPCTimeout,
		RequestsPerSecond: cfg.Env.RPCRate,
	}
	rpc, err := solana.NewClient(cfg.Env.RPCURL, ropts)
	if err != nil {
		return &config.Error{Field: "RPC_URL", Err: err}
	}
	health := func() error {
		hctx, hcancel := context.WithTimeout(ctx, cfg.Env.RPCTimeout)
		defer hcancel()
		return rpc.GetHealth(hctx)
	}
	if err := ctxutil.RetryTimeout(ctx, time.Second, c.startupTimeout, health); err != nil {
		return &server.StartupError{Component: "solana rpc", Err: err}
	}

	mopts := &market.Options{
		ConfirmTimeout: cfg.Env.ConfirmTimeout,
		Observe:        mtx.ObserveRemote,
	}
	program, err := market.New(rpc, cfg.ProgramID, cfg.Authority, mopts)
	if err != nil {
		return err
	}

	components := &server.Components{
		Program:    program,
		FeeAccount: cfg.FeeAccount,
		Store:      store,
		Window:     window,
		Journal:    journal.New(db),
		Metrics:    mtx,
	}
	if cfg.Env.ImageAPIRoot != "" {
		images, err := imagegen.New(cfg.Env.ImageAPIRoot, nil /* opts */)
		if err != nil {
			return &config.Error{Field: "IMAGE_API_ROOT", Err: err}
		}
		components.Images = images
	}
	if cfg.Env.DraftAPIURL != "" {
		drafts, err := draft.New(cfg.Env.DraftAPIURL, cfg.Env.DraftAPIKey, nil /* opts */)
		if err != nil {
			return &config.Error{Field: "DRAFT_API_URL", Err: err}
		}
		components.Drafts = drafts
	}

	if cfg.Policy.Cache.Invalidation == config.InvalidateWatch {
		wsURL, err := cfg.Env.WebsocketURL()
		if err != nil {
			return &config.Error{Field: "WS_URL", Err: err}
		}
		marketAddr, err := pda.Market(cfg.Authority.PublicKey(), cfg.ProgramID)
		if err != nil {
			return err
		}
		w, err := watcher.New(wsURL, marketAddr, nil /* opts */)
		if err != nil {
			return err
		}
		w.Start()
		defer w.Close()

		components.Updates = w
	}

	sopts := &server.Options{
		Policy:            &cfg.Policy,
		RateLimitByClient: cfg.Env.RateLimitByClient,
		BotPattern:        cfg.BotPattern,
		RemoteTimeout:     cfg.Env.RPCTimeout,
	}
	gateway, err := server.New(components, sopts)
	if err != nil {
		return err
	}
	defer gateway.Close()

	// Start HTTP server.
	s, err := httputil.New(nil /* opts */)
	if err != nil {
		return err
	}
	defer s.Close()

	s.AddHandler("/api/", gateway.Handler())
	s.AddHandler("/metrics", mtx.Handler())
	s.AddHandler("/db/", http.StripPrefix("/db", kvhttp.Handler(db)))
	if !c.noPprof {
		s.AddHandler("/debug/pprof/", http.HandlerFunc(pprof.Index))
		s.AddHandler("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
		s.AddHandler("/debug/pprof/trace", http.HandlerFunc(pprof.Trace))
	}

	tcpServer, err := s.StartTCP(ctx, addr)
	if err != nil {
		return &server.StartupError{Component: "http server", Err: err}
	}
	defer s.Stop(tcpServer)

	s.AddHandler("/pid", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, strconv.Itoa(os.Getpid()))
	}))

	log.Printf("started market gateway at %s for market %s (authority %s)", addr, gateway.MarketAddress(), cfg.Authority.PublicKey())
	slog.Info("market gateway is ready", "addr", addr, "market", gateway.MarketAddress(),
		"invalidation", cfg.Policy.Cache.Invalidation, "redis", cfg.Redis != nil)

	<-ctx.Done()
	log.Printf("market gateway is shutting down")
	return nil
}

// setupLogging points the default slog logger to per-level log files or to
// stderr.
func (c *Run) setupLogging(logsDir string) func() {
	level := slog.LevelInfo
	if c.debug {
		level = slog.LevelDebug
	}
	if c.logStderr {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(h))
		return func() {}
	}

	if err := os.MkdirAll(logsDir, 0700); err != nil {
		log.Printf("could not create logs directory %q; using stderr (ignored): %v", logsDir, err)
		return func() {}
	}
	levels := []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError}
	if c.debug {
		levels = append([]slog.Level{slog.LevelDebug}, levels...)
	}
	backend := sglog.NewBackend(&sglog.Options{
		LogDirs:       []string{logsDir},
		Levels:        levels,
		LogFileHeader: true,
	})
	slog.SetDefault(slog.New(backend.Handler()))
	return func() { backend.Close() }
}
