// authclient is a terminal front-end for the authentication client: log in,
// inspect the stored session, walk the password-reset flow, and issue
// authorized GET requests against the backend.
//
// The session is kept in a JSON file under the user config directory by
// default, so consecutive invocations share it the way browser tabs share
// localStorage. --store=redis keeps it in Redis instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/MrEthical07/authclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// globalOptions are the flags accepted before the command name.
type globalOptions struct {
	configPath string
	baseURL    string
	store      string
	storePath  string
	redisAddr  string
	verbose    bool
	metrics    bool
}

func (o *globalOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.baseURL, "base-url", "", "API base URL (env AUTHCLIENT_BASE_URL)")
	fs.StringVar(&o.store, "store", "", "session store: file, redis or memory (default file)")
	fs.StringVar(&o.storePath, "store-path", "", "session file for --store=file")
	fs.StringVar(&o.redisAddr, "redis-addr", "", `redis address for --store=redis, "mem" for in-process (env AUTHCLIENT_REDIS_ADDR)`)
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log requests to stderr")
	fs.BoolVar(&o.metrics, "metrics", false, "print client metrics in Prometheus format after the command")
	fs.BoolP("help", "h", false, "show help")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	var opts globalOptions
	fs := pflag.NewFlagSet("authclient", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	opts.addFlags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, fs)
			return nil
		}
		return usageError{msg: err.Error()}
	}
	if help, _ := fs.GetBool("help"); help || fs.NArg() == 0 {
		printHelp(stderr, fs)
		if fs.NArg() == 0 && !help {
			return usagef("missing command")
		}
		return nil
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		return usagef("unknown command %q", name)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	env := &environment{
		opts:   opts,
		stdout: stdout,
		stderr: stderr,
		getenv: getenv,
		logger: logger,
	}
	defer env.close()

	if cmd.offline {
		return cmd.run(ctx, env, rest)
	}
	if err := env.open(ctx); err != nil {
		return err
	}
	return cmd.run(ctx, env, rest)
}

func printHelp(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, `authclient: command-line authentication client.

Usage:
  authclient [global flags] <command> [command flags]

Commands:
`)
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nGlobal flags:\n%s", fs.FlagUsages())
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "authclient", "session.json")
}

// loadConfig layers file, environment and flags, in that order.
func loadConfig(opts globalOptions, getenv func(string) string) (authclient.Config, error) {
	cfg := authclient.DefaultConfig()
	cfg.Session.Backend = authclient.BackendFile
	cfg.Session.FilePath = defaultStorePath()

	if opts.configPath != "" {
		loaded, err := authclient.LoadConfigFileInto(cfg, opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
		if cfg.Session.FilePath == "" {
			cfg.Session.FilePath = defaultStorePath()
		}
	}

	if v := getenv("AUTHCLIENT_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if opts.baseURL != "" {
		cfg.API.BaseURL = opts.baseURL
	}

	switch opts.store {
	case "":
	case authclient.BackendFile, authclient.BackendRedis, authclient.BackendMemory:
		cfg.Session.Backend = opts.store
	default:
		return cfg, usagef("unknown --store %q", opts.store)
	}
	if opts.storePath != "" {
		cfg.Session.FilePath = opts.storePath
	}

	cfg.Notify.Enabled = true
	if opts.metrics {
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
	}
	return cfg, nil
}
