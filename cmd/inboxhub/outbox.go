package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/amoylab/inboxhub/internal/outbox"
	"github.com/amoylab/inboxhub/pkg/logger"
	"github.com/amoylab/inboxhub/pkg/trace"
	"github.com/amoylab/inboxhub/pkg/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// actionFlags are the request flags shared by enqueue and submit
type actionFlags struct {
	url     string
	method  string
	body    string
	headers []string
}

func (f *actionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "request url, relative urls resolve against outbox.base_url")
	cmd.Flags().StringVarP(&f.method, "method", "X", "POST", "request method")
	cmd.Flags().StringVarP(&f.body, "body", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "request header as Name: value, repeatable")
	_ = cmd.MarkFlagRequired("url")
}

func (f *actionFlags) action() (outbox.Action, error) {
	headers, err := parseHeaders(f.headers)
	if err != nil {
		return outbox.Action{}, err
	}
	return outbox.Action{URL: f.url, Method: f.method, Headers: headers, Body: f.body}, nil
}

var (
	enqueueFlags actionFlags
	submitFlags  actionFlags

	outboxCmd = &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay the client action outbox",
	}

	outboxEnqueueCmd = &cobra.Command{
		Use:   "enqueue",
		Short: "Queue an action for later replay",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := enqueueFlags.action()
			if err != nil {
				return err
			}
			return withOutbox(cmd.Context(), func(ctx context.Context, env *outboxEnv) error {
				e, err := env.outbox.Enqueue(ctx, a)
				if err != nil {
					return err
				}
				printQueued(e, env.outbox.Len())
				return nil
			})
		},
	}

	outboxSubmitCmd = &cobra.Command{
		Use:   "submit",
		Short: "Send an action now, or queue it when the server is unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := submitFlags.action()
			if err != nil {
				return err
			}
			return withOutbox(cmd.Context(), func(ctx context.Context, env *outboxEnv) error {
				var conn outbox.Connectivity
				if mon, _, err := env.monitor(nil); err == nil {
					mon.Check(ctx)
					conn = mon
				}
				res, err := outbox.NewClient(env.outbox, conn).Submit(ctx, a)
				if err != nil {
					return err
				}
				if !res.Queued {
					fmt.Printf("sent %s %s\n", strings.ToUpper(a.Method), a.URL)
					return nil
				}
				printQueued(res.Entry, env.outbox.Len())
				return nil
			})
		},
	}

	outboxListCmd = &cobra.Command{
		Use:   "list",
		Short: "List queued actions, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutbox(cmd.Context(), func(_ context.Context, env *outboxEnv) error {
				pending := env.outbox.Pending()
				for _, e := range pending {
					fmt.Printf("%s\t%s\t%s\t%s\n", e.ID, e.EnqueuedAt.Format("2006-01-02 15:04:05"), e.Method, e.URL)
				}
				printPending(len(pending))
				return nil
			})
		},
	}

	outboxFlushCmd = &cobra.Command{
		Use:   "flush",
		Short: "Replay queued actions now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutbox(cmd.Context(), func(ctx context.Context, env *outboxEnv) error {
				res, err := env.outbox.Flush(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("sent %d, dropped %d, expired %d, remaining %d\n", res.Sent, res.Dropped, res.Expired, res.Remaining)
				if res.Halted {
					fmt.Printf("halted: %v\n", res.LastError)
				}
				return nil
			})
		},
	}

	outboxWatchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Probe connectivity and replay the outbox whenever it comes back",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOutbox(cmd.Context(), func(ctx context.Context, env *outboxEnv) error {
				var flush outbox.FlushFunc
				if !env.cfg.Monitor.ManualOnly {
					flush = outbox.FlushHook(env.outbox, env.logger)
				}
				mon, probeURL, err := env.monitor(flush)
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				env.logger.Info("watching connectivity",
					zap.String("probe_url", probeURL),
					zap.Duration("interval", env.cfg.Monitor.Interval),
					zap.Int("pending", env.outbox.Len()))
				return mon.Run(ctx)
			})
		},
	}
)

func init() {
	enqueueFlags.register(outboxEnqueueCmd)
	submitFlags.register(outboxSubmitCmd)

	outboxCmd.AddCommand(outboxEnqueueCmd, outboxSubmitCmd, outboxListCmd, outboxFlushCmd, outboxWatchCmd)
}

type outboxEnv struct {
	cfg    *config.OutboxClientConfig
	logger *zap.Logger
	outbox *outbox.Outbox
}

// monitor builds a connectivity monitor probing monitor.probe_url, or the
// outbox base url when no probe url is set
func (env *outboxEnv) monitor(flush outbox.FlushFunc) (*outbox.Monitor, string, error) {
	probeURL := utils.FirstNonEmpty(env.cfg.Monitor.ProbeURL, env.cfg.Outbox.BaseURL)
	if probeURL == "" {
		return nil, "", fmt.Errorf("monitor.probe_url or outbox.base_url is required")
	}
	mon := outbox.NewMonitor(
		outbox.NewHTTPProber(probeURL, env.cfg.Monitor.ProbeTimeout),
		env.cfg.Monitor.Interval,
		env.cfg.Monitor.RetryMaxInterval,
		env.logger,
		flush,
	)
	return mon, probeURL, nil
}

// withOutbox loads the client configuration, opens the outbox and runs fn
func withOutbox(ctx context.Context, fn func(ctx context.Context, env *outboxEnv) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, cfgPath, err := config.LoadConfig[config.OutboxClientConfig](confOr(defaultOutboxConfig))
	if err != nil {
		return fmt.Errorf("failed to load configuration %s: %w", cfgPath, err)
	}
	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Sync()

	shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	store, err := outbox.NewStore(lg, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open outbox storage: %w", err)
	}
	sender, err := outbox.NewHTTPSender(cfg.Outbox.BaseURL, cfg.Outbox.RequestTimeout)
	if err != nil {
		store.Close()
		return err
	}
	ob, err := outbox.New(ctx, store, sender, outbox.OptionsFromConfig(cfg.Outbox, lg, nil))
	if err != nil {
		store.Close()
		return err
	}
	defer ob.Close()

	return fn(ctx, &outboxEnv{cfg: cfg, logger: lg, outbox: ob})
}

func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want Name: value", h)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func printQueued(e *outbox.Entry, pending int) {
	for _, id := range e.Evicted {
		fmt.Printf("evicted %s, outbox is full\n", id)
	}
	fmt.Printf("queued %s %s %s\n", e.ID, e.Method, e.URL)
	printPending(pending)
}

func printPending(n int) {
	if n == 0 {
		fmt.Println("no pending actions")
		return
	}
	fmt.Printf("%d pending actions, will sync automatically\n", n)
}
