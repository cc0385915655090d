package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"goatbot/internal/accounts"
	"goatbot/internal/api"
	"goatbot/internal/config"
	"goatbot/internal/daemon"
	"goatbot/internal/ledger"
	"goatbot/internal/logging"
	"goatbot/internal/metrics"
	"goatbot/internal/rating"
	"goatbot/internal/replybot"
	"goatbot/internal/service"
	"goatbot/internal/session"
	"goatbot/internal/store"
	"goatbot/internal/theme"
	"goatbot/internal/xclient"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "run":
		cmdRun()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: goatbot <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init   Create a config file at ./goatbot.yaml")
	fmt.Println("  run    Poll mentions, score them, reply, keep the ledger")
}

func cmdInit() {
	out := flag.NewFlagSet("init", flag.ExitOnError)
	path := out.String("path", "./goatbot.yaml", "path to write config")
	_ = out.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./goatbot.yaml", "config path")
	_ = fs.Parse(os.Args[2:])

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	log, err := logging.New()
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	theme.PrintBanner()

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newClient := func() xclient.Client { return xclient.New("") }
	newMgr := func(c xclient.Client) *session.Manager {
		return session.NewManager(c, st, log, cfg.Bot.LoginRetries, cfg.Bot.LoginBackoff)
	}

	client := newClient()
	mgr := newMgr(client)
	if err := mgr.Login(ctx, session.Credentials{
		Username:        cfg.Account.Username,
		Password:        cfg.Account.Password,
		Email:           cfg.Account.Email,
		TwoFactorSecret: cfg.Account.TwoFactorSecret,
	}); err != nil {
		log.Fatal("bot account login", zap.Error(err))
	}

	registry := accounts.NewRegistry()
	if err := registry.Put(cfg.Account.Username, &accounts.Account{Client: client, Session: mgr}); err != nil {
		log.Fatal("register bot account", zap.Error(err))
	}

	rater := rating.NewClient(cfg.Rater)
	lg := ledger.New(st, rater, log)
	bot := replybot.New(st, lg, client, log, cfg.Bot, cfg.Account.Username)

	d := daemon.New(log)
	if err := d.Register("check_mentions", bot.CheckMentions, cfg.Bot.CheckInterval); err != nil {
		log.Fatal("register job", zap.Error(err))
	}

	apiSrv := api.New(cfg.API.Addr, registry, st, d, log, newClient, newMgr)
	metricsSrv := metrics.NewServer(cfg.Metrics.Addr)

	svcs := []service.Service{d, apiSrv, metricsSrv}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range svcs {
		g.Go(func() error { return s.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		// Stop in reverse order; the daemon drains in-flight job runs
		// before the process is allowed to exit.
		var firstErr error
		for i := len(svcs) - 1; i >= 0; i-- {
			if err := svcs[i].Stop(shCtx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shutdown", zap.Error(err))
	}
	log.Info("goodbye")
}
