package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/ordermind/internal/agent"
	"github.com/rahul/ordermind/internal/gateway"
	"github.com/rahul/ordermind/internal/observability"
)

type service interface {
	Start() error
	Stop() error
}

func (s *ServeCmd) Run(cli *CLI) error {
	interactive := observability.IsTerminal(os.Stdout) && !s.NoStatus
	if interactive {
		observability.PrintBanner(version)
		// Route all log output through the console lock so it never
		// interleaves with the status line.
		log.SetOutput(observability.NewTermWriter())
	}

	cfg := cli.loadConfig()
	if s.Addr != "" {
		cfg.HTTP.Addr = s.Addr
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withAgent(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var services []service
	if !s.NoGateway {
		if tgCfg, ok := cfg.GetGatewayConfig("telegram"); ok {
			tg, err := gateway.NewTelegramGateway(tgCfg.Token, a.brain)
			if err != nil {
				return err
			}
			a.router.Add("telegram", tg)
			services = append(services, tg)
		}
		if dcCfg, ok := cfg.GetGatewayConfig("discord"); ok {
			dc, err := gateway.NewDiscordGateway(dcCfg.Token, a.brain)
			if err != nil {
				return err
			}
			a.router.Add("discord", dc)
			services = append(services, dc)
		}
	}
	services = append(services, gateway.NewHTTPGateway(cfg.HTTP.Addr, a.brain, a.engine, reportsPath(cfg)))

	for _, gw := range services {
		go func(gw service) {
			if err := gw.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				stop() // stop caller if gateway dies
			}
		}(gw)
	}

	scheduler := agent.NewScheduler(a.engine, a.router,
		time.Duration(cfg.Agent.ReminderAfterMinutes)*time.Minute,
		time.Duration(cfg.Agent.ReminderPollSeconds)*time.Second)
	go scheduler.Start(ctx)

	go every(ctx, 30*time.Second, func() {
		observability.Heartbeat()
		a.logger.LogHeartbeat()
	})
	if interactive {
		go every(ctx, time.Second, observability.PrintStatusLine)
	}

	<-ctx.Done()

	for _, gw := range services {
		if err := gw.Stop(); err != nil {
			log.Printf("Error stopping gateway: %v", err)
		}
	}
	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] ORDERMIND STOPPED. GOODBYE.\033[0m")
	return nil
}

func every(ctx context.Context, d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
