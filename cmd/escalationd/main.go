// Command escalationd runs the quality escalation engine.
//
// Usage:
//
//	escalationd [-config path] [serve]
//	escalationd [-config path] run <job>
//	escalationd [-config path] status
//	escalationd secret set|delete <key>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nhle/quality-escalation/internal/app"
	"github.com/nhle/quality-escalation/internal/logger"
	"github.com/nhle/quality-escalation/internal/model"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the YAML config file")
	flag.Usage = usage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "escalationd:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: escalationd [flags] [command]

Commands:
  serve                 run the scheduler and admin server (default)
  run <job>             run one job pass now and exit
  status                show live overdue escalations
  secret set <key>      store a secret read from stdin in the keyring
  secret delete <key>   remove a secret from the keyring

Flags:
`)
	flag.PrintDefaults()
}

func run(ctx context.Context, configPath string, args []string) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	if cmd == "secret" {
		return secret(args)
	}

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}

	// status only reads the store and must work without mail credentials.
	if cmd == "status" {
		return runStatus(ctx, os.Stdout, cfg)
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "serve":
		log.WithField("jobs", a.Jobs()).Info("Escalation engine starting")
		return a.Run(ctx)
	case "run":
		if len(args) != 1 {
			return fmt.Errorf("run needs exactly one job name, one of %s", strings.Join(a.Jobs(), ", "))
		}
		return runOnce(ctx, a, log, args[0])
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runOnce(ctx context.Context, a *app.App, log *logrus.Logger, name string) error {
	result, err := a.RunOnce(ctx, name)
	log.WithFields(logrus.Fields{
		"job":     name,
		"visited": result.Visited,
		"sent":    result.Sent,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}).Info("Manual run finished")
	return err
}
