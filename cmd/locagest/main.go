package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"locagest/internal/cli"
	"locagest/internal/log"
)

type command struct {
	usage string
	run   func(ctx context.Context, app *cli.App, args []string, out io.Writer) error
}

var commands = map[string]command{
	"summary": {"summary <contract-id>", runSummary},
	"list":    {"list [-status payé|en attente|impayé|prolongé]", runList},
	"stats":   {"stats", runStats},
	"pay":     {"pay -contract ID -amount 150.00 -method cash|transfer|cheque [-date YYYY-MM-DD] [cheque flags]", runPay},
	"cheque":  {"cheque -payment ID -status deposited|not-deposited [-date YYYY-MM-DD]", runCheque},
	"migrate": {"migrate [-dry-run] [-yes] [-today YYYY-MM-DD]", runMigrate},
	"restore": {"restore [-yes] <snapshot.json.gz>", runRestore},
	"report":  {"report", runReport},
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: locagest <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentCLI)

	ctx, stop := cli.SignalContext()
	defer stop()
	ctx = log.NewContext(ctx, logger)

	app, err := cli.NewApp(ctx, cfg, logger, cli.Options{})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize", err)
	}

	runErr := cmd.run(ctx, app, os.Args[2:], os.Stdout)
	if err := app.Close(); err != nil {
		logger.Warn("Close failed", log.FieldError, err)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}
