// Command nodeflow validates, runs and schedules graph files using the
// built-in nodes over a key/value store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-nodeflow"
	"github.com/goliatone/go-nodeflow/flow"
)

// CLI is the kong command model.
type CLI struct {
	LogLevel  string `name:"log-level" default:"info" enum:"trace,debug,info,warn,error" env:"NODEFLOW_LOG_LEVEL" help:"Log level."`
	LogFormat string `name:"log-format" default:"console" enum:"console,json" env:"NODEFLOW_LOG_FORMAT" help:"Log output format."`

	Validate ValidateCmd `cmd:"" help:"Parse and validate a graph file."`
	Run      RunCmd      `cmd:"" help:"Run a graph once and print the final store."`
	Schedule ScheduleCmd `cmd:"" help:"Run a graph on a cron schedule."`
	Nodes    NodesCmd    `cmd:"" help:"List the built-in node factories."`
}

// env carries the process resources bound into every command.
type env struct {
	ctx    context.Context
	out    io.Writer
	logger flow.Logger
}

func main() {
	defer nodeflow.MakePanicHandler(nodeflow.DefaultPanicLogger)("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "nodeflow:", err)
		stop()
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("nodeflow"),
		kong.Description("Graph based task orchestration."),
		kong.Writers(out, errOut),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	return kctx.Run(&env{
		ctx:    ctx,
		out:    out,
		logger: newLogger(errOut, cli.LogLevel, cli.LogFormat),
	})
}
