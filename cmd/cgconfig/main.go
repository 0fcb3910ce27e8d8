package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/elispeigel/cgroupfs/internal/cgroup"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	app := &cli.App{
		Name:  "cgconfig",
		Usage: "load cgroup membership policy and place tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "/etc/cgconfig.conf", Usage: "policy file"},
			&cli.StringFlag{Name: "rules", Aliases: []string{"r"}, Value: "/etc/cgrules.conf", Usage: "rules file"},
		},
		Before: func(cctx *cli.Context) error {
			return nil
		},
		Commands: []*cli.Command{
			loadCommand(logger),
			createCommand(logger),
			modifyCommand(logger),
			deleteCommand(logger),
			attachCommand(logger),
			execCommand(logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal("cgconfig failed", zap.Error(err))
	}
}

func newContext(cctx *cli.Context, logger *zap.Logger) (*cgroup.Context, error) {
	ctx := cgroup.NewContext()
	ctx.Logger = logger
	if rules := cctx.String("rules"); rules != "" {
		ctx.RulesPath = rules
	}
	if err := ctx.Init(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return ctx, nil
}

func loadCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "load",
		Usage: "create every group declared in the policy file",
		Action: func(cctx *cli.Context) error {
			ctx, err := newContext(cctx, logger)
			if err != nil {
				return err
			}
			groups, err := parseConfig(cctx.String("config"))
			if err != nil {
				return err
			}
			// A unique staging tag distinguishes this run's log lines from a
			// concurrent loader invocation without needing a lockfile.
			runID := uuid.New().String()
			for _, g := range groups {
				if err := ctx.Create(g, false); err != nil {
					logger.Error("failed to create group",
						zap.String("run", runID), zap.String("group", g.Name), zap.Error(err))
					return err
				}
				logger.Info("group created", zap.String("run", runID), zap.String("group", g.Name))
			}
			return nil
		},
	}
}

func createCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "create a single group from the policy file by name",
		ArgsUsage: "NAME",
		Action: func(cctx *cli.Context) error {
			ctx, err := newContext(cctx, logger)
			if err != nil {
				return err
			}
			group, err := lookupGroup(cctx)
			if err != nil {
				return err
			}
			defer group.Free()
			return ctx.Create(group, false)
		},
	}
}

func modifyCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:      "modify",
		Usage:     "rewrite a single group's attribute values",
		ArgsUsage: "NAME",
		Action: func(cctx *cli.Context) error {
			ctx, err := newContext(cctx, logger)
			if err != nil {
				return err
			}
			group, err := lookupGroup(cctx)
			if err != nil {
				return err
			}
			defer group.Free()
			return ctx.Modify(group)
		},
	}
}

func deleteCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "remove a single group",
		ArgsUsage: "NAME",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ignore-migration", Usage: "do not move remaining tasks to the parent first"},
		},
		Action: func(cctx *cli.Context) error {
			ctx, err := newContext(cctx, logger)
			if err != nil {
				return err
			}
			group, err := lookupGroup(cctx)
			if err != nil {
				return err
			}
			defer group.Free()
			return ctx.Delete(group, cctx.Bool("ignore-migration"))
		},
	}
}

func attachCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:      "attach",
		Usage:     "attach a task id to a group",
		ArgsUsage: "NAME TID",
		Action: func(cctx *cli.Context) error {
			ctx, err := newContext(cctx, logger)
			if err != nil {
				return err
			}
			if cctx.NArg() < 2 {
				return fmt.Errorf("attach requires NAME and TID")
			}
			tid, err := strconv.Atoi(cctx.Args().Get(1))
			if err != nil {
				return fmt.Errorf("invalid tid: %w", err)
			}
			group, err := lookupGroup(cctx)
			if err != nil {
				return err
			}
			defer group.Free()
			return ctx.Attach(group, tid)
		},
	}
}

func execCommand(logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "spawn a process and route it through the rules engine once it has started",
		ArgsUsage: "-- PATH [ARGS...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "cache", Usage: "use the cached rule list instead of a fresh parse"},
		},
		Action: func(cctx *cli.Context) error {
			ctx, err := newContext(cctx, logger)
			if err != nil {
				return err
			}
			if err := ctx.LoadRules(); err != nil && cctx.Bool("cache") {
				return err
			}
			if cctx.NArg() == 0 {
				return fmt.Errorf("exec requires a command to run")
			}
			spec := &cgroup.LaunchSpec{
				Path:          cctx.Args().First(),
				Args:          cctx.Args().Tail(),
				UseRulesCache: cctx.Bool("cache"),
			}
			launcher, err := cgroup.NewLauncher(ctx, spec)
			if err != nil {
				return err
			}
			if err := launcher.Start(spec); err != nil {
				return err
			}
			code, err := launcher.Wait()
			if err != nil {
				return err
			}
			os.Exit(code)
			return nil
		},
	}
}

func lookupGroup(cctx *cli.Context) (*cgroup.Group, error) {
	if cctx.NArg() == 0 {
		return nil, fmt.Errorf("missing NAME argument")
	}
	name := cctx.Args().First()
	groups, err := parseConfig(cctx.String("config"))
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("group %q not declared in %s", name, cctx.String("config"))
}
