package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/myelin-ml/myelin"
	"github.com/myelin-ml/myelin/kernel"
	"github.com/myelin-ml/myelin/runtime"
)

func main() {
	compileCmd := &cli.Command{
		Name:   "compile",
		Action: compileAct,
		Args:   cli.Args{},
	}

	runCmd := &cli.Command{
		Name:   "run",
		Action: runAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "myelinc",
		Description: "myelinc compiles and runs myelin flow graphs",
		Commands: []*cli.Command{
			compileCmd,
			runCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		f, err := loadFlow(a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		res, err := myelin.Compile(ctx, f, kernel.DefaultLibrary())
		if err != nil {
			return errors.Wrap(err, "compile %v", a)
		}

		for name, cell := range res.Cells {
			fmt.Printf("cell %s:\n%s", name, cell.Main.String())

			for id, task := range cell.Tasks {
				fmt.Printf("cell %s task #%d:\n%s", name, id, task.String())
			}
		}
	}

	return nil
}

func runAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	rt := runtime.NewHost()

	for _, a := range c.Args {
		f, err := loadFlow(a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		res, err := myelin.Compile(ctx, f, kernel.DefaultLibrary())
		if err != nil {
			return errors.Wrap(err, "compile %v", a)
		}

		for _, cell := range res.Network.Cells {
			inst, err := rt.AllocateInstance(cell)
			if err != nil {
				return errors.Wrap(err, "allocate %s", cell.Name)
			}

			tlog.Printw("allocated instance", "cell", cell.Name, "bytes", len(inst.Host))
		}
	}

	return nil
}
