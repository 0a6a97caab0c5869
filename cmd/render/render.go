package render

import (
	"fmt"

	"github.com/agnosticeng/query-gateway/internal/catalog"
	"github.com/agnosticeng/query-gateway/internal/utils"
	"github.com/urfave/cli/v2"
)

var Flags = []cli.Flag{
	&cli.StringSliceFlag{Name: "var"},
}

func Command() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "print rendered catalog queries",
		ArgsUsage: "<catalog> [name...]",
		Flags:     Flags,
		Action: func(ctx *cli.Context) error {
			var (
				path  = ctx.Args().Get(0)
				names = ctx.Args().Tail()
				vars  = utils.ParseKeyValues(ctx.StringSlice("var"), "=")
			)

			if len(path) == 0 {
				return fmt.Errorf("a catalog path must be specified")
			}

			cat, err := catalog.Open(ctx.Context, path)

			if err != nil {
				return err
			}

			if len(names) == 0 {
				names = cat.Names()
			}

			for _, name := range names {
				str, err := cat.Resolve(name, vars)

				if err != nil {
					return err
				}

				fmt.Fprintln(ctx.App.Writer, "--------------------------------------------------------------------------------")
				fmt.Fprintln(ctx.App.Writer, name)
				fmt.Fprintln(ctx.App.Writer, "--------------------------------------------------------------------------------")
				fmt.Fprintln(ctx.App.Writer, str)
			}

			return nil
		},
	}
}
