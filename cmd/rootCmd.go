package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"Netshape/pkg"
)

// NewRootCmd builds the command tree around c. A fresh tree is built for
// every command line so flag values never leak between commands of one
// interactive session.
func NewRootCmd(c *pkg.Calculator) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "netshape",
		Short:         "netshape traffic shaping CLI",
		Long:          "A command-line tool for shaping the links of network namespaces with tc.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(cmd.Flag("log-level").Value.String())
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			if f := cmd.Flag("default-bandwidth"); f.Changed {
				return c.SetDefaultBandwidth(f.Value.String())
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("log-level", logrus.InfoLevel.String(), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("default-bandwidth", "",
		"Rate of a newly installed class, overriding the topology file (default "+pkg.DefaultBandwidth+")")

	rootCmd.AddCommand(newApplyCmd(c), newSetCmd(c), newShowCmd(c))
	return rootCmd
}

// Execute runs one command line against c.
func Execute(ctx context.Context, c *pkg.Calculator, args []string) error {
	rootCmd := NewRootCmd(c)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
