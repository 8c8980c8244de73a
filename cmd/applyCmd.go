package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"Netshape/pkg"
)

func newApplyCmd(c *pkg.Calculator) *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply Topology",
		Long:  `Apply Topology with Interfaces list and Links list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filepath, _ := cmd.Flags().GetString("from")
			if filepath == "" {
				return errors.New("a topology file is required (-f)")
			}
			return c.ApplyTopoConfig(cmd.Context(), filepath)
		},
	}
	applyCmd.Flags().StringP("from", "f", "", "Path to the topology configuration file")
	return applyCmd
}
