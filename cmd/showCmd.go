package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"Netshape/pkg"
)

func newShowCmd(c *pkg.Calculator) *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show Resources",
		Long:  `Show the shaped interfaces, or the qdiscs the kernel reports for them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch class := cmd.Flag("class").Value.String(); class {
			case "interfaces":
				c.ShowInterfaces(cmd.OutOrStdout())
				return nil
			case "qdiscs":
				return c.ShowQdiscs(cmd.OutOrStdout())
			default:
				return fmt.Errorf("invalid class %q, expected interfaces or qdiscs", class)
			}
		},
	}
	showCmd.Flags().String("class", "interfaces", "Class of the element to show")
	return showCmd
}
