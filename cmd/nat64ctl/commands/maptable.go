package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func maptableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maptable",
		Short: "List the loaded address-mapping table",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			entries, err := client.MapTable(context.Background())
			if err != nil {
				return fmt.Errorf("get map table: %w", err)
			}

			out, err := formatMapTable(entries, outputFormat)
			if err != nil {
				return fmt.Errorf("format map table: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
