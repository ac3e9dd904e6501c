package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check nat64d health",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := client.Health(context.Background())
			if err != nil {
				return fmt.Errorf("get health: %w", err)
			}

			out, err := formatHealth(resp, outputFormat)
			if err != nil {
				return fmt.Errorf("format health: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
