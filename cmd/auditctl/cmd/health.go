package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newHealthCommand はサービスの死活を確認するサブコマンドを生成する。
func newHealthCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "監査ログサービスの死活を確認する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.withTimeout(cmd.Context())
			defer cancel()

			if err := opts.client().Health(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
