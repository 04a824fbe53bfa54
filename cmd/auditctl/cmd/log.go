package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/nao1215/auditlog/pkg/audit"
)

// newLogCommand は監査イベントを記録するサブコマンドを生成する。
func newLogCommand(opts *options) *cobra.Command {
	var ev audit.Event
	var metadata string

	c := &cobra.Command{
		Use:   "log",
		Short: "監査イベントを記録する",
		Example: `  auditctl log --actor alice --action login --resource console
  auditctl log --actor bob --action delete --resource doc-1 --metadata '{"reason":"cleanup"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("metadata") {
				ev.Metadata = audit.NewMetadata(metadata)
			}

			ctx, cancel := opts.withTimeout(cmd.Context())
			defer cancel()

			ack, err := opts.client().Log(ctx, ev)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(ack)
		},
	}

	c.Flags().StringVar(&ev.Actor, "actor", "", "操作の実行者（必須）")
	c.Flags().StringVar(&ev.Action, "action", "", "実行された操作（必須）")
	c.Flags().StringVar(&ev.Resource, "resource", "", "操作の対象（必須）")
	c.Flags().StringVar(&metadata, "metadata", "", "任意の補足情報")
	_ = c.MarkFlagRequired("actor")
	_ = c.MarkFlagRequired("action")
	_ = c.MarkFlagRequired("resource")
	return c
}
