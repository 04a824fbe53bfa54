package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/auditlog/pkg/audit"
)

// newQueryCommand は監査レコードを検索するサブコマンドを生成する。
func newQueryCommand(opts *options) *cobra.Command {
	var (
		filter audit.Filter
		output string
	)

	c := &cobra.Command{
		Use:   "query",
		Short: "監査レコードを新しい順に検索する",
		Example: `  auditctl query --actor alice --limit 10
  auditctl query --action login --output table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "json" && output != "table" {
				return fmt.Errorf("--output は json または table を指定してください: %q", output)
			}

			ctx, cancel := opts.withTimeout(cmd.Context())
			defer cancel()

			records, err := opts.client().Query(ctx, filter)
			if err != nil {
				return err
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, r := range records {
					if err := enc.Encode(r); err != nil {
						return err
					}
				}
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED_AT\tACTOR\tACTION\tRESOURCE\tMETADATA")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.CreatedAt.UTC().Format(audit.TimeFormat), r.Actor, r.Action, r.Resource, r.Metadata.String)
			}
			return tw.Flush()
		},
	}

	c.Flags().StringVar(&filter.Actor, "actor", "", "実行者の完全一致条件")
	c.Flags().StringVar(&filter.Action, "action", "", "操作の完全一致条件")
	c.Flags().StringVar(&filter.Resource, "resource", "", "対象の完全一致条件")
	c.Flags().IntVar(&filter.Limit, "limit", audit.DefaultLimit, "取得する最大件数")
	c.Flags().StringVarP(&output, "output", "o", "json", "出力形式（json, table）")
	return c
}
