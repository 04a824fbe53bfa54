// Package cmd はauditctlのサブコマンドを定義する。
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/auditlog/pkg/auditclient"
)

// envServerURL は接続先URLの既定値を与える環境変数。
const envServerURL = "AUDITLOG_URL"

// defaultServerURL は環境変数も--serverも未指定の場合の接続先。
const defaultServerURL = "http://localhost:8085"

// options は全サブコマンド共通のフラグ。
type options struct {
	serverURL string
	timeout   time.Duration
}

// client はフラグからクライアントを生成する。
func (o *options) client() *auditclient.Client {
	return auditclient.New(o.serverURL)
}

// withTimeout はタイムアウト付きのコンテキストを返す。
func (o *options) withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, o.timeout)
}

// NewRootCommand はauditctlのルートコマンドを生成する。
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "auditctl",
		Short: "監査ログサービスのコマンドラインクライアント",
		Long: `auditctl は監査ログサービスのHTTP APIを呼び出すクライアントです。

監査イベントの記録（log）、記録済みレコードの検索（query）、
サービスの死活確認（health）を行います。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serverDefault := os.Getenv(envServerURL)
	if serverDefault == "" {
		serverDefault = defaultServerURL
	}
	root.PersistentFlags().StringVar(&opts.serverURL, "server", serverDefault, "監査ログサービスのURL（環境変数 "+envServerURL+"）")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "リクエストのタイムアウト")

	root.AddCommand(newLogCommand(opts))
	root.AddCommand(newQueryCommand(opts))
	root.AddCommand(newHealthCommand(opts))
	return root
}

// Execute はルートコマンドを実行し、終了コードを返す。
func Execute() int {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
