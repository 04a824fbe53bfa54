// 監査ログサービスのコマンドラインクライアント。
// イベントの記録、レコードの検索、死活確認を行う。
package main

import (
	"os"

	"github.com/nao1215/auditlog/cmd/auditctl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
