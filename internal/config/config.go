// Package config は監査ログサービスの設定を環境変数から読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config はサーバープロセスの設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `env:"PORT" envDefault:"8085"`
	// DBPath はSQLiteデータベースファイルのパス。":memory:"も指定できる。
	DBPath string `env:"DB_PATH" envDefault:"/data/audit.db"`
	// GinMode はGinの動作モード（debug, release, test）。
	GinMode string `env:"GIN_MODE" envDefault:"release"`
	// AllowedOrigins はCORSを許可するオリジンのカンマ区切りリスト。
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	// StoreTimeout は1回のストア操作に許す最大時間。
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// Logging はログ出力の設定。
	Logging LoggingConfig
}

// LoggingConfig はログ出力の設定。
type LoggingConfig struct {
	// Level はログレベル（debug, info, warn, error）。
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	// Format はログ形式（json, console）。
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load は.envファイル（存在する場合）と環境変数から設定を読み込む。
// .envの値は既に設定されている環境変数を上書きしない。
// files を省略した場合はカレントディレクトリの .env を参照する。
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("%s の読み込みに失敗: %w", f, err)
		}
	}
	return parse(env.Options{})
}

// Parse は指定された環境変数のマップから設定を読み込む。
// プロセスの環境変数は参照しない。
func Parse(environ map[string]string) (Config, error) {
	if environ == nil {
		environ = map[string]string{}
	}
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("環境変数の解析に失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORTが空です")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("DB_PATHが空です")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUTは正の値である必要があります: %s", c.StoreTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUTは正の値である必要があります: %s", c.ShutdownTimeout)
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("GIN_MODEが不正です: %q", c.GinMode)
	}
	return nil
}
