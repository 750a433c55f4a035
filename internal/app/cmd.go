package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はサブコマンドを登録したルートコマンドを生成する。
// サブコマンドを省略した場合はserveとして動作する。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := &cobra.Command{
		Use:   string(CommandServe),
		Short: "Start the web server and the session cleanup loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	root := &cobra.Command{
		Use:           "qredentials",
		Short:         "Qredentials identity dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "Apply pending database migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := Init(w)
				if err != nil {
					return err
				}
				return runMigrate(cfg)
			},
		},
		// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
		&cobra.Command{
			Use:   string(CommandHealthcheck),
			Short: "Check /health of the local server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = "8080"
				}
				return runHealthcheck(cmd.Context(), port)
			},
		},
	)

	return root
}
