// Command qredentials はQredentialsのWebサーバーとメンテナンス用サブコマンドを提供する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/qredentials/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "qredentials: %v\n", err)
		os.Exit(1)
	}
}
