package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // ledger.timezone 在沒有系統時區資料的映像檔也能使用

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cash-ledger",
	Short: "cash-ledger is a personal bookkeeping service",
	Long:  `cash-ledger keeps accounts and income/expense transactions and reports each account's settled balance as of today.`,

	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "config/config.yaml", "path to the yaml config file (empty for defaults)")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(compactCmd())
}
