package main

import (
	"fmt"
	"os"

	"gasguard/internal/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gasguard",
	Short: "GasGuard - gas and environment sensor alerting service",
	Long: `GasGuard ingests readings from gas, temperature and humidity sensors,
detects sustained alert conditions and emails the device owner, subject to
per-user rate limits and quiet hours.`,
	SilenceUsage: true,
}

// cfg 由 PersistentPreRun 加载，供各子命令使用
var cfg *config.Config

func init() {
	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		cfg = config.Load()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
