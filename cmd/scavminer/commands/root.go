package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "1.2.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scavminer",
	Short: "Scavenger Mine CPU miner",
	Long: `Scavminer is a proof-of-work miner for the Scavenger Mine service. It
rotates through a set of Cardano wallet addresses, picks the easiest open
challenge each one has not yet attempted, and searches for a nonce whose
keyed memory-hard hash clears the challenge difficulty. Accepted solutions
are recorded with their cryptographic receipts; failed submissions are
retried on a backoff schedule.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`scavminer {{.Version}}
Scavenger Mine CPU miner
`)
}
