package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show miner status",
	Long:  `Query a running miner's status endpoint and display hashrate, uptime and solution counts.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().String("api-url", "http://localhost:9090", "miner status listener URL")
	statusCmd.Flags().Bool("watch", false, "refresh every interval")
	statusCmd.Flags().Duration("interval", 5*time.Second, "watch interval")
}

func runStatus(cmd *cobra.Command, args []string) error {
	apiURL, _ := cmd.Flags().GetString("api-url")
	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")

	if watch {
		for {
			// Clear screen (ANSI escape code)
			fmt.Print("\033[H\033[2J")
			if err := displayStatus(apiURL); err != nil {
				return err
			}
			time.Sleep(interval)
		}
	}

	return displayStatus(apiURL)
}

func displayStatus(apiURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(apiURL + "/status")
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status endpoint returned HTTP %d", resp.StatusCode)
	}

	var status map[string]any
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}

	fmt.Println("Scavminer Status")
	fmt.Println("================")
	for _, key := range []string{"miner_id", "threads", "total_solutions", "uptime_seconds"} {
		if v, ok := status[key]; ok {
			fmt.Printf("  %-16s %v\n", key, v)
		}
	}
	return nil
}
