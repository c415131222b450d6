package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
)

var (
	snapshotURL     string
	snapshotTimeout time.Duration
)

// snapshotCmd asks a running server to write its history snapshot.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Trigger a history snapshot on a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AdminToken == "" {
			return errors.New("admin token is not configured (set CHAT_ADMIN_TOKEN or --admin-token)")
		}

		url := snapshotURL
		if url == "" {
			url = fmt.Sprintf("http://localhost%s", cfg.Addr())
		}

		agent := fiber.Post(url + "/admin/snapshot")
		agent.Set("X-Admin-Token", cfg.AdminToken)
		agent.Timeout(snapshotTimeout)

		code, body, errs := agent.Bytes()
		if len(errs) > 0 {
			return fmt.Errorf("snapshot request failed: %w", errors.Join(errs...))
		}
		if code != fiber.StatusOK {
			return fmt.Errorf("snapshot request returned %d: %s", code, body)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().StringVar(&snapshotURL, "url", "", "base URL of the running server (default http://localhost:<port>)")
	snapshotCmd.Flags().DurationVar(&snapshotTimeout, "timeout", 10*time.Second, "request timeout")
}
