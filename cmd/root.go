package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/realtime-chat/config"
)

var (
	cfgFile string
	v       = config.NewViper()
)

// rootCmd runs the server when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "chatd",
	Short: "Realtime group chat server",
	Long: `chatd serves realtime chat rooms over WebSocket, keeps a bounded
per-room history that survives restarts, and relays private messages
backed by SQLite.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CHAT_CONFIG)")
	rootCmd.PersistentFlags().Int("port", 3000, "HTTP/WebSocket listen port")
	rootCmd.PersistentFlags().String("admin-token", "", "token for the /admin endpoints")

	bindFlag(rootCmd, config.KeyPort, "port")
	bindFlag(rootCmd, config.KeyAdminToken, "admin-token")
}

func bindFlag(c *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, c.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}
