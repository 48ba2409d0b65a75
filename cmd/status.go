package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cygnusops/netdumpd/internal/admin"
)

var (
	statusSocket  string
	statusTimeout time.Duration
)

// statusCmd queries a running daemon's admin socket, the CLI
// equivalent of the source's netdump-status monitor script.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running netdumpd for active sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := admin.NewClient(statusSocket, statusTimeout)

		ver, err := client.Version()
		if err != nil {
			return fmt.Errorf("query version: %w", err)
		}
		fmt.Printf("netdumpd %s\n", ver)

		sessions, err := client.Sessions()
		if err != nil {
			return fmt.Errorf("query sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("no active sessions")
			return nil
		}
		fmt.Printf("%-16s %-24s %-14s %12s %10s\n", "IP", "HOSTNAME", "STATE", "BYTES", "IDLE(s)")
		for _, s := range sessions {
			fmt.Printf("%-16s %-24s %-14s %12d %10d\n", s.IP, s.Hostname, s.State, s.BytesReceived, s.IdleSeconds)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusSocket, "admin-socket", "/var/crash/.netdumpd.sock", "admin control socket path")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Second, "request timeout")
}
