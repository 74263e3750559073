package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func connectivityCmd(online bool) *cobra.Command {
	use, short := "offline", "Tell the daemon the network is down"
	if online {
		use, short = "online", "Tell the daemon the network is back"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := postJSON("/connectivity", map[string]bool{"online": online}, nil); err != nil {
				return err
			}

			fmt.Printf("connectivity set to %s\n", use)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(connectivityCmd(true), connectivityCmd(false))
}
