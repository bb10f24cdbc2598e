package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/backwardn/cjdns/pkg/discovery"
)

func peersCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "Browse the local network for node beacons",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := discovery.NewResolver(discovery.ResolverConfig{BrowseTimeout: timeout})
			peers, err := r.Browse(context.Background())
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no beacons heard")
				return nil
			}
			for _, p := range peers {
				fmt.Fprintf(cmd.OutOrStdout(), "%s v%d %v port %d\n",
					p.IP6, p.Version, p.Addrs, p.Port)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultBrowseTimeout,
		"how long to listen for beacons")
	return cmd
}
