package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/backwardn/cjdns/pkg/addr"
	"github.com/backwardn/cjdns/pkg/cryptoauth"
)

func genkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a node key and print its identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, pub, err := cryptoauth.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := writePrivateKey(keyFile, priv); err != nil {
				return err
			}
			ip, _ := addr.ForPublicKey(pub)
			fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\npub:  %s\naddr: %s\n",
				keyFile, pub, ip)
			return nil
		},
	}
}
