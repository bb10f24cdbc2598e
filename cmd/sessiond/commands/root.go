// Package commands implements the sessiond command line.
package commands

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/backwardn/cjdns/pkg/cryptoauth"
)

var keyFile string

// Execute runs the sessiond command line.
func Execute() error {
	root := &cobra.Command{
		Use:          "sessiond",
		Short:        "Overlay session-layer node",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&keyFile, "key", defaultKeyFile(),
		"path of the node private key file")

	root.AddCommand(genkeyCmd(), runCmd(), peersCmd())
	return root.Execute()
}

func defaultKeyFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "node.key"
	}
	return filepath.Join(dir, ".fc-mesh", "node.key")
}

// loadPrivateKey reads the hex-encoded private key file.
func loadPrivateKey(path string) ([32]byte, error) {
	var priv [32]byte
	data, err := os.ReadFile(path)
	if err != nil {
		return priv, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return priv, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(raw) != 32 {
		return priv, fmt.Errorf("parsing %s: key must be 32 bytes, got %d", path, len(raw))
	}
	copy(priv[:], raw)
	return priv, nil
}

// writePrivateKey writes the key file, refusing to clobber one that
// already exists.
func writePrivateKey(path string, priv [32]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, hex.EncodeToString(priv[:]))
	return err
}

func openCryptoAuth() (*cryptoauth.CryptoAuth, error) {
	priv, err := loadPrivateKey(keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading key: %w (run 'sessiond genkey' first)", err)
	}
	return cryptoauth.New(cryptoauth.Config{PrivateKey: priv})
}
