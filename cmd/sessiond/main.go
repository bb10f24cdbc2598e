// sessiond runs an overlay session-layer node: it terminates
// encrypted peer sessions between a switch-facing UDP socket and an
// inside-facing UDP socket, and optionally announces itself on the
// local network.
//
// Usage:
//
//	sessiond genkey --key ~/.fc-mesh/node.key
//	sessiond run --key ~/.fc-mesh/node.key --switch :9001 --inside 127.0.0.1:9002
//	sessiond peers
package main

import (
	"os"

	"github.com/backwardn/cjdns/cmd/sessiond/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
