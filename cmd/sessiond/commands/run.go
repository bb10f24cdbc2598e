package commands

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/backwardn/cjdns/pkg/admin"
	"github.com/backwardn/cjdns/pkg/discovery"
	"github.com/backwardn/cjdns/pkg/eventbus"
	"github.com/backwardn/cjdns/pkg/session"
	"github.com/backwardn/cjdns/pkg/transport"
)

// protocolVersion is the version announced in the LAN beacon.
const protocolVersion = 21

func runCmd() *cobra.Command {
	var (
		switchAddr    string
		insideAddr    string
		beaconOn      bool
		statsInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the session-layer node",
		Long: `Run the session-layer node.

The switch socket exchanges encrypted fabric datagrams with the
routing switch; the inside socket exchanges plaintext datagrams with
the upper-layer process. Each socket forwards to the address it last
heard from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ca, err := openCryptoAuth()
			if err != nil {
				return err
			}
			lf := logging.NewDefaultLoggerFactory()
			log := lf.NewLogger("sessiond")

			bus := eventbus.NewEmitter(eventbus.Config{LoggerFactory: lf})

			var mgr *session.Manager
			switchSock, err := transport.NewUDP(transport.UDPConfig{
				ListenAddr:    switchAddr,
				Handler:       func(data []byte, _ net.Addr) { mgr.HandleFromSwitch(data) },
				LoggerFactory: lf,
			})
			if err != nil {
				return fmt.Errorf("binding switch socket: %w", err)
			}
			defer switchSock.Close()
			insideSock, err := transport.NewUDP(transport.UDPConfig{
				ListenAddr:    insideAddr,
				Handler:       func(data []byte, _ net.Addr) { mgr.HandleFromInside(data) },
				LoggerFactory: lf,
			})
			if err != nil {
				return fmt.Errorf("binding inside socket: %w", err)
			}
			defer insideSock.Close()

			mgr, err = session.NewManager(session.Config{
				CryptoAuth:    ca,
				Bus:           bus,
				SwitchOut:     func(pkt []byte) { switchSock.Send(pkt) },
				InsideOut:     func(pkt []byte) { insideSock.Send(pkt) },
				LoggerFactory: lf,
			})
			if err != nil {
				return err
			}
			mgr.Start()
			defer mgr.Close()

			if err := switchSock.Start(); err != nil {
				return err
			}
			if err := insideSock.Start(); err != nil {
				return err
			}

			if beaconOn {
				beacon, err := discovery.NewBeacon(discovery.BeaconConfig{
					PublicKey:     ca.PublicKey(),
					Version:       protocolVersion,
					LoggerFactory: lf,
				})
				if err != nil {
					return err
				}
				if err := beacon.Start(); err != nil {
					return err
				}
				defer beacon.Close()
			}

			view, err := admin.NewSessionView(admin.Config{Manager: mgr})
			if err != nil {
				return err
			}
			if statsInterval > 0 {
				go statsLoop(view, statsInterval, log)
			}

			log.Infof("node [%s] up, switch [%s] inside [%s]",
				ca.IP6(), switchAddr, insideAddr)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			log.Infof("shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&switchAddr, "switch", ":9001", "switch-facing UDP listen address")
	cmd.Flags().StringVar(&insideAddr, "inside", "127.0.0.1:9002", "inside-facing UDP listen address")
	cmd.Flags().BoolVar(&beaconOn, "beacon", false, "announce this node on the local network")
	cmd.Flags().DurationVar(&statsInterval, "stats-interval", 0,
		"log per-session statistics at this interval (0 disables)")
	return cmd
}

func statsLoop(view *admin.SessionView, interval time.Duration, log logging.LeveledLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		for page := 0; ; page++ {
			p := view.Handles(page)
			for _, h := range p.Handles {
				stats, err := view.SessionStats(h)
				if err != nil {
					continue
				}
				log.Infof("session [%s] state [%s] metric [%d] in [%d] out [%d]",
					stats.IP6, stats.State, stats.Metric, stats.BytesIn, stats.BytesOut)
			}
			if !p.More {
				break
			}
		}
	}
}

