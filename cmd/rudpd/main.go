// Command rudpd is a thin demo harness around the rudp reliability
// core: a "serve" subcommand that logs every inbound packet it pops
// from its tracked connections (it sends nothing back beyond the
// core's own acks and handshake replies), and a "ping" subcommand that
// sends one packet per discipline to a remote rudpd and prints the
// connection's RTT estimate after each. Neither subcommand is part of the tested
// reliability core; grounded on MixinNetwork-mixin's urfave/cli/v2
// command-tree layout.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/SonicFreak94/rudp"
	"github.com/SonicFreak94/rudp/config"
	"github.com/SonicFreak94/rudp/diag"
	"github.com/SonicFreak94/rudp/transport"
	"github.com/SonicFreak94/rudp/wire"
)

func main() {
	app := &cli.App{
		Name:  "rudpd",
		Usage: "reliable-UDP connection core: demo server and client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a TOML tunables file (defaults baked in if omitted)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "listen for connections and log everything received",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Value: ":9841", Usage: "address to bind"},
					&cli.StringFlag{Name: "diag", Value: "", Usage: "optional diagnostics HTTP address, e.g. :9842"},
				},
				Action: serveCmd,
			},
			{
				Name:  "ping",
				Usage: "send one packet per discipline to a remote rudpd and print RTTs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "remote", Required: true, Usage: "remote address to ping"},
					&cli.StringFlag{Name: "listen", Value: ":0", Usage: "local address to bind"},
				},
				Action: pingCmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("rudpd failed")
	}
}

func loadTunables(c *cli.Context) rudp.Tunables {
	path := c.String("config")
	if path == "" {
		return rudp.DefaultTunables()
	}

	cfg, err := config.Load(path)
	if err != nil {
		logrus.WithError(err).Warn("failed to load config, using defaults")
		return rudp.DefaultTunables()
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err == nil {
		logrus.SetLevel(level)
	}
	logrus.SetReportCaller(cfg.ReportCaller)

	return cfg.Tunables
}

func serveCmd(c *cli.Context) error {
	tunables := loadTunables(c)
	log := logrus.NewEntry(logrus.StandardLogger())

	sock, err := transport.NewUDPSocket(c.String("listen"), log)
	if err != nil {
		return err
	}

	listener := transport.NewListener(sock, tunables, log)
	go listener.Serve()
	defer listener.Close()

	if path := c.String("config"); path != "" {
		watcher, err := config.WatchFile(path, log, func(cfg config.Config) {
			listener.SetTunables(cfg.Tunables)

			if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
				logrus.SetLevel(level)
			}
			logrus.SetReportCaller(cfg.ReportCaller)
		})
		if err != nil {
			log.WithError(err).Warn("config watch failed, tunables fixed at startup values")
		} else {
			defer watcher.Close()
		}
	}

	if addr := c.String("diag"); addr != "" {
		srv := diag.NewServer(addr, listener, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.WithError(err).Warn("diagnostics server stopped")
			}
		}()
		defer srv.Close()
	}

	log.WithField("addr", sock.LocalAddr().String()).Info("rudpd listening")

	for {
		for _, addr := range listener.Peers() {
			conn, ok := listener.Connection(rawAddr(addr))
			if !ok {
				continue
			}
			for {
				packet, ok := conn.Pop()
				if !ok {
					break
				}
				log.WithField("remote", addr).WithField("bytes", packet.Len()).Info("received")
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func pingCmd(c *cli.Context) error {
	tunables := loadTunables(c)
	log := logrus.NewEntry(logrus.StandardLogger())

	sock, err := transport.NewUDPSocket(c.String("listen"), log)
	if err != nil {
		return err
	}
	defer sock.Close()

	listener := transport.NewListener(sock, tunables, log)
	go listener.Serve()
	defer listener.Close()

	remote, err := net.ResolveUDPAddr("udp", c.String("remote"))
	if err != nil {
		return err
	}

	conn := listener.Connect(remote)

	disciplines := []wire.ReliableType{
		wire.None,
		wire.Newest,
		wire.Ack,
		wire.AckNewest,
		wire.Ordered,
	}

	for _, t := range disciplines {
		packet := wire.NewPacket()
		packet.WriteManageID(wire.Type)
		packet.WriteReliableType(t)
		if t != wire.None {
			packet.WriteManageID(wire.SequenceChunk)
			packet.WriteSequence(0)
		}
		packet.WriteManageID(wire.EOP)
		packet.WritePayload([]byte("ping"))

		state, err := conn.Send(packet, t != wire.None)
		if err != nil {
			fmt.Printf("%-11s error: %v\n", t, err)
			continue
		}
		fmt.Printf("%-11s %-12s rtt=%v\n", t, state, conn.RoundTripTime())
	}

	return nil
}

type rawAddr string

func (a rawAddr) Network() string { return "udp" }
func (a rawAddr) String() string  { return string(a) }
