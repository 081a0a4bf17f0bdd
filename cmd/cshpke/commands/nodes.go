package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github.com/TheusHen/cshpke/cshpke"
)

func primaryServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "primary-server",
		Short: "Accept pairings, direct clients and secondary servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cshpke.RolePrimaryServer, nil)
		},
	}
}

func primaryClientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "primary-client",
		Short: "Pair with the primary server at --peer, then serve secondary clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Peer == "" {
				return errors.New("--peer is required")
			}
			return serve(cshpke.RolePrimaryClient, func(ctx context.Context, n *cshpke.Node) error {
				_, err := n.Pair(ctx, cfg.Peer)
				return err
			})
		},
	}
}

func secondaryServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secondary-server",
		Short: "Enroll with the primary server at --primary, then accept secondary sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Primary == "" {
				return errors.New("--primary is required")
			}
			return serve(cshpke.RoleSecondaryServer, func(ctx context.Context, n *cshpke.Node) error {
				_, err := n.Enroll(ctx, cfg.Primary)
				return err
			})
		},
	}
}

func secondaryClientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secondary-client [message...]",
		Short: "Enroll with the primary client at --primary and send to the secondary server at --peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Primary == "" || cfg.Peer == "" {
				return errors.New("--primary and --peer are required")
			}
			return send(cshpke.RoleSecondaryClient, args, func(ctx context.Context, n *cshpke.Node) error {
				_, err := n.Enroll(ctx, cfg.Primary)
				return err
			})
		},
	}
}

func clientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "client [message...]",
		Short: "Open a direct session to --peer and send the arguments, or stdin lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Peer == "" {
				return errors.New("--peer is required")
			}
			return send(cshpke.RoleClient, args, nil)
		},
	}
}

func suitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suites",
		Short: "List the cipher suites the configured catalog allows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := cfg.Catalog()
			if err != nil {
				return err
			}
			for _, s := range cat.Suites() {
				fmt.Println(s)
			}
			return nil
		},
	}
}

// serve runs a listening node until interrupted. setup runs once the
// node is listening and before connections are accepted.
func serve(role cshpke.Role, setup func(context.Context, *cshpke.Node) error) error {
	opts, err := nodeOptions(role)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	n := cshpke.NewNode(opts)
	if err := n.Listen(cfg.Listen); err != nil {
		return err
	}
	defer n.Close()
	if setup != nil {
		if err := setup(ctx, n); err != nil {
			return err
		}
	}
	return n.Serve(ctx)
}

// send opens one session for role and sends every message.
func send(role cshpke.Role, args []string, setup func(context.Context, *cshpke.Node) error) error {
	opts, err := nodeOptions(role)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	n := cshpke.NewNode(opts)
	if setup != nil {
		if err := setup(ctx, n); err != nil {
			return err
		}
	}
	ch, err := n.Connect(ctx, cfg.Peer)
	if err != nil {
		return err
	}
	jww.INFO.Printf("session open with %s using %s (%s)", cfg.Peer, ch.Suite(), ch.Mode())

	if len(args) > 0 {
		for _, m := range args {
			if err := ch.Send([]byte(m), nil); err != nil {
				_ = ch.Close()
				return err
			}
		}
		return ch.Close()
	}
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if err := ch.Send(sc.Bytes(), nil); err != nil {
			_ = ch.Close()
			return err
		}
	}
	if err := sc.Err(); err != nil {
		_ = ch.Close()
		return err
	}
	return ch.Close()
}
