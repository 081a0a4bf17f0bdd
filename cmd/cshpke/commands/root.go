package commands

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/TheusHen/cshpke/cshpke"
	"github.com/TheusHen/cshpke/cshpke/config"
)

var (
	cfgFile string
	cfg     config.Config
)

func Execute() error {
	root := &cobra.Command{
		Use:           "cshpke",
		Short:         "HPKE channels with negotiated cipher suites and delegated session keys",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
				if err := viper.ReadInConfig(); err != nil {
					return errors.Wrapf(err, "reading %s", cfgFile)
				}
			}
			var err error
			if cfg, err = config.Load(viper.GetViper()); err != nil {
				return err
			}
			initLog(cfg.LogLevel, cfg.LogFile)
			return nil
		},
	}

	viper.SetEnvPrefix("cshpke")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	pf.String(config.KeyNetwork, "tcp", "transport: tcp or quic")
	pf.String(config.KeyListen, "127.0.0.1:8888", "listen address")
	pf.String(config.KeyPeer, "", "address of the node to pair with or send to")
	pf.String(config.KeyPrimary, "", "address of the primary node to enroll with")
	pf.StringSlice(config.KeyKEMs, nil, "supported KEMs, most preferred first")
	pf.StringSlice(config.KeyKDFs, nil, "supported KDFs, most preferred first")
	pf.StringSlice(config.KeyAEADs, nil, "supported AEADs, most preferred first")
	pf.String(config.KeyPolicy, "responder-preference", "selection policy: responder-preference or last-offered-match")
	pf.String(config.KeyMode, "psk", "HPKE mode of direct sessions: base, psk, auth or auth-psk")
	pf.Uint8(config.KeyPSKID, 1, "pre-shared key id")
	pf.StringSlice(config.KeyPSKs, nil, "pre-shared keys as id:hex, replacing the built-in table")
	pf.String(config.KeyPairID, "", "pairing id")
	pf.String(config.KeyParticipantID, "", "secondary participant id")
	pf.String(config.KeyInfo, "cshpke session", "HPKE info string")
	pf.String(config.KeyFiveTuple, "5-tuple", "binder label when the transport has no usable endpoints")
	pf.Bool(config.KeyDetached, false, "send authentication tags in their own packet")
	pf.Int(config.KeyCompression, 0, "LZ4-compress payloads of at least this many bytes (0 disables)")
	pf.Int(config.KeyAcceptRate, 100, "maximum accepted connections per second")
	pf.UintP(config.KeyLogLevel, "v", 0, "verbosity: 0 info, 1 debug, 2 trace")
	pf.String(config.KeyLogFile, "-", "log file path, - for stdout")
	pf.VisitAll(func(f *pflag.Flag) {
		if f.Name != "config" {
			_ = viper.BindPFlag(f.Name, f)
		}
	})

	root.AddCommand(
		primaryServerCmd(),
		primaryClientCmd(),
		secondaryServerCmd(),
		secondaryClientCmd(),
		clientCmd(),
		suitesCmd(),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

// nodeOptions builds node options for role from the loaded config.
func nodeOptions(role cshpke.Role) (cshpke.Options, error) {
	sess, err := cfg.SessionOptions()
	if err != nil {
		return cshpke.Options{}, err
	}
	return cshpke.Options{
		Role:        role,
		Network:     cfg.Network,
		Session:     sess,
		Compression: cfg.Compression,
		AcceptRate:  cfg.AcceptRate,
		OnMessage:   printMessage,
	}, nil
}

func printMessage(m cshpke.Message) {
	jww.INFO.Printf("message from %s (%s, %s): %d bytes", m.From, m.Role, m.Suite, len(m.Plaintext))
	fmt.Printf("%s\n", m.Plaintext)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(io.Discard)
		logOutput, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			jww.FATAL.Panicf("opening log file: %v", err)
		}
		jww.SetLogOutput(logOutput)
	}

	switch {
	case threshold > 1:
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
		jww.INFO.Printf("log level set to: TRACE")
	case threshold == 1:
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
		jww.INFO.Printf("log level set to: DEBUG")
	default:
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}
