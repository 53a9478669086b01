package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pivert/pivert/internal/credential"
	"github.com/pivert/pivert/internal/piv"
	"github.com/pivert/pivert/internal/transport"
)

const (
	defaultDataAddr  = "127.0.0.1:7816"
	defaultEventAddr = "127.0.0.1:7817"
)

var (
	flagPassword  string
	flagDataAddr  string
	flagEventAddr string
	flagLogLevel  string
)

var serveCmd = &cobra.Command{
	Use:   "serve <pfx-path>",
	Short: "Load a PKCS#12 credential and serve the PIV emulator",
	Args:  cobra.ExactArgs(1),
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagPassword, "password", "", "PKCS#12 password (env PIVERT_PASSWORD)")
	serveCmd.Flags().StringVar(&flagDataAddr, "data-addr", defaultDataAddr, "listen address for the data channel (env PIVERT_DATA_ADDR)")
	serveCmd.Flags().StringVar(&flagEventAddr, "event-addr", defaultEventAddr, "listen address for the event channel (env PIVERT_EVENT_ADDR)")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "zerolog level: debug, info, warn, error (env PIVERT_LOG_LEVEL)")

	_ = viper.BindPFlag("password", serveCmd.Flags().Lookup("password"))
	_ = viper.BindPFlag("data_addr", serveCmd.Flags().Lookup("data-addr"))
	_ = viper.BindPFlag("event_addr", serveCmd.Flags().Lookup("event-addr"))
	_ = viper.BindPFlag("log_level", serveCmd.Flags().Lookup("log-level"))
}

func runServe(cmd *cobra.Command, args []string) error {
	pfxPath := args[0]

	password := viper.GetString("password")
	if password == "" {
		return fmt.Errorf("no PKCS#12 password given: pass --password or set PIVERT_PASSWORD")
	}

	level, err := zerolog.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger := zerolog.New(zerolog.NewConsoleWriter()).Level(level).With().Timestamp().Logger()

	key, err := credential.LoadPFXFile(pfxPath, password)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	logger.Info().Str("pfx", pfxPath).Msg("credential loaded")

	handler, err := piv.NewHandler(key, nil, nil, logger)
	if err != nil {
		return fmt.Errorf("build card handler: %w", err)
	}

	dataAddr := viper.GetString("data_addr")
	eventAddr := viper.GetString("event_addr")

	dataListener, err := net.Listen("tcp", dataAddr)
	if err != nil {
		return fmt.Errorf("listen on data channel %s: %w", dataAddr, err)
	}
	defer dataListener.Close()

	eventListener, err := net.Listen("tcp", eventAddr)
	if err != nil {
		return fmt.Errorf("listen on event channel %s: %w", eventAddr, err)
	}
	defer eventListener.Close()

	logger.Info().Str("data_addr", dataAddr).Str("event_addr", eventAddr).Msg("pivertd listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		dataListener.Close()
		eventListener.Close()
	}()

	eventConnCh := make(chan net.Conn, 1)
	go func() {
		conn, err := eventListener.Accept()
		if err != nil {
			logger.Debug().Err(err).Msg("event listener closed")
			return
		}
		eventConnCh <- conn
	}()

	for {
		conn, err := dataListener.Accept()
		if err != nil {
			logger.Info().Msg("data listener closed, shutting down")
			return nil
		}

		session := transport.NewSession(handler, logger)
		go serveConn(session, conn, eventConnCh, logger)
	}
}

func serveConn(session *transport.Session, conn net.Conn, eventConnCh <-chan net.Conn, logger zerolog.Logger) {
	defer conn.Close()

	select {
	case eventConn := <-eventConnCh:
		defer eventConn.Close()
		if err := session.EmitCardInserted(eventConn); err != nil {
			logger.Warn().Err(err).Msg("failed to emit card-inserted event")
		}
	default:
	}

	if err := session.Serve(conn, conn); err != nil {
		logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("session ended with error")
	}
}
