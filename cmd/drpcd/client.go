package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coregx/drpc/drpc"
	"github.com/coregx/drpc/config"
	"github.com/coregx/drpc/logger"
	"github.com/coregx/drpc/wsduplex"
)

var (
	clientConfigPath string
	clientMessage    string
	clientWS         bool
	clientWSPath     string
)

var clientCmd = &cobra.Command{
	Use:     "client",
	Short:   "Invoke the echo RPC against a running drpc server",
	Example: "drpcd client --message 'hello'\n  drpcd client --ws --ws-path /drpc --message 'hello'",
	Run:     runClient,
}

func init() {
	clientCmd.Flags().StringVar(&clientConfigPath, "config", "", "Configuration file path (defaults used if empty)")
	clientCmd.Flags().StringVar(&clientMessage, "message", "hello", "Message to echo")
	clientCmd.Flags().BoolVar(&clientWS, "ws", false, "Dial the server over a WebSocket duplex channel instead of raw TCP")
	clientCmd.Flags().StringVar(&clientWSPath, "ws-path", "/drpc", "HTTP path to request the WebSocket upgrade on when --ws is set")
	rootCmd.AddCommand(clientCmd)
}

func runClient(cmd *cobra.Command, args []string) {
	cfg := config.DefaultClient()
	if clientConfigPath != "" {
		c, err := config.LoadPath(clientConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		if err := c.Unpack(&cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to unpack config: %v\n", err)
			os.Exit(1)
		}
	}

	log := logger.New(cfg.Logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	var conn *drpc.Conn
	if clientWS {
		wsConn, err := wsduplex.DialClient(ctx, cfg.Addr, clientWSPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to dial websocket: %v\n", err)
			os.Exit(1)
		}
		conn = drpc.NewConn(wsduplex.NewDuplex(wsConn), drpc.WithConnLogger(log))
	} else {
		var err error
		conn, err = drpc.Dial(ctx, "tcp", cfg.Addr, drpc.WithConnLogger(log))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to dial: %v\n", err)
			os.Exit(1)
		}
	}
	defer conn.Close()

	var out []byte
	if err := conn.InvokeInto([]byte("echo"), []byte(clientMessage), &out); err != nil {
		fmt.Fprintf(os.Stderr, "invoke failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
