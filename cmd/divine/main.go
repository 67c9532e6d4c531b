// File: cmd/divine/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	config   string
	dev      bool
	server   string
	provider string
	question string
	telegram bool
	lang     string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "divine",
		Short:         "Cast a divination and wait for its AI interpretation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.config, "config", "config.yaml", "path to YAML config file")
	pf.BoolVar(&f.dev, "dev", false, "developer mode (config file optional, console logs)")
	pf.StringVar(&f.server, "server", "", "backend base URL (overrides client.server_url)")
	pf.StringVarP(&f.provider, "provider", "p", "", "AI provider profile to use")
	pf.StringVarP(&f.question, "question", "q", "", "question to ask")
	pf.BoolVar(&f.telegram, "telegram", false, "mirror progress to the configured Telegram chat")
	pf.StringVar(&f.lang, "lang", "", "language of progress output (overrides client.lang)")

	root.AddCommand(
		newHexagramCmd(f),
		newTarotCmd(f),
		newAstrologyCmd(f),
		newStatusCmd(f),
		newCancelCmd(f),
		newTokenCmd(f),
	)
	return root
}
