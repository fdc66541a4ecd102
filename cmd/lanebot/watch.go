package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"lanebot/internal/config"
	"lanebot/internal/progress"
	"lanebot/internal/watch"
)

var (
	// watchURL overrides the channel address taken from the config
	watchURL string
	// watchQuiet hides the live status line
	watchQuiet bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchURL, "url", "", "event channel URL (default: ws://<server.host>:<server.port>/)")
	watchCmd.Flags().BoolVarP(&watchQuiet, "quiet", "q", false, "suppress the status line")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a run as an observer",
	Long: `Connect to the event channel, print every event, and relay each line typed
on stdin to the other observers.

Examples:
  # Watch the local run
  lanebot watch

  # Watch a robot on the network
  lanebot watch --url ws://lanebot.local:8080/`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func watchAddr(cfg *config.Config) string {
	if watchURL != "" {
		return watchURL
	}
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)) + "/"
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	client, err := watch.Dial(ctx, watchAddr(cfg))
	if err != nil {
		return err
	}
	defer client.Close()

	prog := progress.NewProgress(client, watchQuiet)
	prog.Start()
	defer prog.Stop()

	go relayStdin(ctx, client, prog)

	return client.Receive(ctx, prog.Print)
}

func relayStdin(ctx context.Context, client *watch.Client, prog *progress.Progress) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := client.Send(scanner.Text()); err != nil {
			prog.Print(fmt.Sprintf("relay failed: %v", err))
			return
		}
	}
}
