package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/tuannm99/novaproto/internal"
	"github.com/tuannm99/novaproto/sqlclient"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := internal.NewViper()
	var (
		histPath   string
		histMax    int
		oneShotSQL string
	)

	cmd := &cobra.Command{
		Use:          "novasql",
		Short:        "Interactive client for novasqld.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.Unmarshal(v)
			if err != nil {
				return err
			}
			logger, err := cfg.NewLogger(os.Stderr)
			if err != nil {
				return err
			}

			cli, err := sqlclient.DialContext(cmd.Context(), cfg.Client.Addr, cfg.Client.Timeout,
				sqlclient.WithCacheSize(cfg.Client.DescriptorCacheSize),
				sqlclient.WithMaxFrameSize(cfg.Server.MaxFrameSize),
				sqlclient.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("dial: %w", err)
			}
			defer func() { _ = cli.Close() }()

			r := &repl{cli: cli, hist: NewHistory(histPath), out: cmd.OutOrStdout()}

			// one-shot mode
			if strings.TrimSpace(oneShotSQL) != "" {
				res, err := cli.Exec(oneShotSQL)
				if err != nil {
					return err
				}
				printResult(r.out, res)
				return nil
			}

			_ = r.hist.Load(histMax)
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "novasql> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("readline: %w", err)
			}
			defer func() { _ = rl.Close() }()

			// preload history into readline so the arrow keys work immediately
			for _, line := range r.hist.lines {
				_ = rl.SaveHistory(line)
			}

			fmt.Fprintf(r.out, "connected to %s\n", cfg.Client.Addr)
			fmt.Fprintln(r.out, "type \\help for help")
			r.run(rl)
			return nil
		},
	}

	f := cmd.Flags()
	f.String("addr", v.GetString("client.addr"), "server address")
	f.Duration("timeout", 3*time.Second, "dial timeout")
	f.Int("cache-size", v.GetInt("client.descriptor_cache_size"), "descriptor sets kept per connection")
	f.StringVar(&histPath, "history", defaultHistoryPath(), "history file path")
	f.IntVar(&histMax, "history-max", 2000, "max history lines loaded into memory")
	f.StringVarP(&oneShotSQL, "command", "c", "", "execute one SQL and exit (must end with ';')")
	for key, flag := range map[string]string{
		"client.addr":                  "addr",
		"client.timeout":               "timeout",
		"client.descriptor_cache_size": "cache-size",
	} {
		cobra.CheckErr(v.BindPFlag(key, f.Lookup(flag)))
	}
	return cmd
}
