// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command chanrelay copies every new message from a set of source channels
// into a set of target channels, as the relay's own account.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aiku/chanrelay/pkg/config"
	"github.com/aiku/chanrelay/pkg/relay"
	"github.com/aiku/chanrelay/pkg/session"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	exitError       = 1
	exitConfigError = 2
)

func newRootCommand() *cobra.Command {
	var configPath string

	loadConfig := func() (*config.Config, *zerolog.Logger, error) {
		cfg, err := config.Load(configPath, env.ToMap(os.Environ()))
		if err != nil {
			return nil, nil, err
		}
		if err = cfg.Validate(); err != nil {
			return nil, nil, err
		}
		log, err := cfg.Logger()
		if err != nil {
			return nil, nil, err
		}
		return cfg, log, nil
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Log in if needed, then relay messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			return runRelay(cmd.Context(), cfg, *log)
		},
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Create the session file without starting the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			_, err = bootstrap(cmd.Context(), cfg, *log)
			return err
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chanrelay %s (commit %s, built %s)\n", Tag, Commit, BuildTime)
		},
	}

	root := &cobra.Command{
		Use:           "chanrelay",
		Short:         "Copy messages from source channels into target channels",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runCmd.RunE,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
	root.AddCommand(runCmd, loginCmd, versionCmd)
	return root
}

// bootstrap makes sure a session exists and returns it.
func bootstrap(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*session.Session, error) {
	store := session.NewStore(cfg.Session.Dir, cfg.Session.Name)
	if _, err := session.Bootstrap(ctx, store, newAuthenticator(cfg, newTerminalPrompter()), log); err != nil {
		return nil, err
	}
	sess, err := store.Load()
	if err != nil {
		return nil, err
	}
	if err = checkSession(cfg, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func runRelay(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	sess, err := bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}
	platform, err := newPlatform(cfg, sess, log)
	if err != nil {
		return err
	}
	return relay.New(platform, cfg.RelayOptions(), log).Run(ctx)
}

func exitCode(err error) int {
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return exitConfigError
	}
	return exitError
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}
