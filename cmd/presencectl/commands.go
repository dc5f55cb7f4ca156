package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/gcm-presence/internal/auth"
	"github.com/Guizzs26/gcm-presence/internal/broker"
	"github.com/Guizzs26/gcm-presence/internal/catalog"
	"github.com/Guizzs26/gcm-presence/internal/clock"
	"github.com/Guizzs26/gcm-presence/internal/config"
	"github.com/Guizzs26/gcm-presence/internal/db"
	"github.com/Guizzs26/gcm-presence/internal/reset"
	"github.com/Guizzs26/gcm-presence/internal/store"
	"github.com/Guizzs26/gcm-presence/pkg/infra"
)

// newCheckCmd runs a single reset check against the configured backend
func newCheckCmd() *cobra.Command {
	var policyFlag string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one daily reset check and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := infra.NopLogger()
			if verbose {
				logger = infra.SetupLogger(cfg)
			}

			if policyFlag == "" {
				policyFlag = cfg.StalenessPolicy
			}
			policy, err := reset.ParsePolicy(policyFlag)
			if err != nil {
				return err
			}
			cal, err := clock.New(cfg.Timezone, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			paths := store.NewPaths(cfg.StoreRoot)
			st, closeStore, err := db.OpenStore(ctx, cfg, paths, cal, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := reset.New(st, paths, cal, logger, reset.WithPolicy(policy)).CheckNow(ctx)
			if err != nil {
				return fmt.Errorf("falha na verificação de reset: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "backend=%s policy=%s today=%s\n", cfg.StoreBackend, policy, res.Today)
			fmt.Fprintf(out, "outcome=%s marker=%q scanned=%d stale=%d\n", res.Outcome, res.Marker, res.Scanned, res.Stale)
			return nil
		},
	}
	cmd.Flags().StringVar(&policyFlag, "policy", "", "staleness policy (marker|marker+scan), defaults to STALENESS_POLICY")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log with the configured logger")
	return cmd
}

// newHashPasswordCmd reads a password from the argument or the first stdin line
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print an Argon2id hash for a region or admin password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					password = strings.TrimRight(sc.Text(), "\r\n")
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}
			if password == "" {
				return errors.New("empty password")
			}

			h, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func newCatalogCmd() *cobra.Command {
	var file string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and print the reference catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = config.Load().CatalogPath
			}
			c, err := catalog.Load(file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			}

			for _, r := range c.Regions {
				posts := c.PostsIn(r.ID)
				active := 0
				for _, p := range posts {
					if p.Active() {
						active++
					}
				}
				fmt.Fprintf(out, "%s\t%s\tinspectorates=%d\tposts=%d\tactive=%d\n",
					r.ID, r.Name, len(c.InspectoratesIn(r.ID)), len(posts), active)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML, defaults to CATALOG_PATH or the built-in catalog")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full catalog as JSON")
	return cmd
}

func newTopologyCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Declare the presence exchange and the audit queue on RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = config.Load().RabbitMQURL
			}
			if url == "" {
				return errors.New("no broker url: pass --url or set RABBITMQ_URL")
			}
			if err := broker.SetupTopology(url); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exchange %s and queue %s (%s) declared\n", broker.Exchange, broker.AuditQueue, broker.AuditBinding)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "AMQP url, defaults to RABBITMQ_URL")
	return cmd
}
