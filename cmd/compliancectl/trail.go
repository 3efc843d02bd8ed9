package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/app"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var trailOpts struct {
	actor  string
	action string
	target string
	since  string
	until  string
	limit  int
}

var trailCmd = &cobra.Command{
	Use:   "trail",
	Short: "Export the audit trail as JSON lines",
	Long: `Streams audit events in id order, one JSON object per line. Filters
combine with AND; --actor matches the frozen actor reference, so events of
purged identities are still found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := trailFilter()
		if err != nil {
			return err
		}

		return withDependencies(cmd, func(deps *app.Dependencies) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			n := 0
			for event, err := range deps.Ledger.Events(cmd.Context(), filter) {
				if err != nil {
					return err
				}
				if err := enc.Encode(event); err != nil {
					return err
				}
				n++
				if trailOpts.limit > 0 && n == trailOpts.limit {
					break
				}
			}
			return nil
		})
	},
}

func trailFilter() (repositories.AuditFilter, error) {
	var filter repositories.AuditFilter

	if trailOpts.actor != "" {
		id, err := uuid.Parse(trailOpts.actor)
		if err != nil {
			return filter, fmt.Errorf("--actor must be a UUID: %w", err)
		}
		filter.ActorID = &id
	}
	if trailOpts.action != "" {
		action := models.AuditAction(trailOpts.action)
		if !action.Valid() {
			return filter, fmt.Errorf("unknown audit action %q", trailOpts.action)
		}
		filter.Action = action
	}
	filter.TargetPrefix = trailOpts.target

	for _, f := range []struct {
		raw  string
		name string
		dst  *time.Time
	}{
		{trailOpts.since, "--since", &filter.Since},
		{trailOpts.until, "--until", &filter.Until},
	} {
		if f.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, f.raw)
		if err != nil {
			return filter, fmt.Errorf("%s must be an RFC 3339 timestamp: %w", f.name, err)
		}
		*f.dst = t
	}
	return filter, nil
}

func init() {
	trailCmd.Flags().StringVar(&trailOpts.actor, "actor", "", "actor identity id")
	trailCmd.Flags().StringVar(&trailOpts.action, "action", "", "audit action")
	trailCmd.Flags().StringVar(&trailOpts.target, "target-prefix", "", "target prefix, e.g. shipment:")
	trailCmd.Flags().StringVar(&trailOpts.since, "since", "", "inclusive lower timestamp bound (RFC 3339)")
	trailCmd.Flags().StringVar(&trailOpts.until, "until", "", "exclusive upper timestamp bound (RFC 3339)")
	trailCmd.Flags().IntVar(&trailOpts.limit, "limit", 0, "stop after this many events (0: no limit)")
	rootCmd.AddCommand(trailCmd)
}
