package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/app"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <username>",
	Short: "Issue an access token for an existing identity (development only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDependencies(cmd, func(deps *app.Dependencies) error {
			if deps.Config.IsProduction() {
				return errors.New("token issuance is disabled in production")
			}

			identity, err := deps.Repos.Identities.GetByUsername(cmd.Context(), args[0])
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("no identity named %q", args[0])
			}
			if err != nil {
				return err
			}

			token, expiresAt, err := deps.Tokens.Issue(identity.ID, identity.Username, string(identity.Role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "role %s, expires %s\n", identity.Role, expiresAt.Format(time.RFC3339))
			return nil
		})
	},
	// a development token can be issued against a throwaway store
	Annotations: map[string]string{annotationAnyStorage: "true"},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
