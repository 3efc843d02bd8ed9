package main

import (
	"errors"
	"fmt"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/app"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/ledger"
	"github.com/spf13/cobra"
)

// errChainBroken makes the command exit non-zero after the details are printed
var errChainBroken = errors.New("audit ledger integrity violation")

var verifyFrom, verifyTo int64

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute the audit ledger hash chain",
	Long: `Recomputes every integrity hash in the requested range and reports the
first event whose stored hash does not match, with both hashes. Without
--from and --to the whole chain is checked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDependencies(cmd, func(deps *app.Dependencies) error {
			var (
				result *ledger.VerificationResult
				err    error
			)
			if verifyFrom > 0 || verifyTo > 0 {
				result, err = deps.Ledger.Check(cmd.Context(), verifyFrom, verifyTo)
			} else {
				result, err = deps.Ledger.CheckAll(cmd.Context())
			}

			out := cmd.OutOrStdout()
			if services.IsLedgerIntegrityViolation(err) {
				details := services.GetErrorDetails(err)
				fmt.Fprintf(out, "INTEGRITY VIOLATION at event %v\n", details["event_id"])
				if field, ok := details["field"]; ok {
					fmt.Fprintf(out, "  stored %v does not match the hashed actor reference\n", field)
					fmt.Fprintf(out, "  hashed actor_ref: %v\n", details["expected"])
					fmt.Fprintf(out, "  stored actor_id:  %v\n", details["actual"])
				} else {
					fmt.Fprintf(out, "  expected hash: %v\n", details["expected"])
					fmt.Fprintf(out, "  stored hash:   %v\n", details["actual"])
				}
				if result != nil {
					fmt.Fprintf(out, "  verified before break: %d events from id %d\n", result.Checked, result.FromID)
				}
				return errChainBroken
			}
			if err != nil {
				return err
			}

			if result.Checked == 0 {
				fmt.Fprintln(out, "ledger OK: no events")
				return nil
			}
			fmt.Fprintf(out, "ledger OK: %d events verified (ids %d..%d)\n", result.Checked, result.FromID, result.ToID)
			return nil
		})
	},
}

func init() {
	verifyCmd.Flags().Int64Var(&verifyFrom, "from", 0, "first event id to verify")
	verifyCmd.Flags().Int64Var(&verifyTo, "to", 0, "last event id to verify (default: head)")
	rootCmd.AddCommand(verifyCmd)
}
