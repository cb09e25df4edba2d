package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ar-io/gatewaycore/internal/cachepolicy"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "policy", Short: "Inspect cache-policy files"}
	cmd.AddCommand(policyValidateCmd())
	return cmd
}

func policyValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path-to-policy.json>",
		Short: "Parse and validate a cache-policy file, reporting its resolved priority order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyValidate(args[0])
		},
	}
	return cmd
}

func runPolicyValidate(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	policies, err := cachepolicy.Load(raw)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s: %d polic(ies), in evaluation order:\n", path, len(policies))
	for _, p := range policies {
		state := "enabled"
		if !p.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(os.Stdout, "  [priority %d] %s (%s) retentionDays=%d %s\n", p.Priority, p.ID, p.Name, p.RetentionDays, state)
	}
	return nil
}
