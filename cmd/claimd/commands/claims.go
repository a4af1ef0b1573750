package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/proffesor-for-testing/agentic-qe-sub013/pkg/claimengine"
)

var (
	claimsStatus   string
	claimsDomain   string
	claimsPriority string
	claimsJSON     bool

	createType     string
	createPriority string
	createDomain   string
	createTitle    string
)

// ClaimsCmd inspects and seeds the claim store from the command line.
var ClaimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Inspect and manage claims",
}

var claimsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List claims in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Shutdown()

		filter := claimengine.Filter{
			Domain:   claimsDomain,
			Priority: claimengine.Priority(claimsPriority),
		}
		if claimsStatus != "" {
			filter.Status = []claimengine.ClaimStatus{claimengine.ClaimStatus(claimsStatus)}
		}

		claims, err := engine.Service().List(context.Background(), filter)
		if err != nil {
			return fmt.Errorf("list claims: %w", err)
		}

		if claimsJSON {
			return printJSON(claims)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tDOMAIN\tCLAIMANT\tLAST ACTIVITY\tTITLE")
		for _, c := range claims {
			claimant := "-"
			if c.Claimant != nil {
				claimant = c.Claimant.ID
			}
			activity := "-"
			if !c.LastActivityAt.IsZero() {
				activity = c.LastActivityAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				c.ID, c.Status, c.Priority, c.Domain, claimant, activity, c.Title)
		}
		return w.Flush()
	},
}

var claimsShowCmd = &cobra.Command{
	Use:   "show <claim-id>",
	Short: "Show a claim with its transition history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Shutdown()

		claim, err := engine.Service().Get(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get claim: %w", err)
		}

		if claimsJSON {
			return printJSON(claim)
		}

		fmt.Printf("ID:        %s\n", claim.ID)
		fmt.Printf("Type:      %s\n", claim.Type)
		fmt.Printf("Status:    %s\n", claim.Status)
		fmt.Printf("Priority:  %s\n", claim.Priority)
		fmt.Printf("Domain:    %s\n", claim.Domain)
		fmt.Printf("Title:     %s\n", claim.Title)
		if claim.Claimant != nil {
			fmt.Printf("Claimant:  %s (%s)\n", claim.Claimant.ID, claim.Claimant.Kind)
			fmt.Printf("TTL:       %s\n", claim.TTL)
			fmt.Printf("Activity:  %s\n", claim.LastActivityAt.Format(time.RFC3339))
		}
		fmt.Printf("Version:   %d\n", claim.Version)
		if len(claim.History) > 0 {
			fmt.Println("History:")
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, t := range claim.History {
				fmt.Fprintf(w, "  %s\t%s -> %s\t%s\t%s\n",
					t.Timestamp.Format(time.RFC3339), t.From, t.To, t.Actor, t.Reason)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
		return nil
	},
}

var claimsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an available claim",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Shutdown()

		claim, err := engine.Service().CreateClaim(context.Background(), claimengine.ClaimSpec{
			Type:     claimengine.ClaimType(createType),
			Priority: claimengine.Priority(createPriority),
			Domain:   createDomain,
			Title:    createTitle,
		})
		if err != nil {
			return fmt.Errorf("create claim: %w", err)
		}

		if claimsJSON {
			return printJSON(claim)
		}
		fmt.Printf("Created claim %s (%s, %s)\n", claim.ID, claim.Type, claim.Priority)
		return nil
	},
}

func openEngine() (*claimengine.Engine, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	engine, err := claimengine.New(cfg, NewLogger(cfg))
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return engine, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	ClaimsCmd.PersistentFlags().BoolVar(&claimsJSON, "json", false, "Output as JSON")

	claimsListCmd.Flags().StringVar(&claimsStatus, "status", "", "Filter by status")
	claimsListCmd.Flags().StringVar(&claimsDomain, "domain", "", "Filter by domain")
	claimsListCmd.Flags().StringVar(&claimsPriority, "priority", "", "Filter by priority")

	claimsCreateCmd.Flags().StringVar(&createType, "type", "coverage-gap", "Claim type")
	claimsCreateCmd.Flags().StringVar(&createPriority, "priority", "p2", "Claim priority")
	claimsCreateCmd.Flags().StringVar(&createDomain, "domain", "", "Claim domain (required)")
	claimsCreateCmd.Flags().StringVar(&createTitle, "title", "", "Claim title (required)")
	_ = claimsCreateCmd.MarkFlagRequired("domain")
	_ = claimsCreateCmd.MarkFlagRequired("title")

	ClaimsCmd.AddCommand(claimsListCmd)
	ClaimsCmd.AddCommand(claimsShowCmd)
	ClaimsCmd.AddCommand(claimsCreateCmd)
}
