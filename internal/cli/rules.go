package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/rules"
)

var rulesFormat string

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule sets",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file|url>...",
	Short: "Validate one or more rule set files",
	Long: `Validate loads each rule set exactly as the engine would and reports
every problem found. Exits non-zero when any rule set is invalid.

Example:
  riskwatch rules validate rules.yaml
  riskwatch rules validate https://rules.example.com/riskwatch.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		failed := 0
		for _, loc := range args {
			if !validateOne(out, ruleSource(loc, cfg.Rules), loc) {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d rule sets invalid", failed, len(args))
		}
		return nil
	},
}

var rulesShowCmd = &cobra.Command{
	Use:   "show [file|url]",
	Short: "Show the configured (or given) rule set",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		loc := cfg.Rules.Path
		if len(args) == 1 {
			loc = args[0]
		}

		catalog, err := rules.LoadCatalog(ruleSource(loc, cfg.Rules))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch strings.ToLower(rulesFormat) {
		case "yaml":
			return yaml.NewEncoder(out).Encode(catalog.RuleSet())
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(catalog.RuleSet())
		case "", "text":
			return printCatalog(out, catalog)
		default:
			return fmt.Errorf("unknown format %q (text, yaml, json)", rulesFormat)
		}
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd, rulesShowCmd)

	rulesShowCmd.Flags().StringVarP(&rulesFormat, "format", "f", "text", "output format (text, yaml, json)")
}

func validateOne(w io.Writer, src rules.Source, location string) bool {
	catalog, err := rules.LoadCatalog(src)
	if err != nil {
		fmt.Fprintf(w, "✗ %s\n", location)
		var ce *model.CatalogError
		if errors.As(err, &ce) && len(ce.Problems) > 0 {
			for _, p := range ce.Problems {
				fmt.Fprintf(w, "    - %s\n", p)
			}
		} else {
			fmt.Fprintf(w, "    - %v\n", err)
		}
		return false
	}
	fmt.Fprintf(w, "✓ %s (version %s, %d rules, digest %.12s)\n",
		location, catalog.Version(), len(catalog.Rules("")), catalog.Digest())
	return true
}

func printCatalog(w io.Writer, c *rules.Catalog) error {
	var b strings.Builder
	set := c.RuleSet()

	fmt.Fprintf(&b, "Rule set %s (%s)\n", c.Version(), c.Name())
	fmt.Fprintf(&b, "Digest   %s\n", c.Digest())
	fmt.Fprintf(&b, "Scoring  scale %.1f, medium ≥ %.0f, high ≥ %.0f, critical ≥ %.0f\n\n",
		set.Scoring.Scale, set.Scoring.Thresholds.Medium, set.Scoring.Thresholds.High, set.Scoring.Thresholds.Critical)

	fmt.Fprintf(&b, "%-32s %-22s %-10s %-5s %-10s %7s\n", "ID", "GROUP", "CATEGORY", "ON", "KIND", "WEIGHT")
	for _, r := range set.Rules {
		fmt.Fprintf(&b, "%-32s %-22s %-10s %-5s %-10s %+7.1f\n", r.ID, r.Group, r.Category, r.AppliesTo, r.Kind, r.Weight)
	}

	if len(set.Modifiers) > 0 {
		b.WriteString("\nModifiers:\n")
		for _, m := range set.Modifiers {
			switch {
			case m.Multiplier != nil:
				fmt.Fprintf(&b, "  %s=%s x%.2f\n", m.Dimension, m.Value, *m.Multiplier)
			case m.Delta != nil:
				fmt.Fprintf(&b, "  %s=%s %+.1f\n", m.Dimension, m.Value, *m.Delta)
			}
		}
	}

	fmt.Fprintf(&b, "\n%d recommendations\n", len(set.Recommendations))
	_, err := io.WriteString(w, b.String())
	return err
}
