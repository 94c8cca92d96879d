package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/render"
)

var (
	outFormat      string
	outFile        string
	failOn         string
	analyzeTimeout time.Duration
	inputFile      string
	platform       string
	contentType    string
	advisorName    string
	advisorReg     string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score a single text, URL or advisor claim",
	Long: `Analyze scores one submission against the configured rule set and
reference tables, and prints the explained assessment.

Example:
  riskwatch analyze text "GUARANTEED 500% returns in 30 days!"
  riskwatch analyze text --file pitch.html --platform telegram
  riskwatch analyze url http://smart-profits.xyz/ --format json
  riskwatch analyze advisor --reg INA000012345
  riskwatch analyze url https://example.com --fail-on high`,
}

var analyzeTextCmd = &cobra.Command{
	Use:   "text [text]",
	Short: "Score free-form text (argument, --file, or stdin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		return runAnalyze(cmd, model.Submission{
			Kind:           model.KindText,
			Text:           text,
			SourcePlatform: platform,
			ContentType:    contentType,
		})
	},
}

var analyzeURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Score a URL against the domain reference table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd, model.Submission{Kind: model.KindURL, URL: args[0]})
	},
}

var analyzeAdvisorCmd = &cobra.Command{
	Use:   "advisor [name]",
	Short: "Check a claimed advisor against the registry",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := advisorName
		if len(args) == 1 {
			name = args[0]
		}
		return runAnalyze(cmd, model.Submission{
			Kind:               model.KindAdvisor,
			Name:               name,
			RegistrationNumber: advisorReg,
		})
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeTextCmd, analyzeURLCmd, analyzeAdvisorCmd)

	// Output flags
	analyzeCmd.PersistentFlags().StringVarP(&outFormat, "format", "f", "text", "output format (text, json, markdown)")
	analyzeCmd.PersistentFlags().StringVarP(&outFile, "out", "o", "", "write the report to a file instead of stdout")
	analyzeCmd.PersistentFlags().StringVar(&failOn, "fail-on", "", "exit non-zero when the risk level is at or above this level")
	analyzeCmd.PersistentFlags().DurationVar(&analyzeTimeout, "timeout", 30*time.Second, "overall timeout, including remote rule and database loads")

	// Input flags
	analyzeTextCmd.Flags().StringVar(&inputFile, "file", "", "read text from a file (- for stdin)")
	analyzeTextCmd.Flags().StringVar(&platform, "platform", "", "source platform (e.g. telegram, whatsapp, sms)")
	analyzeTextCmd.Flags().StringVar(&contentType, "content-type", "", "content type (e.g. advertisement, text/html)")
	analyzeAdvisorCmd.Flags().StringVar(&advisorName, "name", "", "advisor name")
	analyzeAdvisorCmd.Flags().StringVar(&advisorReg, "reg", "", "registration number")
}

func runAnalyze(cmd *cobra.Command, sub model.Submission) error {
	format, err := render.ParseFormat(outFormat)
	if err != nil {
		return err
	}
	var threshold model.RiskLevel
	if failOn != "" {
		if threshold, err = model.ParseRiskLevel(failOn); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), analyzeTimeout)
	defer cancel()

	cfg, log, err := configure()
	if err != nil {
		return err
	}
	if verbose {
		stderrf("Analyzing %s: %s\n", sub.Kind, truncateSubject(sub))
		stderrf("Rules: %s\n\n", describeRules(cfg.Rules.Path))
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.pipeline.Analyze(ctx, sub)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	r := render.NewRenderer(verbose)
	if outFile != "" {
		if err := r.WriteFile(outFile, res.Assessment, format); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		stderrf("✓ Wrote %s (%s, %.2f/100)\n", outFile, res.Assessment.RiskLevel, res.Assessment.NormalizedScore)
	} else if err := r.Render(cmd.OutOrStdout(), res.Assessment, format); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	if threshold != "" && res.Assessment.RiskLevel.Rank() >= threshold.Rank() {
		return fmt.Errorf("risk level %s is at or above %s", res.Assessment.RiskLevel, threshold)
	}
	return nil
}

// readText takes the positional argument, then --file, then stdin
func readText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	var (
		data []byte
		err  error
	)
	switch inputFile {
	case "", "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(inputFile)
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func truncateSubject(sub model.Submission) string {
	s := sub.Subject()
	if sub.Kind == model.KindText {
		s = strings.Join(strings.Fields(sub.Text), " ")
	}
	if r := []rune(s); len(r) > 60 {
		s = string(r[:60]) + "..."
	}
	return s
}

func describeRules(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}
