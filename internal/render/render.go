package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/riskwatch/internal/model"
)

// Format selects an output rendering
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts text, json, markdown and md
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown output format %q (text, json, markdown)", s)
}

// Renderer writes assessments for people and machines
type Renderer struct {
	verbose bool
}

// NewRenderer creates a renderer. verbose adds indicator evidence and
// score arithmetic to text output.
func NewRenderer(verbose bool) *Renderer {
	return &Renderer{verbose: verbose}
}

// Render writes a in format to w
func (r *Renderer) Render(w io.Writer, a *model.Assessment, format Format) error {
	switch format {
	case FormatJSON:
		return r.RenderJSON(w, a)
	case FormatMarkdown:
		return r.RenderMarkdown(w, a)
	default:
		return r.RenderText(w, a)
	}
}

// RenderJSON writes v as indented JSON
func (r *Renderer) RenderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteFile renders a to path, creating parent directories
func (r *Renderer) WriteFile(path string, a *model.Assessment, format Format) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := r.Render(f, a, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var levelBadge = map[model.RiskLevel]string{
	model.RiskLow:      "LOW",
	model.RiskMedium:   "MEDIUM",
	model.RiskHigh:     "HIGH",
	model.RiskCritical: "CRITICAL",
}

// RenderText writes a terminal summary
func (r *Renderer) RenderText(w io.Writer, a *model.Assessment) error {
	var b strings.Builder

	title := string(a.Kind)
	if a.Subject != "" {
		title += ": " + a.Subject
	}
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "Risk: %s (%.2f/100)\n", levelBadge[a.RiskLevel], a.NormalizedScore)
	if r.verbose {
		fmt.Fprintf(&b, "Raw %.2f, adjusted %.2f, rule set %s\n", a.RawScore, a.AdjustedScore, a.RuleSetVersion)
		for _, m := range a.Modifiers {
			if m.Multiplier != 0 {
				fmt.Fprintf(&b, "  modifier %s=%s x%.2f\n", m.Dimension, m.Value, m.Multiplier)
			} else {
				fmt.Fprintf(&b, "  modifier %s=%s %+.2f\n", m.Dimension, m.Value, m.Delta)
			}
		}
	}

	if adv := a.Advisor; adv != nil {
		if adv.Match != nil {
			fmt.Fprintf(&b, "Advisor: %s %s (%s), %s match, confidence %.2f\n",
				adv.Match.RegistrationNumber, adv.Match.Name, adv.Match.Status, adv.Method, adv.Confidence)
		} else {
			b.WriteString("Advisor: no matching registration\n")
		}
	}

	if len(a.Indicators) > 0 {
		b.WriteString("\nIndicators:\n")
		for _, ind := range a.Indicators {
			mark := "✗"
			if ind.Category == model.CategoryLegitimacy {
				mark = "✓"
			}
			fmt.Fprintf(&b, "  %s %-40s %+6.1f\n", mark, ind.Label, ind.Weight)
			if r.verbose && ind.Evidence != "" {
				fmt.Fprintf(&b, "      %q\n", ind.Evidence)
			}
		}
	}

	if len(a.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, rec := range a.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	if len(a.SkippedRules) > 0 {
		fmt.Fprintf(&b, "\nSkipped rules: %s\n", strings.Join(a.SkippedRules, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderMarkdown writes a report suitable for tickets and chat
func (r *Renderer) RenderMarkdown(w io.Writer, a *model.Assessment) error {
	var b strings.Builder

	fmt.Fprintf(&b, "# Risk assessment: %s\n\n", levelBadge[a.RiskLevel])
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Kind | %s |\n", a.Kind)
	if a.Subject != "" {
		fmt.Fprintf(&b, "| Subject | `%s` |\n", a.Subject)
	}
	fmt.Fprintf(&b, "| Score | %.2f / 100 |\n", a.NormalizedScore)
	fmt.Fprintf(&b, "| Raw / adjusted | %.2f / %.2f |\n", a.RawScore, a.AdjustedScore)
	fmt.Fprintf(&b, "| Rule set | %s |\n", a.RuleSetVersion)

	if adv := a.Advisor; adv != nil {
		b.WriteString("\n## Advisor\n\n")
		if adv.Match != nil {
			fmt.Fprintf(&b, "- Registration: %s\n- Name: %s\n- Status: %s\n- Method: %s (confidence %.2f)\n",
				adv.Match.RegistrationNumber, adv.Match.Name, adv.Match.Status, adv.Method, adv.Confidence)
		} else {
			b.WriteString("No matching registration found.\n")
		}
	}

	if len(a.Indicators) > 0 {
		b.WriteString("\n## Indicators\n\n| Indicator | Category | Weight | Evidence |\n|---|---|---:|---|\n")
		for _, ind := range a.Indicators {
			fmt.Fprintf(&b, "| %s | %s | %+.1f | %s |\n", ind.Label, ind.Category, ind.Weight, escapeCell(ind.Evidence))
		}
	}

	if len(a.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n\n")
		for _, rec := range a.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
