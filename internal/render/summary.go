package render

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/pipeline"
	"github.com/ppiankov/riskwatch/internal/worker"
)

// RenderBatch writes one line per batch item followed by totals
func (r *Renderer) RenderBatch(w io.Writer, results []*worker.BatchResult) error {
	var b strings.Builder

	for _, res := range results {
		if res.Error != "" || res.Result == nil {
			fmt.Fprintf(&b, "line %-5d ✗ %s\n", res.Line, res.Error)
			continue
		}
		a := res.Result.Assessment
		cached := ""
		if res.Result.Cached {
			cached = " (cached)"
		}
		fmt.Fprintf(&b, "line %-5d %-8s %6.2f  %-7s %s%s\n",
			res.Line, levelBadge[a.RiskLevel], a.NormalizedScore, a.Kind, truncate(a.Subject, 60), cached)
	}

	s := worker.Summarize(results)
	fmt.Fprintf(&b, "\nProcessed %d, failed %d, cached %d\n", s.Total, s.Failed, s.Cached)
	for _, level := range model.RiskLevels {
		if n := s.ByLevel[level]; n > 0 {
			fmt.Fprintf(&b, "  %-8s %d\n", levelBadge[level], n)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderDashboard writes history statistics and recent entries
func (r *Renderer) RenderDashboard(w io.Writer, d *pipeline.Dashboard) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Rule set %s, %d assessments recorded\n", d.RuleSetVersion, d.Stats.Total)
	for _, level := range model.RiskLevels {
		fmt.Fprintf(&b, "  %-8s %5d  %6.2f%%\n", levelBadge[level], d.Stats.ByLevel[level], d.Stats.LevelPercent[level])
	}

	if len(d.Stats.ByGroup) > 0 {
		b.WriteString("\nTop fraud indicators:\n")
		for _, g := range topGroups(d.Stats.ByGroup, 10) {
			fmt.Fprintf(&b, "  %-30s %d\n", g, d.Stats.ByGroup[g])
		}
	}

	if len(d.Recent) > 0 {
		b.WriteString("\nRecent:\n")
		for _, e := range d.Recent {
			fmt.Fprintf(&b, "  %s  %-8s %6.2f  %-7s %s\n",
				e.RecordedAt.Format("2006-01-02 15:04:05"), levelBadge[e.Level], e.Score, e.Kind, truncate(e.Subject, 50))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// topGroups orders groups by count, then name
func topGroups(counts map[string]int, n int) []string {
	groups := make([]string, 0, len(counts))
	for g := range counts {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if counts[groups[i]] != counts[groups[j]] {
			return counts[groups[i]] > counts[groups[j]]
		}
		return groups[i] < groups[j]
	})
	if len(groups) > n {
		groups = groups[:n]
	}
	return groups
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
