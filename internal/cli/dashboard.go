package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/riskwatch/internal/render"
)

var (
	dashboardRecent int
	dashboardJSON   bool
)

// dashboardCmd represents the dashboard command
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show assessment statistics from the history store",
	Long: `Dashboard prints level distribution, the most frequent fraud indicator
groups and the latest assessments. It is most useful with history.backend
set to redis, where API replicas and CLI runs share one history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cfg, log, err := configure()
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.pipeline.Dashboard(ctx, dashboardRecent)
		if err != nil {
			return err
		}
		r := render.NewRenderer(verbose)
		if dashboardJSON {
			return r.RenderJSON(cmd.OutOrStdout(), d)
		}
		return r.RenderDashboard(cmd.OutOrStdout(), d)
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)

	dashboardCmd.Flags().IntVar(&dashboardRecent, "recent", 10, "number of recent assessments to list")
	dashboardCmd.Flags().BoolVar(&dashboardJSON, "json", false, "print JSON")
}
