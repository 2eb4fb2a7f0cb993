package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sage/internal/config"
	"sage/internal/preflight"
	"sage/internal/store"
	"sage/internal/workdir"
)

type statusJSON struct {
	ConfigPath    string       `json:"config_path"`
	ConfigFound   bool         `json:"config_found"`
	Database      string       `json:"database"`
	Videos        int          `json:"videos"`
	Summaries     int          `json:"summaries"`
	FastPath      int          `json:"fast_path"`
	SlowPath      int          `json:"slow_path"`
	Memories      *int         `json:"memories,omitempty"`
	Summarization bool         `json:"summarization"`
	WorkDirs      int          `json:"work_dirs"`
	WorkDirBytes  int64        `json:"work_dir_bytes"`
	Recent        []recentJSON `json:"recent"`
	Checks        []checkJSON  `json:"checks"`
}

type checkJSON struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Skipped  bool   `json:"skipped,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type recentJSON struct {
	VideoID  int64  `json:"video_id"`
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Channel  string `json:"channel,omitempty"`
	Ingested string `json:"ingested_at"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		recent        int
		checkServices bool
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store totals and recent ingestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			eng, err := ctx.openEngine(nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			counts, memories, err := eng.Counts(cmd.Context())
			if err != nil {
				return err
			}
			videos, err := eng.Recent(cmd.Context(), recent)
			if err != nil {
				return err
			}

			workDirs, err := workdir.ListDirectories(cfg.Paths.WorkDir)
			if err != nil {
				return err
			}

			report := statusJSON{
				ConfigPath:    ctx.configPath,
				ConfigFound:   ctx.configSeen,
				Database:      cfg.DatabasePath(),
				Videos:        counts.Videos,
				Summaries:     counts.Summaries,
				FastPath:      counts.FastPath,
				SlowPath:      counts.SlowPath,
				Summarization: cfg.SummarizationEnabled(),
				WorkDirs:      len(workDirs),
				WorkDirBytes:  workdir.TotalSize(workDirs),
				Recent:        recentRows(videos),
				Checks:        runChecks(cmd.Context(), cfg, checkServices),
			}
			if memories >= 0 {
				report.Memories = &memories
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("sage", colorize) {
				fmt.Fprintln(out, line)
			}
			configMsg := report.ConfigPath
			configKind := statusOK
			if !report.ConfigFound {
				configMsg += " (not found, using defaults)"
				configKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Config", configKind, configMsg, colorize))
			fmt.Fprintln(out, renderStatusLine("Database", statusOK,
				fmt.Sprintf("%d videos (%d fast, %d slow), %d summaries", counts.Videos, counts.FastPath, counts.SlowPath, counts.Summaries), colorize))
			if report.Memories != nil {
				fmt.Fprintln(out, renderStatusLine("Semantic memory", statusOK, fmt.Sprintf("%d memories", memories), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Semantic memory", statusInfo, "disabled (no embeddings api_key)", colorize))
			}
			if report.Summarization {
				fmt.Fprintln(out, renderStatusLine("Summarization", statusOK, cfg.LLM.Model, colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Summarization", statusInfo, "disabled", colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range report.Checks {
				fmt.Fprintln(out, renderStatusLine(check.Name, checkKind(check), check.Detail, colorize))
			}

			if len(videos) > 0 {
				fmt.Fprintln(out)
				rows := make([][]string, 0, len(report.Recent))
				for _, r := range report.Recent {
					rows = append(rows, []string{strconv.FormatInt(r.VideoID, 10), r.SourceID, r.Title, r.Channel, r.Ingested})
				}
				fmt.Fprintln(out, renderTable([]column{
					{header: "ID", align: alignRight},
					{header: "Source"},
					{header: "Title", maxWidth: 48},
					{header: "Channel", maxWidth: 24},
					{header: "Ingested"},
				}, rows))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&recent, "recent", "n", 10, "Number of recent ingestions to list")
	cmd.Flags().BoolVar(&checkServices, "check", false, "Also verify the LLM and embeddings APIs with a live request")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func recentRows(videos []store.Video) []recentJSON {
	rows := make([]recentJSON, 0, len(videos))
	for _, v := range videos {
		rows = append(rows, recentJSON{
			VideoID:  v.ID,
			SourceID: v.SourceID,
			Title:    v.Title,
			Channel:  v.Channel,
			Ingested: v.IngestedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return rows
}

func runChecks(ctx context.Context, cfg *config.Config, services bool) []checkJSON {
	var checks []checkJSON
	for _, result := range preflight.RunAll(ctx, cfg, services) {
		checks = append(checks, checkJSON{
			Name:    result.Name,
			Passed:  result.Passed,
			Skipped: result.Skipped,
			Detail:  result.Detail,
		})
	}
	for _, status := range preflight.CheckSystemDeps(cfg) {
		detail := status.Command
		if !status.Available {
			detail = status.Detail + "; " + status.Description
		}
		checks = append(checks, checkJSON{
			Name:     status.Name,
			Passed:   status.Available,
			Optional: status.Optional,
			Detail:   detail,
		})
	}
	return checks
}

func checkKind(check checkJSON) statusKind {
	switch {
	case check.Passed:
		return statusOK
	case check.Skipped:
		return statusInfo
	case check.Optional:
		return statusWarn
	default:
		return statusError
	}
}
