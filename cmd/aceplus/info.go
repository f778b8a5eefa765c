package main

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/aceplus/internal/i18n"
	"github.com/pavelanni/aceplus/internal/model"
	"github.com/pavelanni/aceplus/internal/upload"
)

func leaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show this month's ranking",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			lb, err := a.api.Leaderboard(a.ctx, a.v.GetInt("page"), a.v.GetInt("page-size"))
			if err != nil {
				return err
			}
			if lb.Zero || len(lb.Entries) == 0 {
				a.println(appI18n.T(a.ctx, "LeaderboardEmpty"))
				return nil
			}
			if isNew, err := a.notices.LeaderboardIsNew(*lb); err == nil && isNew {
				a.warn(appI18n.T(a.ctx, "NewLeaderboard"))
				if err := a.notices.AckLeaderboard(*lb); err != nil {
					slog.Warn("remember leaderboard", "error", err)
				}
			}
			a.println(appI18n.Td(a.ctx, "LeaderboardTitle", map[string]any{"Month": lb.Month}))
			tw := tabwriter.NewWriter(a.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range lb.Entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.2f%%\t%.0f\n",
					e.Rank, e.Name, e.Division, e.TotalExams, e.AveragePercentage, e.EloScore)
			}
			return tw.Flush()
		}),
	}
	f := cmd.Flags()
	f.Int("page", 1, "Page number")
	f.Int("page-size", 20, "Entries per page")
	return cmd
}

func updatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "updates",
		Short: "Show what changed in the latest release",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			u, err := a.api.Updates(a.ctx)
			if err != nil {
				return err
			}
			a.println(appI18n.Td(a.ctx, "WhatsNew", map[string]any{"Version": u.Version, "Date": u.Date}))
			for _, c := range u.Changes {
				a.println("  - " + c)
			}
			if isNew, err := a.notices.UpdateIsNew(*u); err == nil && isNew {
				if err := a.notices.AckUpdate(*u); err != nil {
					slog.Warn("remember update", "error", err)
				}
			}
			return nil
		}),
	}
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show your totals, coins and performance analysis",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			if subject := a.v.GetString("subject"); subject != "" {
				st, err := a.api.SubjectStats(a.ctx, subject)
				if err != nil {
					return err
				}
				a.printSubjectStats(st)
				return nil
			}

			tiles, err := a.api.UserStats(a.ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range tiles {
				fmt.Fprintf(tw, "%s\t%s\n", t.Title, t.Value)
			}
			coins, err := a.api.Coins(a.ctx)
			if err != nil {
				slog.Warn("fetch coins", "error", err)
			} else {
				fmt.Fprintf(tw, "Coins\t%d\n", coins.Coins)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			ov, err := a.api.OverviewStats(a.ctx)
			if err != nil {
				return err
			}
			a.println()
			a.println(appI18n.T(a.ctx, "OverviewTitle"))
			a.printBreakdowns(ov.Subjects)
			a.printRecent(ov.RecentExams)
			return nil
		}),
	}
	cmd.Flags().String("subject", "", "Analyse one subject instead")
	return cmd
}

func (a *app) printSubjectStats(st *model.SubjectStats) {
	a.println(appI18n.Td(a.ctx, "SubjectTitle", map[string]any{"Subject": st.Subject}))
	tw := tabwriter.NewWriter(a.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Exams Given\t%d\n", st.TotalExams)
	fmt.Fprintf(tw, "Questions Attempted\t%d\n", st.TotalQuestions)
	fmt.Fprintf(tw, "Marks Gained\t%d\n", st.CorrectAnswers)
	fmt.Fprintf(tw, "Average Percentage\t%.2f%%\n", st.AverageScore)
	if st.TotalExams > 0 {
		fmt.Fprintf(tw, "Highest Percentage\t%.2f%%\n", st.HighestPercentage)
		fmt.Fprintf(tw, "Lowest Percentage\t%.2f%%\n", st.LowestPercentage)
	}
	tw.Flush()
	a.printBreakdowns(st.Lessons)
	a.printRecent(st.RecentExams)
}

// printBreakdowns prints one row per key in name order.
func (a *app) printBreakdowns(rows map[string]model.Breakdown) {
	if len(rows) == 0 {
		return
	}
	a.println()
	tw := tabwriter.NewWriter(a.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, name := range slices.Sorted(maps.Keys(rows)) {
		b := rows[name]
		fmt.Fprintf(tw, "%s\t%d\t%d/%d\t%.2f%%\n", name, b.TotalExams, b.CorrectAnswers, b.TotalQuestions, b.AverageScore)
	}
	tw.Flush()
}

func (a *app) printRecent(exams []model.ExamSummary) {
	if len(exams) == 0 {
		return
	}
	a.println()
	a.println(appI18n.T(a.ctx, "RecentExams"))
	a.printExams(exams)
}

func pruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached answer sheets and image previews older than --older-than",
		Long:  "Stale sheets are pruned on every start using --answers-ttl; prune applies a stricter age on demand.",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			age := a.v.GetDuration("older-than")
			n, err := a.cache.Prune(age, a.v.GetInt("answers-max"))
			if err != nil {
				return err
			}
			a.println(appI18n.Tp(a.ctx, "AnswerSheetsPruned", int(n), nil))

			removed, err := upload.PrunePreviews(a.v.GetString("preview-dir"), age)
			if err != nil {
				return err
			}
			a.println(appI18n.Tp(a.ctx, "PreviewsPruned", removed, nil))
			return nil
		}),
	}
	f := cmd.Flags()
	f.Duration("older-than", 24*time.Hour, "Remove sheets and previews not written within this long")
	f.String("preview-dir", defaultPreviewDir(), "Directory holding image previews")
	return cmd
}
