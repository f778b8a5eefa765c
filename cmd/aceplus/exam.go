package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/aceplus/internal/i18n"
	"github.com/pavelanni/aceplus/internal/model"
	"github.com/pavelanni/aceplus/internal/session"
)

func examCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam",
		Short: "Create, take and submit exams",
	}
	cmd.AddCommand(
		examLessonsCmd(), examCreateCmd(), examShowCmd(), examAnswerCmd(),
		examSubmitCmd(), examOpenCmd(), examDiscardCmd(), examReportCmd(),
		examTestsCmd(), examDraftsCmd(),
	)
	return cmd
}

func examLessonsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lessons SUBJECT",
		Short: "List the lessons of a subject",
		Args:  cobra.ExactArgs(1),
		RunE: runE(appOptions{}, func(a *app, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			lessons, err := a.api.Lessons(a.ctx, args[0], a.v.GetBool("class10"))
			if err != nil {
				return err
			}
			for _, l := range lessons {
				a.println(l)
			}
			return nil
		}),
	}
	cmd.Flags().Bool("class10", false, "List class 10 lessons")
	return cmd
}

func examCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start an exam from lessons or from an assigned test",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			req := model.CreateExamRequest{
				Subject: a.v.GetString("subject"),
				Lessons: a.v.GetStringSlice("lessons"),
			}
			if id := a.v.GetString("test-id"); id != "" {
				req = model.CreateExamRequest{Test: true, TestID: id}
			}
			examID, err := a.api.CreateExam(a.ctx, req)
			if err != nil {
				return err
			}
			a.println(appI18n.Td(a.ctx, "ExamCreated", map[string]any{"ExamID": examID}))
			return nil
		}),
	}
	f := cmd.Flags()
	f.String("subject", "", "Subject")
	f.StringSlice("lessons", nil, "Lessons to draw questions from (repeatable or comma separated)")
	f.String("test-id", "", "Take an assigned test instead")
	return cmd
}

func examShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show EXAM_ID",
		Short: "Show an exam with the answers chosen so far",
		Args:  cobra.ExactArgs(1),
		RunE: runE(appOptions{}, func(a *app, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			attempt, err := a.taker().Load(a.ctx, args[0])
			if errors.Is(err, session.ErrAlreadySubmitted) {
				a.warn(appI18n.T(a.ctx, "AlreadySubmitted"))
				for _, q := range attempt.Exam.Questions {
					a.println()
					printQuestion(a.cmd.OutOrStdout(), q.UniqueID, q.Question, true)
				}
				return nil
			}
			if err != nil {
				return err
			}
			a.printf("%s: %s\n", attempt.Exam.Subject, strings.Join(attempt.Exam.Lessons, ", "))
			for _, q := range attempt.Exam.Questions {
				a.println()
				printQuestion(a.cmd.OutOrStdout(), q.UniqueID, q.Question, false)
				if opt, ok := attempt.Answers[q.UniqueID]; ok {
					a.printf("   [%s]\n", opt)
				}
			}
			return nil
		}),
	}
}

func examAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer EXAM_ID QUESTION_ID OPTION",
		Short: "Choose an option for a question (q1, q2, ...)",
		Args:  cobra.ExactArgs(3),
		RunE: runE(appOptions{}, func(a *app, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			opt, err := model.ParseOptionKey(args[2])
			if err != nil {
				return err
			}
			taker := a.taker()
			attempt, err := taker.Load(a.ctx, args[0])
			if err != nil {
				return err
			}
			if err := taker.Answer(attempt, args[1], opt); err != nil {
				return err
			}
			a.println(appI18n.Td(a.ctx, "AnswerSaved", map[string]any{"Option": opt, "ID": args[1]}))
			return nil
		}),
	}
}

func examSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit EXAM_ID",
		Short: "Submit the answers and show the results",
		Args:  cobra.ExactArgs(1),
		RunE: runE(appOptions{}, func(a *app, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			res, err := a.taker().Submit(a.ctx, args[0])
			var ue *session.UnansweredError
			if errors.As(err, &ue) {
				// Not a failure: the sheet stays open.
				a.warn(appI18n.Tp(a.ctx, "Unanswered", len(ue.QuestionIDs), map[string]any{
					"IDs": strings.Join(ue.QuestionIDs, ", "),
				}))
				return nil
			}
			if err != nil {
				return err
			}
			a.printResult(res)
			return nil
		}),
	}
}

func (a *app) printResult(res *model.SubmitResult) {
	a.println(appI18n.Td(a.ctx, "Score", map[string]any{
		"Score":      res.Score,
		"Total":      res.TotalQuestions,
		"Percentage": strconv.FormatFloat(res.Percentage, 'f', 2, 64),
	}))
	for _, r := range res.Results {
		verdict := appI18n.T(a.ctx, "Correct")
		if !r.IsCorrect {
			verdict = appI18n.T(a.ctx, "Incorrect")
		}
		a.println()
		a.printf("%s. %s [%s]\n", r.QuestionNo, r.Question, verdict)
		a.printf("   %s\n", appI18n.Td(a.ctx, "YourAnswer", map[string]any{"Answer": r.SelectedAnswer}))
		if !r.IsCorrect {
			a.printf("   %s\n", appI18n.Td(a.ctx, "CorrectAnswer", map[string]any{"Answer": r.CorrectAnswer}))
		}
		if r.Solution != nil {
			a.printf("   %s\n", *r.Solution)
		}
	}
}

func examOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "List exams from the past week that were never submitted",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			exams, err := a.api.UnsubmittedExams(a.ctx)
			if err != nil {
				return err
			}
			a.printExams(exams)
			return nil
		}),
	}
}

func examDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard EXAM_ID",
		Short: "Delete an exam that was never submitted",
		Args:  cobra.ExactArgs(1),
		RunE: runE(appOptions{}, func(a *app, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			if err := a.api.DeleteUnsubmittedExam(a.ctx, args[0]); err != nil {
				return err
			}
			return a.cache.Clear(args[0])
		}),
	}
}

func examReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report EXAM_ID QUESTION_NUMBER",
		Short: "Flag a question as wrong or unclear",
		Args:  cobra.ExactArgs(2),
		RunE: runE(appOptions{}, func(a *app, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			n, err := strconv.Atoi(strings.TrimPrefix(args[1], "q"))
			if err != nil || n < 1 {
				return fmt.Errorf("invalid question number %q", args[1])
			}
			return a.api.ReportQuestion(a.ctx, model.ReportRequest{
				ExamID:        args[0],
				QuestionID:    session.UniqueID(n - 1),
				QuestionIndex: n - 1,
			})
		}),
	}
}

func examTestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tests",
		Short: "List assigned tests you have not taken yet",
		Long:  "Start one with 'aceplus exam create --test-id ID'.",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			list, err := a.api.Tests(a.ctx)
			if err != nil {
				return err
			}
			if len(list.Tests) == 0 {
				a.println(appI18n.T(a.ctx, "NoTests"))
				return nil
			}
			tw := tabwriter.NewWriter(a.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range list.Tests {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.TestID, t.Subject, strings.Join(t.Lessons, ", "), t.Questions)
			}
			return tw.Flush()
		}),
	}
}

func examDraftsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drafts",
		Short: "List exams with answers saved on this machine",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			ids, err := a.cache.Exams()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				a.println(appI18n.T(a.ctx, "NoDrafts"))
				return nil
			}
			tw := tabwriter.NewWriter(a.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, id := range ids {
				fmt.Fprintf(tw, "%s\t%d\n", id, len(a.cache.LoadAnswers(id)))
			}
			return tw.Flush()
		}),
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your exams",
		Args:  cobra.NoArgs,
		RunE: runE(appOptions{}, func(a *app, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			exams, err := a.api.UserExams(a.ctx)
			if err != nil {
				return err
			}
			a.printExams(exams)
			return nil
		}),
	}
}

func (a *app) printExams(exams []model.ExamSummary) {
	if len(exams) == 0 {
		a.println(appI18n.T(a.ctx, "NoExams"))
		return
	}
	tw := tabwriter.NewWriter(a.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, e := range exams {
		score := "-"
		if e.IsSubmitted {
			score = fmt.Sprintf("%d (%.2f%%)", e.Score, e.Percentage)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ExamID, e.Timestamp, e.Subject, strings.Join(e.Lessons, ", "), score)
	}
	tw.Flush()
}
