package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/aceplus/internal/i18n"
	"github.com/pavelanni/aceplus/internal/job"
	"github.com/pavelanni/aceplus/internal/model"
	"github.com/pavelanni/aceplus/internal/upload"
)

func defaultPreviewDir() string {
	return filepath.Join(os.TempDir(), "aceplus-previews")
}

func addUploadFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("max-upload-size", humanize.IBytes(uint64(upload.MaxFileSize)), "Largest accepted image (e.g. 16MiB)")
	f.String("preview-dir", defaultPreviewDir(), "Where local previews of uploaded images go")
}

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload IMAGE...",
		Short: "Upload images of notes for a later 'generate --uploaded'",
		Long: "Uploads images and prints their server filenames. With --keep-previews a local copy " +
			"of each accepted image is written to --preview-dir; 'aceplus prune' removes old ones.",
		Args: cobra.MinimumNArgs(1),
		RunE: runE(appOptions{}, func(a *app, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			previewDir := ""
			if a.v.GetBool("keep-previews") {
				previewDir = a.v.GetString("preview-dir")
			}
			images, err := a.upload(args, previewDir)
			if err != nil {
				return err
			}
			a.printUploaded(images)
			return nil
		}),
	}
	addUploadFlags(cmd)
	cmd.Flags().Bool("keep-previews", false, "Keep a local preview of each uploaded image")
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [IMAGE...]",
		Short: "Upload images and generate practice questions from them",
		Long: "Uploads the given images, or reuses already uploaded ones named with --uploaded, " +
			"and polls the generation job until the questions are ready.",
		RunE: runE(appOptions{}, runGenerate),
	}
	addUploadFlags(cmd)
	f := cmd.Flags()
	f.StringSlice("uploaded", nil, "Server filenames of images uploaded earlier")
	f.Duration("poll-interval", job.DefaultInterval, "Delay between job status polls")
	f.Duration("job-timeout", job.DefaultMaxDuration, "Give up on a job after this long (0 = wait forever)")
	f.Bool("json", false, "Print the questions as JSON")
	return cmd
}

// upload sends the images at paths. An empty previewDir skips previews.
func (a *app) upload(paths []string, previewDir string) ([]model.UploadedImage, error) {
	maxSize, err := humanize.ParseBytes(a.v.GetString("max-upload-size"))
	if err != nil {
		return nil, fmt.Errorf("max-upload-size: %w", err)
	}
	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		f, err := upload.FileFromPath(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	u := upload.NewUploader(a.gw, upload.Config{
		MaxSize:    int64(maxSize),
		PreviewDir: previewDir,
	})
	return u.Upload(a.ctx, files)
}

func (a *app) printUploaded(images []model.UploadedImage) {
	a.println(appI18n.Tp(a.ctx, "ImagesUploaded", len(images), nil))
	for _, img := range images {
		if img.LocalPath == "" {
			a.println("  " + img.Filename)
			continue
		}
		a.println("  " + appI18n.Td(a.ctx, "ImagePreview", map[string]any{"Filename": img.Filename, "Path": img.LocalPath}))
	}
}

func runGenerate(a *app, args []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	var gallery upload.Gallery
	defer func() {
		if err := gallery.Release(); err != nil {
			slog.Warn("remove previews", "error", err)
		}
	}()
	if len(args) > 0 {
		images, err := a.upload(args, a.v.GetString("preview-dir"))
		if err != nil {
			return err
		}
		a.printUploaded(images)
		gallery.Add(images...)
	}
	for _, name := range a.v.GetStringSlice("uploaded") {
		gallery.Add(model.UploadedImage{Filename: name})
	}

	progress := newProgressPrinter(a.cmd.ErrOrStderr())
	gen := job.NewGenerator(a.gw, job.Options{
		Interval:    a.v.GetDuration("poll-interval"),
		MaxDuration: a.v.GetDuration("job-timeout"),
	})
	questions, err := gen.Generate(a.ctx, gallery.Filenames(), job.Callbacks{
		OnProgress: func(p model.Progress) {
			progress.update(appI18n.Td(a.ctx, "GenerationProgress", map[string]any{"Completed": p.Completed, "Total": p.Total}))
		},
		OnMessage: func(m string) {
			if m == job.StartingMessage {
				m = appI18n.T(a.ctx, "GenerationStarting")
			}
			progress.update(m)
		},
	})
	progress.done()
	if err != nil {
		return err
	}

	if a.v.GetBool("json") {
		enc := json.NewEncoder(a.cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(questions)
	}
	a.println(appI18n.Tp(a.ctx, "QuestionsGenerated", len(questions), nil))
	for i, q := range questions {
		a.println()
		printQuestion(a.cmd.OutOrStdout(), fmt.Sprint(i+1), q, true)
	}
	return nil
}

// printQuestion writes a question with its options and, when showAnswer is
// set and the answer is known, the answer and solution.
func printQuestion(w io.Writer, label string, q model.Question, showAnswer bool) {
	fmt.Fprintf(w, "%s. %s\n", label, q.Question)
	for _, k := range model.OptionKeys {
		if text, ok := q.Options[k]; ok {
			fmt.Fprintf(w, "   %s) %s\n", k, text)
		}
	}
	if !showAnswer || q.Answer == "" {
		return
	}
	fmt.Fprintf(w, "   => %s\n", q.Answer)
	if q.Solution != "" {
		fmt.Fprintf(w, "   %s\n", q.Solution)
	}
}

// progressPrinter rewrites one status line on a terminal and prints one line
// per change otherwise.
type progressPrinter struct {
	w    io.Writer
	tty  bool
	last string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	p := &progressPrinter{w: w}
	if f, ok := w.(*os.File); ok {
		p.tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

func (p *progressPrinter) update(line string) {
	if line == p.last {
		return
	}
	if p.tty {
		fmt.Fprintf(p.w, "\r\033[K%s", line)
	} else {
		fmt.Fprintln(p.w, line)
	}
	p.last = line
}

func (p *progressPrinter) done() {
	if p.tty && p.last != "" {
		fmt.Fprintln(p.w)
	}
}
