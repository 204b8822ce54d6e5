package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"photolineart-backend/internal/apiclient"
	"photolineart-backend/internal/logger"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/pipeline"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true, ".heif": true,
}

type batchOptions struct {
	email      string
	context    string
	title      string
	paletteSet int
	style      string
	thickness  string
	workers    int
	publish    bool
	copyAssets bool
	timeout    time.Duration
	asJSON     bool
}

type batchReport struct {
	Items    []pipeline.Item         `json:"items"`
	Rejected []pipeline.Rejection    `json:"rejected,omitempty"`
	Health   pipeline.Health         `json:"health"`
	Portal   *models.PortalResponse  `json:"portal,omitempty"`
	Publish  *pipeline.PublishResult `json:"publish,omitempty"`
}

func newBatchCommand(global *globalOptions) *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch PATH...",
		Short: "Convert a batch of photos to line art",
		Long: "Uploads every photo found in the given files and directories, " +
			"generates line art for each and optionally publishes the result as a bundle.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "Account email used for credits")
	cmd.Flags().StringVar(&opts.context, "context", models.ContextSingle, "Generation context (single or book)")
	cmd.Flags().StringVar(&opts.title, "title", "", "Portal and bundle title")
	cmd.Flags().IntVar(&opts.paletteSet, "palette-set", 0, "Pencil tin size used for the analysis")
	cmd.Flags().StringVar(&opts.style, "style", "", "Extra style hint for the line art")
	cmd.Flags().StringVar(&opts.thickness, "line-thickness", "", "Line weight (thin, medium, bold)")
	cmd.Flags().IntVar(&opts.workers, "workers", pipeline.DefaultWorkers, "Concurrent generation workers")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Publish ready items as a bundle")
	cmd.Flags().BoolVar(&opts.copyAssets, "copy-assets", false, "Copy assets into the bundle folder when publishing")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "Give up waiting after this long")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print JSON")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runBatch(cmd *cobra.Command, global *globalOptions, opts *batchOptions, paths []string) error {
	sources, err := collectSources(paths)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return errors.New("no photos found")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var generation *models.GenerationOptions
	if opts.paletteSet != 0 || opts.style != "" || opts.thickness != "" {
		generation = &models.GenerationOptions{
			PaletteSet:    opts.paletteSet,
			Style:         opts.style,
			LineThickness: opts.thickness,
		}
	}

	p := pipeline.New(newClient(global), pipeline.Options{
		Email:      opts.email,
		Context:    opts.context,
		Title:      opts.title,
		Generation: generation,
		CopyAssets: opts.copyAssets,
		Workers:    opts.workers,
		Retry:      pipeline.RetryPolicy{ShouldRetry: apiclient.IsRetryable},
		Notify: func(op string, err error) {
			logger.Log.WithFields(logrus.Fields{"op": op}).WithError(err).Error("Request failed")
		},
	})
	p.Start(ctx)

	admission := p.Add(sources)
	if len(admission.Accepted) == 0 {
		return fmt.Errorf("all %d files were rejected", len(admission.Rejected))
	}

	stderr := cmd.ErrOrStderr()
	stopProgress := func() {}
	if isTerminal(stderr) && !opts.asJSON {
		stopProgress = showProgress(ctx, stderr, p)
	}
	waitErr := p.Wait(ctx)
	stopProgress()
	if waitErr != nil {
		return fmt.Errorf("batch did not finish: %w", waitErr)
	}

	report := batchReport{
		Items:    p.Snapshot(),
		Rejected: admission.Rejected,
		Health:   p.Health(),
		Portal:   p.Portal(),
	}
	if opts.publish {
		result, err := p.Publish(ctx)
		if err != nil {
			return fmt.Errorf("failed to publish: %w", err)
		}
		report.Publish = result
	}

	if opts.asJSON {
		return writeJSON(cmd, report)
	}
	printBatchReport(cmd.OutOrStdout(), report)
	return nil
}

// collectSources reads explicit files as given and walks directories for
// files with an image extension.
func collectSources(paths []string) ([]pipeline.Source, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(p))] {
				return nil
			}
			files = append(files, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}
	sort.Strings(files)

	sources := make([]pipeline.Source, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		sources = append(sources, pipeline.Source{Name: filepath.Base(f), Path: f, Data: data})
	}
	return sources, nil
}

func showProgress(ctx context.Context, w io.Writer, p *pipeline.Pipeline) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				fmt.Fprint(w, "\r\033[K")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r\033[K%s", progressLine(p.Snapshot()))
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func progressLine(items []pipeline.Item) string {
	counts := make(map[pipeline.State]int)
	total := 0
	for _, it := range items {
		counts[it.State]++
		total += it.Progress
	}
	pct := 0
	if len(items) > 0 {
		pct = total / len(items)
	}
	return fmt.Sprintf("%3d%%  ready %d  processing %d  uploading %d  failed %d",
		pct,
		counts[pipeline.StateReady],
		counts[pipeline.StateProcessing]+counts[pipeline.StateUploaded],
		counts[pipeline.StatePreparing]+counts[pipeline.StateUploading],
		counts[pipeline.StateError],
	)
}

func printBatchReport(w io.Writer, report batchReport) {
	rows := make([][]string, 0, len(report.Items))
	for _, it := range report.Items {
		detail := it.LineArtURL
		if it.State == pipeline.StateError {
			detail = it.Error
		}
		rows = append(rows, []string{
			it.FileName,
			string(it.State),
			strconv.Itoa(it.Attempt),
			strconv.FormatInt(it.PreparedSize/1024, 10) + " KB",
			detail,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"File", "State", "Attempts", "Size", "Line art / error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))

	if len(report.Rejected) > 0 {
		rejected := make([][]string, 0, len(report.Rejected))
		for _, r := range report.Rejected {
			rejected = append(rejected, []string{r.Name, r.Reason})
		}
		fmt.Fprintln(w, renderTable([]string{"Rejected", "Reason"}, rejected, nil))
	}

	h := report.Health
	fmt.Fprintln(w, renderTable(
		[]string{"Ready", "Failed", "Avg prep", "Avg upload", "Avg AI"},
		[][]string{{
			strconv.Itoa(h.Counts[pipeline.StateReady]),
			strconv.Itoa(h.Counts[pipeline.StateError]),
			formatDuration(h.AvgPrep),
			formatDuration(h.AvgUpload),
			formatDuration(h.AvgAI),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
	))

	if report.Portal != nil {
		fmt.Fprintf(w, "Portal: %s\n", report.Portal.PortalURL)
	}
	if pub := report.Publish; pub != nil {
		fmt.Fprintf(w, "Bundle: %s (%d items", pub.Bundle.PortalURL, len(pub.Items))
		if pub.Flagged > 0 {
			fmt.Fprintf(w, ", %d without enhanced tips", pub.Flagged)
		}
		fmt.Fprintln(w, ")")
		fmt.Fprintf(w, "QR code: %s\n", pub.Bundle.QRPngURL)
	}
}
