package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"photolineart-backend/internal/models"
	"photolineart-backend/internal/pdfbook"
	"photolineart-backend/internal/services"
)

type pdfOptions struct {
	bundle   string
	manifest string
	title    string
	layout   string
	out      string
	local    bool
}

func newPDFCommand(global *globalOptions) *cobra.Command {
	opts := &pdfOptions{}
	cmd := &cobra.Command{
		Use:   "pdf",
		Short: "Render a coloring book PDF from a bundle or a manifest file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPDF(cmd, global, opts)
		},
	}
	cmd.Flags().StringVar(&opts.bundle, "bundle", "", "Bundle id to render")
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "Manifest JSON file to render")
	cmd.Flags().StringVar(&opts.title, "title", "", "Book title (defaults to the manifest title)")
	cmd.Flags().StringVar(&opts.layout, "layout", pdfbook.LayoutBook, "Page layout (single or book)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "coloring-book.pdf", "Output file")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Render on this machine instead of the server")
	cmd.MarkFlagsOneRequired("bundle", "manifest")
	cmd.MarkFlagsMutuallyExclusive("bundle", "manifest")
	return cmd
}

func runPDF(cmd *cobra.Command, global *globalOptions, opts *pdfOptions) error {
	if opts.layout != pdfbook.LayoutBook && opts.layout != pdfbook.LayoutSingle {
		return fmt.Errorf("layout must be %s or %s", pdfbook.LayoutSingle, pdfbook.LayoutBook)
	}

	ctx := cmd.Context()
	client := newClient(global)

	var manifest *models.PortalManifest
	if opts.bundle != "" {
		m, err := client.GetBundle(ctx, opts.bundle)
		if err != nil {
			return fmt.Errorf("failed to fetch bundle: %w", err)
		}
		manifest = m
	} else {
		m, err := readManifest(opts.manifest)
		if err != nil {
			return err
		}
		manifest = m
	}
	if len(manifest.Items) == 0 {
		return errors.New("manifest has no items")
	}

	title := opts.title
	if title == "" {
		title = manifest.Title
	}

	var data []byte
	pages := 0
	if opts.local {
		fetcher := services.NewSafeFetcher(30 * time.Second)
		doc, err := pdfbook.NewBuilder(fetcher.Fetch).Build(ctx, title, opts.layout, manifest.Items)
		if err != nil {
			return fmt.Errorf("failed to build pdf: %w", err)
		}
		data, pages = doc.Data, doc.Pages
	} else {
		pdf, err := client.BuildPDF(ctx, models.BuildPDFRequest{Title: title, Layout: opts.layout, Items: manifest.Items})
		if err != nil {
			return fmt.Errorf("failed to build pdf: %w", err)
		}
		data = pdf
	}

	if err := os.WriteFile(opts.out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.out, err)
	}
	if pages > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d pages, %d KB)\n", opts.out, pages, len(data)/1024)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d KB)\n", opts.out, len(data)/1024)
	}
	return nil
}

func readManifest(path string) (*models.PortalManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m models.PortalManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
