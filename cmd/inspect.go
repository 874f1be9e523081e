package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"k8s.io/apimachinery/pkg/labels"

	"dashsync/internal/config"
	"dashsync/internal/dashboard"
	"dashsync/internal/formatting"
	"dashsync/internal/source"
)

type inspectOptions struct {
	output      string
	namespace   string
	selector    string
	filePattern string
	markerTag   string
	noColor     bool
	quiet       bool
}

// newInspectCmd creates the command that extracts dashboards from manifest files offline.
func newInspectCmd() *cobra.Command {
	opts := &inspectOptions{}
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "inspect PATH...",
		Short: "Show the dashboards ConfigMap manifests would produce",
		Long: `Reads ConfigMap manifests from files or directories and prints every
dashboard dashsync would sync, with its UID and checksum, plus the entries
that cannot be parsed. Nothing is sent to Grafana.

The command fails when an entry is invalid, so it can be used to lint
manifests in CI.`,
		Example: `  dashsync inspect deploy/dashboards/
  dashsync inspect -o json --namespace monitoring dashboards.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.OutOrStdout(), opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", string(formatting.FormatTable), "Output format (table, json or yaml)")
	cmd.Flags().StringVar(&opts.namespace, "namespace", "", "Namespace of manifests without one; must match the watched namespace for UIDs to match")
	cmd.Flags().StringVar(&opts.selector, "selector", "", "ConfigMap label selector; all ConfigMaps when empty")
	cmd.Flags().StringVar(&opts.filePattern, "file-pattern", d.Source.FilePattern, "Pattern of ConfigMap keys holding dashboards")
	cmd.Flags().StringVar(&opts.markerTag, "marker-tag", d.Grafana.MarkerTag, "Tag added to every managed dashboard")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored table output")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Omit totals and indentation")
	return cmd
}

func runInspect(out io.Writer, opts *inspectOptions, paths []string) error {
	formatter, err := formatting.NewFormatter(formatting.Options{
		Format: formatting.OutputFormat(opts.output),
		Quiet:  opts.quiet,
		Color:  !opts.noColor && isTerminal(out),
	})
	if err != nil {
		return err
	}

	selector, err := labels.Parse(opts.selector)
	if err != nil {
		return fmt.Errorf("invalid label selector %q: %w", opts.selector, err)
	}

	extractor, err := dashboard.NewExtractor(dashboard.Options{
		FilePattern: opts.filePattern,
		MarkerTag:   opts.markerTag,
	})
	if err != nil {
		return err
	}

	files, err := manifestFiles(paths)
	if err != nil {
		return err
	}

	var report formatting.Report
	for _, file := range files {
		cms, err := source.ReadManifestFile(file)
		if err != nil {
			return err
		}
		for _, cm := range cms {
			src := source.FromConfigMap(cm)
			if src.Namespace == "" {
				src.Namespace = opts.namespace
			}
			if !selector.Matches(labels.Set(src.Labels)) {
				continue
			}
			appendToReport(&report, extractor, src)
		}
	}

	if err := formatter.FormatReport(out, report); err != nil {
		return err
	}
	if n := len(report.Problems); n > 0 {
		return fmt.Errorf("%d invalid dashboard entries", n)
	}
	return nil
}

func appendToReport(report *formatting.Report, extractor *dashboard.Extractor, src *source.DashboardSource) {
	docs, parseErrs := extractor.Extract(src)

	for _, doc := range docs {
		report.Dashboards = append(report.Dashboards, formatting.DashboardRow{
			Source:     doc.Source.String(),
			PayloadKey: doc.PayloadKey,
			UID:        string(doc.Key),
			Title:      doc.Title,
			Tags:       tagsOf(doc),
			Checksum:   doc.Checksum,
		})
	}
	for _, perr := range parseErrs {
		report.Problems = append(report.Problems, formatting.ProblemRow{
			Source:     perr.Source.String(),
			PayloadKey: perr.PayloadKey,
			UID:        string(perr.Key),
			Error:      perr.Err.Error(),
		})
	}
}

func tagsOf(doc *dashboard.Document) []string {
	raw, _ := doc.Content["tags"].([]interface{})
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// manifestFiles expands directories into the manifest files below them.
func manifestFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && source.IsManifestFile(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
