package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/a3tai/subsidy-form-filler/internal/pdf"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/analyzer"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
	"github.com/a3tai/subsidy-form-filler/internal/registry"
)

// options holds the parsed command line
type options struct {
	path        string
	format      string
	mappingFile string
	labels      []string
	suggest     bool
	strict      bool
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := pflag.NewFlagSet("pdf_analyze_template", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := &options{}
	fs.StringVar(&opts.format, "format", "text", "Output format: text, json")
	fs.StringVar(&opts.mappingFile, "mapping", "", "YAML or JSON field mapping to check against the template")
	fs.StringArrayVar(&opts.labels, "label", nil, "Printed label to locate (repeatable)")
	fs.BoolVar(&opts.suggest, "suggest", false, "Print a draft YAML mapping instead of the analysis")
	fs.BoolVar(&opts.strict, "strict", false, "Exit with status 2 when the mapping check reports errors")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "USAGE:")
		fmt.Fprintln(stderr, "  pdf_analyze_template [OPTIONS] <pdf_file>")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "OPTIONS:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("exactly one PDF file path required")
	}
	if opts.format != "text" && opts.format != "json" {
		return nil, fmt.Errorf("invalid format %q: must be text or json", opts.format)
	}
	opts.path = fs.Arg(0)
	return opts, nil
}

// analyze runs the template analysis for opts
func analyze(ctx context.Context, opts *options) (*pdf.AnalyzeResponse, error) {
	data, err := os.ReadFile(opts.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", opts.path, err)
	}

	var mapping template.FieldMapping
	if opts.mappingFile != "" {
		if mapping, err = template.LoadMappingFile(opts.mappingFile); err != nil {
			return nil, err
		}
	}

	svc, err := pdf.NewService(zap.NewNop(), 0, registry.NewMemoryStore(), registry.NewMemoryBlobs(), nil)
	if err != nil {
		return nil, err
	}
	return svc.Analyze(ctx, pdf.AnalyzeRequest{Template: data, Mapping: mapping, Labels: opts.labels})
}

func writeText(w io.Writer, resp *pdf.AnalyzeResponse) error {
	a := resp.Analysis
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Pages:\t%d\n", a.PageCount)
	for _, p := range a.Pages {
		fmt.Fprintf(tw, "  page %d\t%.0f x %.0f pt\n", p.Number, p.Width, p.Height)
	}

	if a.HasInteractiveFields {
		fmt.Fprintf(tw, "\nFIELD\tKIND\tPAGE\tRECT\n")
		for _, name := range a.FieldNames {
			f := a.Fields[name]
			rect := "-"
			if f.Rect != nil {
				rect = fmt.Sprintf("%.0f,%.0f %.0f,%.0f", f.Rect.LLX, f.Rect.LLY, f.Rect.URX, f.Rect.URY)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", f.Name, f.Kind, f.Page, rect)
		}
	} else {
		fmt.Fprintln(tw, "\nNo interactive form fields")
	}

	if len(resp.Anchors) > 0 {
		labels := make([]string, 0, len(resp.Anchors))
		for l := range resp.Anchors {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		fmt.Fprintf(tw, "\nLABEL\tPAGE\tX\tY\n")
		for _, l := range labels {
			an := resp.Anchors[l]
			fmt.Fprintf(tw, "%s\t%d\t%.0f\t%.0f\n", l, an.Page, an.X, an.Y)
		}
	}

	for _, f := range resp.Findings {
		fmt.Fprintf(tw, "%s\n", f)
	}
	return tw.Flush()
}

func write(w io.Writer, opts *options, resp *pdf.AnalyzeResponse) error {
	if opts.suggest {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(analyzer.SuggestMapping(resp.Analysis, resp.Anchors)); err != nil {
			return err
		}
		return enc.Close()
	}
	if opts.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return writeText(w, resp)
}

// run returns the process exit status
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	resp, err := analyze(context.Background(), opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error analyzing template: %v\n", err)
		return 1
	}
	if err := write(stdout, opts, resp); err != nil {
		fmt.Fprintf(stderr, "Error writing results: %v\n", err)
		return 1
	}
	if opts.strict && analyzer.HasErrors(resp.Findings) {
		return 2
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
