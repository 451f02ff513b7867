package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/pdftest"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestParseArgs(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseArgs([]string{"--format", "json", "--label", "Company name", "--label", "Address", "form.pdf"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "form.pdf", opts.path)
	assert.Equal(t, "json", opts.format)
	assert.Equal(t, []string{"Company name", "Address"}, opts.labels)

	_, err = parseArgs(nil, &stderr)
	assert.Error(t, err)
	assert.Contains(t, stderr.String(), "USAGE")

	_, err = parseArgs([]string{"--format", "xml", "form.pdf"}, &stderr)
	assert.ErrorContains(t, err, "invalid format")
}

func TestRun_Text(t *testing.T) {
	path := writeFile(t, "form.pdf", pdftest.FormTemplate())

	var stdout, stderr bytes.Buffer
	code := run([]string{"--label", "Company name", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "Pages:")
	assert.Contains(t, out, "company_name")
	assert.Contains(t, out, "combobox")
	assert.Contains(t, out, "Company name")
}

func TestRun_JSONWithMapping(t *testing.T) {
	path := writeFile(t, "plan.pdf", pdftest.PlainTemplate())
	mapping := writeFile(t, "mapping.yaml", []byte(`
companyName:
  type: text
  coordinates: {page: 1, x: 150, y: 760}
attachment:
  type: text
  coordinates: {page: 7, x: 50, y: 700}
`))

	var stdout, stderr bytes.Buffer
	code := run([]string{"--format", "json", "--mapping", mapping, path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var resp struct {
		Analysis struct {
			PageCount int `json:"pageCount"`
		} `json:"analysis"`
		Findings []struct {
			Key      string `json:"key"`
			Severity string `json:"severity"`
		} `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, 3, resp.Analysis.PageCount)
	require.NotEmpty(t, resp.Findings)

	stdout.Reset()
	assert.Equal(t, 2, run([]string{"--strict", "--mapping", mapping, path}, &stdout, &stderr))
}

func TestRun_Suggest(t *testing.T) {
	path := writeFile(t, "form.pdf", pdftest.FormTemplate())

	var stdout, stderr bytes.Buffer
	code := run([]string{"--suggest", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	mapping, err := template.ParseMapping(stdout.Bytes())
	require.NoError(t, err)
	assert.Contains(t, mapping, "company_name")
	assert.Equal(t, template.FieldTypeCheckbox, mapping["agree"].Type)
}

func TestRun_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{filepath.Join(t.TempDir(), "missing.pdf")}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Error analyzing template")

	stderr.Reset()
	path := writeFile(t, "bad.pdf", []byte("not a pdf"))
	assert.Equal(t, 1, run([]string{path}, &stdout, &stderr))

	assert.Equal(t, 0, run([]string{"--help"}, &stdout, &stderr))
}
