package sdk

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// SDKFile is the name the loader snippet requests, relative to the page.
	SDKFile = "sp.js"
	// PageFile is the generated test document.
	PageFile = "index.html"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="harness-run" content="{{.RunID}}">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>Run {{.RunID}}</p>
</body>
</html>
`))

// Page describes a generated content root.
type Page struct {
	Dir   string
	RunID string
	Title string
}

// WritePage writes the SDK and a test page into dir and returns the page
// description. dir must already exist.
func WritePage(dir string, source []byte) (*Page, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("write test page: empty sdk source")
	}
	if err := os.WriteFile(filepath.Join(dir, SDKFile), source, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", SDKFile, err)
	}

	runID := uuid.NewString()
	p := &Page{
		Dir:   dir,
		RunID: runID,
		Title: "Inspector test page " + strings.SplitN(runID, "-", 2)[0],
	}

	f, err := os.Create(filepath.Join(dir, PageFile))
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", PageFile, err)
	}
	if err := pageTemplate.Execute(f, p); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("render %s: %w", PageFile, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("write %s: %w", PageFile, err)
	}
	return p, nil
}
