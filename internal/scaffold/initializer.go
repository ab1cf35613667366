// Package scaffold writes a starter taskboard.yml.
package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/freudmarin/TaskBoardApp/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// Options fills the template.
type Options struct {
	APIURL string
	BusURL string
}

// Initialize writes taskboard.yml into dir and returns its path.
// If force is true an existing file is overwritten.
func Initialize(dir string, opts Options, force bool) (string, error) {
	path := filepath.Join(dir, config.DefaultPath)
	if !force {
		if err := CheckExisting(dir); err != nil {
			return "", err
		}
	}

	defaults := config.Default()
	if opts.APIURL == "" {
		opts.APIURL = defaults.API.BaseURL
	}
	if opts.BusURL == "" {
		opts.BusURL = defaults.Bus.URL
	}

	content, err := render(opts)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	// Validate the created file the same way every command will read it
	if _, err := config.Load(path); err != nil {
		return "", fmt.Errorf("created %s is invalid: %w", config.DefaultPath, err)
	}
	return path, nil
}

func render(opts Options) ([]byte, error) {
	raw, err := templatesFS.ReadFile("templates/taskboard.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read taskboard.yml template: %w", err)
	}
	tmpl, err := template.New("taskboard.yml").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse taskboard.yml template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, opts); err != nil {
		return nil, fmt.Errorf("failed to render taskboard.yml: %w", err)
	}
	return buf.Bytes(), nil
}
