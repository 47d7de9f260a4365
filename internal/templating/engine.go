package templating

import (
	"bytes"
	_ "embed"
	"fmt"
	"html"
	"os"
	"sync"
	"text/template"

	"github.com/john-huang-121/D3-globe/pkg/logger"
)

// DefaultTemplate names the built-in snapshot template
const DefaultTemplate = ""

//go:embed snapshot.svg.tmpl
var defaultSnapshotTemplate string

var templateFuncs = template.FuncMap{
	"esc": html.EscapeString,
}

// Engine handles template loading, caching, and rendering
type Engine struct {
	templateCache map[string]*template.Template
	cacheMutex    sync.RWMutex
	logger        *logger.Logger
}

// NewEngine creates a new template engine
func NewEngine(log *logger.Logger) *Engine {
	return &Engine{
		templateCache: make(map[string]*template.Template),
		logger:        log.Named("template-engine"),
	}
}

// Render renders a snapshot with the template at templatePath, or the
// built-in template when templatePath is empty.
func (e *Engine) Render(templatePath string, ctx *SnapshotContext, opts FormattingOptions) ([]byte, error) {
	tmpl, err := e.getTemplate(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	data := e.prepareTemplateData(ctx, opts)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	e.logger.Debug("Snapshot rendered",
		logger.String("template_path", templatePath),
		logger.Int("markers", len(data.Markers)),
		logger.Int("rendered_length", buf.Len()))

	return buf.Bytes(), nil
}

// prepareTemplateData converts raw context data to formatted template data
func (e *Engine) prepareTemplateData(ctx *SnapshotContext, opts FormattingOptions) SnapshotData {
	data := SnapshotData{
		Width:        ctx.Width,
		Height:       ctx.Height,
		Palette:      ctx.Palette,
		MarkerRadius: formatNumber(ctx.MarkerRadius),
		Title:        "Globe (" + ctx.Variant + ")",
		Generated:    ctx.Timestamp.UTC().Format(opts.TimeFormat),
	}
	if ctx.Frame != nil {
		data.Paths = ctx.Frame.Paths
		data.Center = FormatPosition(ctx.Frame.Center)
		data.Markers = FormatMarkers(ctx.Frame.Enter, opts.MaxMarkers)
	}
	return data
}

// getTemplate retrieves a template from cache or loads it
func (e *Engine) getTemplate(templatePath string) (*template.Template, error) {
	e.cacheMutex.RLock()
	if tmpl, exists := e.templateCache[templatePath]; exists {
		e.cacheMutex.RUnlock()
		return tmpl, nil
	}
	e.cacheMutex.RUnlock()

	e.cacheMutex.Lock()
	defer e.cacheMutex.Unlock()

	// Double-check in case another goroutine loaded it while we were waiting
	if tmpl, exists := e.templateCache[templatePath]; exists {
		return tmpl, nil
	}

	tmpl, err := e.loadTemplate(templatePath)
	if err != nil {
		return nil, err
	}

	e.templateCache[templatePath] = tmpl
	e.logger.Debug("Template loaded and cached",
		logger.String("template_path", templatePath))

	return tmpl, nil
}

// loadTemplate parses the template at templatePath, or the built-in one
func (e *Engine) loadTemplate(templatePath string) (*template.Template, error) {
	content := defaultSnapshotTemplate
	name := "snapshot.svg"
	if templatePath != DefaultTemplate {
		raw, err := os.ReadFile(templatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read template file '%s': %w", templatePath, err)
		}
		content, name = string(raw), templatePath
	}

	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", name, err)
	}
	return tmpl, nil
}

// ClearCache clears the template cache
func (e *Engine) ClearCache() {
	e.cacheMutex.Lock()
	defer e.cacheMutex.Unlock()

	templateCount := len(e.templateCache)
	e.templateCache = make(map[string]*template.Template)

	e.logger.Info("Template cache cleared",
		logger.Int("cleared_count", templateCount))
}
