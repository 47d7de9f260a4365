// Package templating renders standalone SVG snapshots of the globe.
package templating

import (
	"time"

	"github.com/john-huang-121/D3-globe/internal/config"
	"github.com/john-huang-121/D3-globe/internal/globe"
	"github.com/john-huang-121/D3-globe/pkg/logger"
)

// Service provides the main templating functionality
type Service struct {
	engine       *Engine
	templatePath string
	globe        config.GlobeConfig
	logger       *logger.Logger
}

// NewService creates a new templating service. An empty templatePath
// selects the built-in SVG template.
func NewService(templatePath string, globeConfig config.GlobeConfig, log *logger.Logger) *Service {
	return &Service{
		engine:       NewEngine(log),
		templatePath: templatePath,
		globe:        globeConfig,
		logger:       log.Named("templating-service"),
	}
}

// RenderSnapshot renders frame as a complete SVG document. Markers are
// taken from the frame's Enter list, so frame should be a full snapshot.
func (s *Service) RenderSnapshot(frame *globe.Frame) ([]byte, error) {
	return s.engine.Render(s.templatePath, &SnapshotContext{
		Frame:        frame,
		Palette:      s.globe.Palette,
		Width:        s.globe.Width,
		Height:       s.globe.Height,
		MarkerRadius: s.globe.MarkerRadius,
		Variant:      s.globe.Variant,
		Timestamp:    time.Now(),
	}, DefaultFormattingOptions())
}

// ClearCache clears the template cache so an edited template is re-read
func (s *Service) ClearCache() {
	s.engine.ClearCache()
}
