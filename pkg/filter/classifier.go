package filter

// classifier.go - Optional local ML advice classification using Hugot/ONNX.
//
// A text classification model fine-tuned for legal-advice detection backs
// a second opinion on borderline responses. Fully local, opt-in via
// LEXGATE_ENABLE_HUGOT, and the filter runs unchanged without it.

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

// AdviceClassifier wraps a local text classification model that labels
// text as prescriptive advice or informational content.
type AdviceClassifier struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
	mu       sync.RWMutex
	config   ClassifierConfig
	ready    bool
}

// ClassifierConfig configures the advice classifier.
type ClassifierConfig struct {
	// ModelPath is the local ONNX model directory. If empty, ModelName is
	// downloaded into ./models.
	ModelPath string

	// ModelName is the HuggingFace model identifier.
	ModelName string

	// OnnxLibraryPath points at libonnxruntime.so. Empty falls back to the
	// pure Go backend.
	OnnxLibraryPath string

	// Timeout bounds a single inference call.
	Timeout time.Duration
}

// ClassifierEnabled reports whether the local classifier should load.
// Disabled by default so plain installs stay quiet.
func ClassifierEnabled() bool {
	switch os.Getenv("LEXGATE_ENABLE_HUGOT") {
	case "1", "true", "TRUE", "yes", "YES", "on", "ON":
		return true
	default:
		return false
	}
}

// DefaultClassifierConfig returns the stock configuration.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ModelName:       "lexgate/legal-advice-classifier",
		ModelPath:       "./models/advice-classifier",
		OnnxLibraryPath: findOnnxRuntime(),
		Timeout:         30 * time.Second,
	}
}

func findOnnxRuntime() string {
	paths := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Dir(p)
		}
	}
	return ""
}

// NewAdviceClassifier builds and initializes the classifier.
func NewAdviceClassifier(cfg ClassifierConfig) (*AdviceClassifier, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &AdviceClassifier{config: cfg}
	if err := c.initialize(); err != nil {
		return nil, fmt.Errorf("classifier initialization: %w", err)
	}
	return c, nil
}

// NewOptionalAdviceClassifier returns nil when the classifier is disabled
// or fails to load. The pipeline treats nil as "layer absent".
func NewOptionalAdviceClassifier() *AdviceClassifier {
	if !ClassifierEnabled() {
		return nil
	}
	c, err := NewAdviceClassifier(DefaultClassifierConfig())
	if err != nil {
		log.Printf("[WARN] Advice classifier unavailable: %v", err)
		return nil
	}
	return c
}

func (c *AdviceClassifier) initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.createSession()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	c.session = session

	modelPath, err := c.resolveModelPath()
	if err != nil {
		_ = c.session.Destroy()
		return fmt.Errorf("resolve model path: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "advice-classifier",
	})
	if err != nil {
		_ = c.session.Destroy()
		return fmt.Errorf("create pipeline: %w", err)
	}

	c.pipeline = pipeline
	c.ready = true
	log.Printf("[STARTUP] Advice classifier ready (model: %s)", modelPath)
	return nil
}

func (c *AdviceClassifier) createSession() (*hugot.Session, error) {
	if c.config.OnnxLibraryPath != "" {
		session, err := hugot.NewORTSession(
			options.WithOnnxLibraryPath(c.config.OnnxLibraryPath),
		)
		if err == nil {
			log.Printf("[STARTUP] Advice classifier using ONNX Runtime backend")
			return session, nil
		}
		log.Printf("[WARN] ONNX Runtime unavailable, falling back to Go backend: %v", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create Go session: %w", err)
	}
	return session, nil
}

func (c *AdviceClassifier) resolveModelPath() (string, error) {
	if c.config.ModelPath != "" {
		if _, err := os.Stat(c.config.ModelPath); err == nil {
			return c.config.ModelPath, nil
		}
	}
	if c.config.ModelName == "" {
		return "", fmt.Errorf("no model path or name configured")
	}

	if err := os.MkdirAll("./models", 0755); err != nil {
		return "", fmt.Errorf("create models directory: %w", err)
	}
	log.Printf("[STARTUP] Downloading model %s...", c.config.ModelName)
	modelPath, err := hugot.DownloadModel(c.config.ModelName, "./models", hugot.NewDownloadOptions())
	if err != nil {
		return "", fmt.Errorf("download model: %w", err)
	}
	return modelPath, nil
}

// IsReady reports whether the model loaded.
func (c *AdviceClassifier) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// ClassifierResult is one classification outcome.
type ClassifierResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	IsAdvice   bool    `json:"is_advice"`
}

// isAdviceLabel maps model label conventions onto the advice decision.
func isAdviceLabel(label string) bool {
	switch label {
	case "advice", "ADVICE", "prescriptive", "LABEL_1":
		return true
	default:
		return false
	}
}

// ClassifySingle classifies one text.
func (c *AdviceClassifier) ClassifySingle(ctx context.Context, text string) (ClassifierResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.ready || c.pipeline == nil {
		return ClassifierResult{}, fmt.Errorf("advice classifier not ready")
	}

	result, err := c.pipeline.RunPipeline([]string{text})
	if err != nil {
		return ClassifierResult{}, fmt.Errorf("classification: %w", err)
	}
	if len(result.ClassificationOutputs) == 0 || len(result.ClassificationOutputs[0]) == 0 {
		return ClassifierResult{}, fmt.Errorf("no classification output")
	}

	out := result.ClassificationOutputs[0][0]
	return ClassifierResult{
		Label:      out.Label,
		Confidence: float64(out.Score),
		IsAdvice:   isAdviceLabel(out.Label),
	}, nil
}

// Close releases the model session.
func (c *AdviceClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready = false
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
	}
	return nil
}
