package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/menta2k/thread-gauge/pkg/analyzer"
	"github.com/menta2k/thread-gauge/pkg/calibration"
	"github.com/menta2k/thread-gauge/pkg/classify"
	"github.com/menta2k/thread-gauge/pkg/detection"
	"github.com/menta2k/thread-gauge/pkg/pipeline"
	"github.com/menta2k/thread-gauge/pkg/processing"
	"github.com/menta2k/thread-gauge/pkg/types"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "THREAD_GAUGE_"

// Detector backends
const (
	BackendOllama    = "ollama"
	BackendLlamaCpp  = "llamacpp"
	BackendInference = "inference"
	BackendYOLO      = "yolo"
)

// Config holds the application configuration
type Config struct {
	Measurement MeasurementConfig `json:"measurement" toml:"measurement"`
	Detector    DetectorConfig    `json:"detector" toml:"detector"`
	Output      OutputConfig      `json:"output" toml:"output"`
	Server      ServerConfig      `json:"server" toml:"server"`
	Log         LogConfig         `json:"log" toml:"log"`
}

// MeasurementConfig holds calibration and classification settings
type MeasurementConfig struct {
	ReferenceWidthMM float64  `json:"reference_width_mm" toml:"reference_width_mm"`
	ReferenceLabel   string   `json:"reference_label" toml:"reference_label"`
	TargetLabel      string   `json:"target_label" toml:"target_label"`
	ToleranceMM      float64  `json:"tolerance_mm" toml:"tolerance_mm"`
	MaxImageSide     int      `json:"max_image_side" toml:"max_image_side"`
	Selection        string   `json:"selection" toml:"selection"`
	Match            string   `json:"match" toml:"match"`
	SupportedFormats []string `json:"supported_formats" toml:"supported_formats"`
	MinImageSize     int      `json:"min_image_size" toml:"min_image_size"`
	MaxImagePixels   int      `json:"max_image_pixels" toml:"max_image_pixels"`

	// OrientationLabels maps "internal" and "external" to detector classes that
	// only count as the target for requests of that orientation
	OrientationLabels map[string]string `json:"orientation_labels" toml:"orientation_labels"`
}

// DetectorConfig selects and configures the object detector
type DetectorConfig struct {
	Backend             string            `json:"backend" toml:"backend"`
	URL                 string            `json:"url" toml:"url"`
	Model               string            `json:"model" toml:"model"`
	ModelPath           string            `json:"model_path" toml:"model_path"`
	ClassNames          []string          `json:"class_names" toml:"class_names"`
	LabelMap            map[string]string `json:"label_map" toml:"label_map"`
	ConfidenceThreshold float64           `json:"confidence_threshold" toml:"confidence_threshold"`
	NMSThreshold        float64           `json:"nms_threshold" toml:"nms_threshold"`
	SendFormat          string            `json:"send_format" toml:"send_format"`
	SendSize            int               `json:"send_size" toml:"send_size"`
	SendQuality         int               `json:"send_quality" toml:"send_quality"`
	TimeoutSeconds      int               `json:"timeout_seconds" toml:"timeout_seconds"`
}

// OutputConfig holds configuration for debug overlays
type OutputConfig struct {
	DebugDir       string `json:"debug_dir" toml:"debug_dir"`
	Format         string `json:"format" toml:"format"`
	Quality        int    `json:"quality" toml:"quality"`
	ReferenceColor string `json:"reference_color" toml:"reference_color"`
	TargetColor    string `json:"target_color" toml:"target_color"`
}

// ServerConfig holds configuration for the HTTP service
type ServerConfig struct {
	Addr                  string `json:"addr" toml:"addr"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" toml:"request_timeout_seconds"`
	MaxUploadMB           int    `json:"max_upload_mb" toml:"max_upload_mb"`
	StaticDir             string `json:"static_dir" toml:"static_dir"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Dir   string `json:"dir" toml:"dir"`
	Level string `json:"level" toml:"level"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Measurement: MeasurementConfig{
			ReferenceWidthMM: calibration.CardWidthMM,
			ReferenceLabel:   detection.DefaultReferenceLabel,
			TargetLabel:      detection.DefaultTargetLabel,
			ToleranceMM:      classify.DefaultToleranceMM,
			MaxImageSide:     pipeline.DefaultMaxImageSide,
			Selection:        detection.SelectFirst.String(),
			Match:            classify.MatchFirst.String(),
			SupportedFormats: []string{"jpeg", "png", "webp"},
			MinImageSize:     32,
			MaxImagePixels:   analyzer.DefaultMaxPixels,
			OrientationLabels: map[string]string{
				string(types.Internal): detection.DefaultInternalLabel,
				string(types.External): detection.DefaultExternalLabel,
			},
		},
		Detector: DetectorConfig{
			Backend:    BackendOllama,
			URL:        "http://localhost:11434",
			Model:      "qwen2.5vl:7b",
			ModelPath:  "./models/thread-gauge.onnx",
			ClassNames: []string{"card", "thread"},
			ConfidenceThreshold: 0.25,
			NMSThreshold:        0.45,
			SendFormat:          "jpeg",
			SendSize:            1024,
			SendQuality:         90,
			TimeoutSeconds:      120,
		},
		Output: OutputConfig{
			DebugDir:       "./debug",
			Format:         "png",
			Quality:        92,
			ReferenceColor: processing.ReferenceColorHex,
			TargetColor:    processing.TargetColorHex,
		},
		Server: ServerConfig{
			Addr:                  ":8000",
			RequestTimeoutSeconds: 60,
			MaxUploadMB:           20,
			StaticDir:             "./static",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads an optional JSON file, then applies .env and environment overrides and
// validates the result. A missing file at the default path is not an error.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		loaded, err := LoadFromFile(filename)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, os.ErrNotExist) && filename == GetConfigPath():
		default:
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file, or a TOML file when the name ends in
// .toml. Fields absent from the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		return config, nil
	}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = json.MarshalIndent(c, "", "  "); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads ./.env when present and overrides fields from THREAD_GAUGE_* variables.
// Variables already set in the process environment win over .env entries.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	m := &c.Measurement
	m.ReferenceWidthMM = getEnvAsFloat("REFERENCE_WIDTH_MM", m.ReferenceWidthMM)
	m.ReferenceLabel = getEnv("REFERENCE_LABEL", m.ReferenceLabel)
	m.TargetLabel = getEnv("TARGET_LABEL", m.TargetLabel)
	m.ToleranceMM = getEnvAsFloat("TOLERANCE_MM", m.ToleranceMM)
	m.MaxImageSide = getEnvAsInt("MAX_IMAGE_SIDE", m.MaxImageSide)
	m.Selection = getEnv("SELECTION", m.Selection)
	m.Match = getEnv("MATCH", m.Match)
	m.MaxImagePixels = getEnvAsInt("MAX_IMAGE_PIXELS", m.MaxImagePixels)

	d := &c.Detector
	d.Backend = getEnv("BACKEND", d.Backend)
	d.URL = getEnv("DETECTOR_URL", d.URL)
	d.Model = getEnv("MODEL", d.Model)
	d.ModelPath = getEnv("MODEL_PATH", d.ModelPath)
	d.ClassNames = getEnvAsList("CLASS_NAMES", d.ClassNames)
	d.ConfidenceThreshold = getEnvAsFloat("CONFIDENCE_THRESHOLD", d.ConfidenceThreshold)
	d.TimeoutSeconds = getEnvAsInt("DETECTOR_TIMEOUT", d.TimeoutSeconds)

	c.Output.DebugDir = getEnv("DEBUG_DIR", c.Output.DebugDir)
	c.Output.Format = getEnv("DEBUG_FORMAT", c.Output.Format)

	s := &c.Server
	s.Addr = getEnv("ADDR", s.Addr)
	if port := os.Getenv("API_PORT"); port != "" && os.Getenv(EnvPrefix+"ADDR") == "" {
		s.Addr = ":" + port
	}
	s.RequestTimeoutSeconds = getEnvAsInt("REQUEST_TIMEOUT", s.RequestTimeoutSeconds)
	s.MaxUploadMB = getEnvAsInt("MAX_UPLOAD_MB", s.MaxUploadMB)
	s.StaticDir = getEnv("STATIC_DIR", s.StaticDir)

	c.Log.Dir = getEnv("LOG_DIR", c.Log.Dir)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	m := c.Measurement
	if !(m.ReferenceWidthMM > 0) {
		return fmt.Errorf("measurement.reference_width_mm must be positive")
	}
	if m.ReferenceLabel == "" || m.TargetLabel == "" {
		return fmt.Errorf("measurement labels cannot be empty")
	}
	if strings.EqualFold(m.ReferenceLabel, m.TargetLabel) {
		return fmt.Errorf("measurement.reference_label and target_label must differ")
	}
	if !(m.ToleranceMM > 0) {
		return fmt.Errorf("measurement.tolerance_mm must be positive")
	}
	if m.MaxImageSide < 1 {
		return fmt.Errorf("measurement.max_image_side must be positive")
	}
	if _, err := detection.ParseSelectionPolicy(m.Selection); err != nil {
		return fmt.Errorf("measurement.selection: %w", err)
	}
	if _, err := classify.ParseMatchPolicy(m.Match); err != nil {
		return fmt.Errorf("measurement.match: %w", err)
	}
	if len(m.SupportedFormats) == 0 {
		return fmt.Errorf("measurement.supported_formats cannot be empty")
	}
	if m.MinImageSize < 1 {
		return fmt.Errorf("measurement.min_image_size must be positive")
	}
	if m.MaxImagePixels < m.MinImageSize*m.MinImageSize {
		return fmt.Errorf("measurement.max_image_pixels must allow at least a %dx%d image", m.MinImageSize, m.MinImageSize)
	}
	if _, err := c.orientationLabels(); err != nil {
		return err
	}

	d := c.Detector
	switch d.Backend {
	case BackendOllama, BackendLlamaCpp:
		if d.Model == "" {
			return fmt.Errorf("detector.model is required for the %s backend", d.Backend)
		}
		if d.URL == "" {
			return fmt.Errorf("detector.url is required for the %s backend", d.Backend)
		}
	case BackendInference:
		if d.URL == "" {
			return fmt.Errorf("detector.url is required for the inference backend")
		}
	case BackendYOLO:
		if d.ModelPath == "" {
			return fmt.Errorf("detector.model_path is required for the yolo backend")
		}
		if len(d.ClassNames) == 0 {
			return fmt.Errorf("detector.class_names cannot be empty for the yolo backend")
		}
	default:
		return fmt.Errorf("unknown detector.backend %q", d.Backend)
	}
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1 {
		return fmt.Errorf("detector.confidence_threshold must be between 0 and 1")
	}
	if d.NMSThreshold < 0 || d.NMSThreshold > 1 {
		return fmt.Errorf("detector.nms_threshold must be between 0 and 1")
	}
	if d.SendQuality < 1 || d.SendQuality > 100 {
		return fmt.Errorf("detector.send_quality must be between 1 and 100")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	switch strings.ToLower(c.Output.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.format must be png, jpg or webp")
	}
	if _, err := processing.ParseColor(c.Output.ReferenceColor); err != nil {
		return fmt.Errorf("output.reference_color: %w", err)
	}
	if _, err := processing.ParseColor(c.Output.TargetColor); err != nil {
		return fmt.Errorf("output.target_color: %w", err)
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if c.Server.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("server.request_timeout_seconds must be positive")
	}

	return nil
}

// PipelineOptions converts the measurement and output sections into orchestrator options
func (c *Config) PipelineOptions() (pipeline.Options, error) {
	selection, err := detection.ParseSelectionPolicy(c.Measurement.Selection)
	if err != nil {
		return pipeline.Options{}, err
	}
	match, err := classify.ParseMatchPolicy(c.Measurement.Match)
	if err != nil {
		return pipeline.Options{}, err
	}
	refColor, err := processing.ParseColor(c.Output.ReferenceColor)
	if err != nil {
		return pipeline.Options{}, err
	}
	targetColor, err := processing.ParseColor(c.Output.TargetColor)
	if err != nil {
		return pipeline.Options{}, err
	}

	orientationLabels, err := c.orientationLabels()
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		ReferenceWidthMM:  c.Measurement.ReferenceWidthMM,
		Labels:            detection.Labels{Reference: c.Measurement.ReferenceLabel, Target: c.Measurement.TargetLabel},
		OrientationLabels: orientationLabels,
		Selection:         selection,
		ToleranceMM:       c.Measurement.ToleranceMM,
		Match:             match,
		MaxImageSide:      c.Measurement.MaxImageSide,
		Analyzer: analyzer.Config{
			SupportedFormats: c.Measurement.SupportedFormats,
			MinImageSize:     c.Measurement.MinImageSize,
			MaxPixels:        c.Measurement.MaxImagePixels,
		},
		DebugDir:       c.Output.DebugDir,
		DebugFormat:    c.Output.Format,
		DebugQuality:   c.Output.Quality,
		ReferenceColor: refColor,
		TargetColor:    targetColor,
	}, nil
}

// RestartFields lists the settings that differ in next but only take effect when
// the server restarts
func (c *Config) RestartFields(next *Config) []string {
	s := c.Server
	var changed []string
	if s.Addr != next.Server.Addr {
		changed = append(changed, "server.addr")
	}
	if s.RequestTimeoutSeconds != next.Server.RequestTimeoutSeconds {
		changed = append(changed, "server.request_timeout_seconds")
	}
	if s.MaxUploadMB != next.Server.MaxUploadMB {
		changed = append(changed, "server.max_upload_mb")
	}
	if s.StaticDir != next.Server.StaticDir {
		changed = append(changed, "server.static_dir")
	}
	if c.Log != next.Log {
		changed = append(changed, "log")
	}
	return changed
}

func (c *Config) orientationLabels() (map[types.Orientation]string, error) {
	m := c.Measurement
	if len(m.OrientationLabels) == 0 {
		return nil, nil
	}
	out := make(map[types.Orientation]string, len(m.OrientationLabels))
	for k, v := range m.OrientationLabels {
		o, err := types.ParseOrientation(k)
		if err != nil {
			return nil, fmt.Errorf("measurement.orientation_labels: %w", err)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.EqualFold(v, m.ReferenceLabel) {
			return nil, fmt.Errorf("measurement.orientation_labels.%s cannot be the reference label", k)
		}
		if prev, ok := out[o]; ok && !strings.EqualFold(prev, v) {
			return nil, fmt.Errorf("measurement.orientation_labels lists %s twice", o)
		}
		out[o] = v
	}
	if len(out) == 2 && strings.EqualFold(out[types.Internal], out[types.External]) {
		return nil, fmt.Errorf("measurement.orientation_labels must differ per orientation")
	}
	return out, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "thread-gauge", "config.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
