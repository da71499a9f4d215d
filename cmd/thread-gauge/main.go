package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/thread-gauge/internal/app"
	"github.com/menta2k/thread-gauge/internal/config"
	"github.com/menta2k/thread-gauge/internal/logger"
	"github.com/menta2k/thread-gauge/pkg/processing"
	"github.com/menta2k/thread-gauge/pkg/types"
)

func main() {
	var in, configPath, backend, url, model, outDir, remote, level string
	var internal, testVision bool
	var timeout time.Duration

	flag.StringVar(&in, "in", "", "input photo path or URL (jpg/png/webp)")
	flag.BoolVar(&internal, "internal", false, "the thread is internal (female)")
	flag.StringVar(&configPath, "config", config.GetConfigPath(), "configuration file (.json or .toml)")
	flag.StringVar(&backend, "backend", "", "detector backend: ollama|llamacpp|inference|yolo (overrides config)")
	flag.StringVar(&url, "url", "", "detector URL (overrides config)")
	flag.StringVar(&model, "model", "", "vision model name or ONNX model path (overrides config)")
	flag.StringVar(&outDir, "out", "", "directory for the annotated image (overrides config, \"-\" disables)")
	flag.StringVar(&remote, "remote", "", "analyze on a running server, e.g. http://localhost:8000")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "analysis timeout")
	flag.StringVar(&level, "log", "", "log level: debug|info|warning|error")
	flag.BoolVar(&testVision, "test-vision", false, "ask the vision model to describe the photo instead of measuring it")
	flag.Parse()

	if in == "" {
		log.Fatalf("usage: %s -in photo.jpg|URL [-internal] [-backend ollama|llamacpp|inference|yolo] [-url detector_url] [-out debugdir] [-remote server_url] [-test-vision]", filepath.Base(os.Args[0]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := processing.NewProcessor().ReadSmart(in)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", in, err)
	}

	orientation := types.External
	if internal {
		orientation = types.Internal
	}

	if remote != "" {
		if err := analyzeRemote(ctx, remote, filepath.Base(in), data, internal); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if backend != "" {
		cfg.Detector.Backend = backend
	}
	if url != "" {
		cfg.Detector.URL = url
	}
	if model != "" {
		if cfg.Detector.Backend == config.BackendYOLO {
			cfg.Detector.ModelPath = model
		} else {
			cfg.Detector.Model = model
		}
	}
	switch outDir {
	case "":
	case "-":
		cfg.Output.DebugDir = ""
	default:
		cfg.Output.DebugDir = outDir
	}
	if level != "" {
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg := logger.New(os.Stderr, logger.ParseLevel(cfg.Log.Level))
	orch, b, err := app.NewOrchestrator(cfg, lg)
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()

	if testVision {
		answer, err := describe(ctx, b, data)
		if err != nil {
			log.Fatalf("Vision test failed: %v", err)
		}
		fmt.Println(answer)
		return
	}

	report, err := orch.Analyze(ctx, data, orientation)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	js, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(js))
	if !report.OK() {
		b.Close()
		os.Exit(1)
	}
}

// describe checks that the configured model can see the photo at all
func describe(ctx context.Context, b *app.Backend, data []byte) (string, error) {
	if b.DescribeImage == nil {
		return "", fmt.Errorf("the %s backend cannot describe images", b.Name)
	}
	img, err := processing.NewProcessor().DecodeImage(data)
	if err != nil {
		return "", err
	}
	return b.DescribeImage(ctx, img)
}

// analyzeRemote posts the photo to a thread-gauge server and prints its answer
func analyzeRemote(ctx context.Context, server, name string, data []byte, internal bool) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := writer.WriteField("internal", strconv.FormatBool(internal)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(server, "/")+"/api/analyze", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if lang := os.Getenv("LANG"); lang != "" {
		req.Header.Set("Accept-Language", strings.SplitN(lang, ".", 2)[0])
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", server, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Println(string(raw))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server answered %s", resp.Status)
	}
	return nil
}
