package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/skalene/yolo-inference/internal/yolo"
)

const defaultAddr = "127.0.0.1:8080"

// Config is the resolved service configuration.
type Config struct {
	// DataDir is the root of the deployed artifact tree.
	DataDir string
	// ModelBinaryDir is the checkpoint directory, relative to DataDir.
	ModelBinaryDir string

	Addr                string
	PoolSize            int
	ConfidenceThreshold float32
	IoUThreshold        float32

	// ORTLibraryPath points at the ONNX Runtime shared library. Empty
	// means the platform default library name.
	ORTLibraryPath string
}

// file mirrors the host runtime's load payload, plus the server and
// detection sections this service adds.
type file struct {
	DataDir string `json:"data_dir"`
	Config  struct {
		ModelMetadata struct {
			ModelBinaryDir string `json:"model_binary_dir"`
		} `json:"model_metadata"`
	} `json:"config"`
	Server struct {
		Addr     string `json:"addr"`
		PoolSize int    `json:"pool_size"`
	} `json:"server"`
	Detection struct {
		ConfidenceThreshold float32 `json:"confidence_threshold"`
		IoUThreshold        float32 `json:"iou_threshold"`
	} `json:"detection"`
}

// Load reads the JSON config at path and applies defaults and
// environment overrides (SERVER_ADDR, ONNXRUNTIME_LIB_PATH).
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}

	cfg := Config{
		DataDir:             f.DataDir,
		ModelBinaryDir:      f.Config.ModelMetadata.ModelBinaryDir,
		Addr:                f.Server.Addr,
		PoolSize:            f.Server.PoolSize,
		ConfidenceThreshold: f.Detection.ConfidenceThreshold,
		IoUThreshold:        f.Detection.IoUThreshold,
		ORTLibraryPath:      os.Getenv("ONNXRUNTIME_LIB_PATH"),
	}

	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = yolo.DefaultPoolSize
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = yolo.DefaultConfidenceThreshold
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = yolo.DefaultIoUThreshold
	}
	if cfg.DataDir == "" {
		return Config{}, errors.New("data_dir is required")
	}

	return cfg, nil
}
