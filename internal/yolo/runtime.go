package yolo

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// InitRuntime points the binding at the ONNX Runtime shared library and
// initializes the environment. Must be called once before any model is
// loaded. An empty libPath falls back to the platform's default library
// name, resolved from the loader's usual search path.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = defaultLibraryName()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initialize onnxruntime environment")
	}
	return nil
}

// CloseRuntime tears down the ONNX Runtime environment at process exit.
func CloseRuntime() error {
	return ort.DestroyEnvironment()
}

func defaultLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}
