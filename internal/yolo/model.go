package yolo

import (
	"context"
	"image"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Task selects which graph a Model runs and how its output is decoded.
type Task string

const (
	TaskDetect  Task = "detect"
	TaskSegment Task = "segment"
)

// Defaults match what the YOLO exports apply when run through their own
// tooling.
const (
	DefaultConfidenceThreshold float32 = 0.25
	DefaultIoUThreshold        float32 = 0.45
)

// Options tune how a Model is materialized.
type Options struct {
	// PoolSize is the number of concurrent sessions to build for the
	// checkpoint. Zero means DefaultPoolSize.
	PoolSize int
	// ConfidenceThreshold discards predictions scoring below it.
	ConfidenceThreshold float32
	// IoUThreshold controls per-class overlap suppression.
	IoUThreshold float32
	Logger       *zap.SugaredLogger
}

// Model is a loaded, ready-to-run handle on one checkpoint. Immutable
// after LoadModel; safe for concurrent Infer calls.
type Model struct {
	Name       string
	Checkpoint string
	Date       string
	Task       Task
	Names      []string

	confTh float32
	iouTh  float32
	pool   *sessionPool
	logger *zap.SugaredLogger
}

// LoadModel builds a Model from the checkpoint at path, materializing its
// session pool. The checkpoint date is the artifact's modification time.
func LoadModel(name, path string, task Task, opts Options) (*Model, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat checkpoint %s", path)
	}

	pool, err := newSessionPool(opts.PoolSize, func() (*modelSession, error) {
		return newModelSession(path, task)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	confTh := opts.ConfidenceThreshold
	if confTh <= 0 {
		confTh = DefaultConfidenceThreshold
	}
	iouTh := opts.IoUThreshold
	if iouTh <= 0 {
		iouTh = DefaultIoUThreshold
	}

	return &Model{
		Name:       name,
		Checkpoint: path,
		Date:       fi.ModTime().UTC().Format(time.RFC3339),
		Task:       task,
		Names:      cocoNames,
		confTh:     confTh,
		iouTh:      iouTh,
		pool:       pool,
		logger:     logger,
	}, nil
}

// Close releases every pooled session.
func (m *Model) Close() {
	if m.pool != nil {
		m.pool.Destroy()
	}
}

// PoolStats reports session-pool activity for the model.
func (m *Model) PoolStats() PoolStats {
	if m.pool == nil {
		return PoolStats{}
	}
	return m.pool.Stats()
}

// Infer runs the model graph on img and decodes the task's predictions
// into source-image coordinates. The detect task returns boxes only; the
// segment task additionally attaches a binary mask per prediction.
func (m *Model) Infer(ctx context.Context, img image.Image) ([]Detection, error) {
	session, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer m.pool.Release(session)

	prepStart := time.Now()
	lb := prepareInput(img, session.input.GetData())
	prepTook := time.Since(prepStart)

	inferStart := time.Now()
	if err := session.session.Run(); err != nil {
		return nil, errors.Wrapf(err, "run %s graph", m.Task)
	}
	inferTook := time.Since(inferStart)

	postStart := time.Now()
	var dets []Detection
	switch m.Task {
	case TaskSegment:
		dets = decodeSegmentation(
			session.outputs[0].GetData(),
			session.outputs[1].GetData(),
			lb, m.confTh, m.iouTh,
		)
	default:
		dets = decodeDetections(session.outputs[0].GetData(), lb, m.confTh, m.iouTh)
	}

	m.logger.Debugw("inference timings",
		"model", m.Name,
		"preprocess", prepTook,
		"inference", inferTook,
		"postprocess", time.Since(postStart),
		"predictions", len(dets),
	)
	return dets, nil
}
