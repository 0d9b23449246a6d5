package yolo

import (
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// modelSession is one ready-to-run ONNX session with its pre-allocated
// input and output tensors. A session's tensors are single-flight, so
// sessions are handed out through a pool.
type modelSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	outputs []*ort.Tensor[float32]
}

func newModelSession(modelPath string, task Task) (*modelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(runtime.NumCPU())

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, channels, InputSize, InputSize))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}

	var outputShapes []ort.Shape
	var outputNames []string
	switch task {
	case TaskSegment:
		outputShapes = []ort.Shape{
			ort.NewShape(1, segmentChannels, numAnchors),
			ort.NewShape(1, numProtos, protoSize, protoSize),
		}
		outputNames = []string{"output0", "output1"}
	default:
		outputShapes = []ort.Shape{ort.NewShape(1, detectChannels, numAnchors)}
		outputNames = []string{"output0"}
	}

	outputs := make([]*ort.Tensor[float32], 0, len(outputShapes))
	arbitrary := make([]ort.ArbitraryTensor, 0, len(outputShapes))
	destroyAll := func() {
		input.Destroy()
		for _, t := range outputs {
			t.Destroy()
		}
	}
	for _, shape := range outputShapes {
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			destroyAll()
			return nil, errors.Wrap(err, "create output tensor")
		}
		outputs = append(outputs, t)
		arbitrary = append(arbitrary, t)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		outputNames,
		[]ort.ArbitraryTensor{input},
		arbitrary,
		options,
	)
	if err != nil {
		destroyAll()
		return nil, errors.Wrapf(err, "create session for %s", modelPath)
	}

	return &modelSession{
		session: session,
		input:   input,
		outputs: outputs,
	}, nil
}

func (m *modelSession) Destroy() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	for _, t := range m.outputs {
		t.Destroy()
	}
}
