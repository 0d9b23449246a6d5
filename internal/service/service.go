// Package service exposes detection and segmentation inference over two
// pre-trained YOLO checkpoints as request/response operations.
package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"os"
	"path/filepath"

	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/skalene/yolo-inference/internal/config"
	"github.com/skalene/yolo-inference/internal/yolo"
)

// The two checkpoint filenames expected under
// <data_dir>/<model_binary_dir>. Exact match, no fallback search.
const (
	detectionModelFile    = "yolo26n.pt"
	segmentationModelFile = "yolo26n-seg.pt"
)

const webpQuality = 90

// InferenceService owns the two model handles and serves the inference
// operations. Handles are nil until Load succeeds and read-only after.
type InferenceService struct {
	cfg    config.Config
	logger *zap.SugaredLogger

	detection    *yolo.Model
	segmentation *yolo.Model
}

func New(cfg config.Config, logger *zap.SugaredLogger) *InferenceService {
	return &InferenceService{cfg: cfg, logger: logger}
}

// InferenceInput is the request body both inference operations take.
type InferenceInput struct {
	ImageBase64 string `json:"image_base64"`
}

// Prediction is one detected object in source-image pixel coordinates.
type Prediction struct {
	BBox       [4]float32 `json:"bbox"`
	Confidence float32    `json:"confidence"`
	Label      string     `json:"label"`
}

type DetectResponse struct {
	Predictions []Prediction `json:"predictions"`
}

type SegmentResponse struct {
	SegmentedImage string `json:"segmented_image"`
	Format         string `json:"format"`
}

type ModelInfo struct {
	Name       string `json:"name"`
	Checkpoint string `json:"checkpoint"`
	Date       string `json:"date"`
	Task       string `json:"task"`
}

type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// Load resolves both checkpoint paths, verifies they exist, and builds
// the two model handles. The first missing artifact aborts the load.
func (s *InferenceService) Load() error {
	base := filepath.Join(s.cfg.DataDir, s.cfg.ModelBinaryDir)
	detectionPath := filepath.Join(base, detectionModelFile)
	segmentationPath := filepath.Join(base, segmentationModelFile)

	for _, path := range []string{detectionPath, segmentationPath} {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return &NotFoundError{Path: path}
			}
			return errors.Wrapf(err, "stat %s", path)
		}
	}

	opts := yolo.Options{
		PoolSize:            s.cfg.PoolSize,
		ConfidenceThreshold: s.cfg.ConfidenceThreshold,
		IoUThreshold:        s.cfg.IoUThreshold,
		Logger:              s.logger,
	}

	s.logger.Infow("loading detection model", "path", detectionPath)
	detection, err := yolo.LoadModel("yolo26n", detectionPath, yolo.TaskDetect, opts)
	if err != nil {
		return err
	}

	s.logger.Infow("loading segmentation model", "path", segmentationPath)
	segmentation, err := yolo.LoadModel("yolo26n-seg", segmentationPath, yolo.TaskSegment, opts)
	if err != nil {
		detection.Close()
		return err
	}

	s.detection = detection
	s.segmentation = segmentation
	s.logger.Infow("models loaded")
	return nil
}

// Close releases both model handles.
func (s *InferenceService) Close() {
	if s.detection != nil {
		s.detection.Close()
	}
	if s.segmentation != nil {
		s.segmentation.Close()
	}
}

func (s *InferenceService) loaded() bool {
	return s.detection != nil && s.segmentation != nil
}

// decodeImage turns the request's base64 payload into an in-memory
// raster.
func (s *InferenceService) decodeImage(in InferenceInput) (image.Image, error) {
	if in.ImageBase64 == "" {
		return nil, &InvalidArgumentError{Field: "image_base64"}
	}

	raw, err := base64.StdEncoding.DecodeString(in.ImageBase64)
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return img, nil
}

// DetectImage runs the detection graph on the input image and returns
// bounding boxes, confidences, and labels. Zero detections is a valid
// empty response, not an error.
func (s *InferenceService) DetectImage(ctx context.Context, in InferenceInput) (*DetectResponse, error) {
	if !s.loaded() {
		return nil, &UninitializedModelError{}
	}

	img, err := s.decodeImage(in)
	if err != nil {
		return nil, err
	}

	dets, err := s.detection.Infer(ctx, img)
	if err != nil {
		return nil, err
	}

	predictions := make([]Prediction, 0, len(dets))
	for _, d := range dets {
		predictions = append(predictions, Prediction{
			BBox:       d.Box,
			Confidence: d.Confidence,
			Label:      s.detection.Names[d.Class],
		})
	}
	return &DetectResponse{Predictions: predictions}, nil
}

// SegmentImage runs the segmentation graph, renders the detected masks
// and boxes into an annotated copy of the input, and returns it as a
// base64 webp encoded straight from memory.
func (s *InferenceService) SegmentImage(ctx context.Context, in InferenceInput) (*SegmentResponse, error) {
	if !s.loaded() {
		return nil, &UninitializedModelError{}
	}

	img, err := s.decodeImage(in)
	if err != nil {
		return nil, err
	}

	dets, err := s.segmentation.Infer(ctx, img)
	if err != nil {
		return nil, err
	}

	overlay := yolo.RenderOverlay(img, dets, s.segmentation.Names)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, overlay, &webp.Options{Quality: webpQuality}); err != nil {
		return nil, errors.Wrap(err, "encode segmented image")
	}

	return &SegmentResponse{
		SegmentedImage: base64.StdEncoding.EncodeToString(buf.Bytes()),
		Format:         "webp",
	}, nil
}

// Models returns static metadata for both loaded handles.
func (s *InferenceService) Models() (*ModelsResponse, error) {
	if !s.loaded() {
		return nil, &UninitializedModelError{}
	}

	models := make([]ModelInfo, 0, 2)
	for _, m := range []*yolo.Model{s.detection, s.segmentation} {
		models = append(models, ModelInfo{
			Name:       m.Name,
			Checkpoint: m.Checkpoint,
			Date:       m.Date,
			Task:       string(m.Task),
		})
	}
	return &ModelsResponse{Models: models}, nil
}

// PoolStats reports per-model session-pool activity.
func (s *InferenceService) PoolStats() (map[string]yolo.PoolStats, error) {
	if !s.loaded() {
		return nil, &UninitializedModelError{}
	}
	return map[string]yolo.PoolStats{
		s.detection.Name:    s.detection.PoolStats(),
		s.segmentation.Name: s.segmentation.PoolStats(),
	}, nil
}
