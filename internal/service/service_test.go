package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skalene/yolo-inference/internal/config"
	"github.com/skalene/yolo-inference/internal/yolo"
)

func newTestService(cfg config.Config) *InferenceService {
	return New(cfg, zap.NewNop().Sugar())
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestLoadMissingDetectionModel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "models"), 0o755))

	svc := newTestService(config.Config{DataDir: dir, ModelBinaryDir: "models"})
	err := svc.Load()

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, filepath.Join(dir, "models", "yolo26n.pt"), nf.Path)
	assert.Contains(t, err.Error(), "yolo26n.pt")
}

func TestLoadMissingSegmentationModel(t *testing.T) {
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "models")
	require.NoError(t, os.Mkdir(modelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "yolo26n.pt"), []byte("x"), 0o600))

	svc := newTestService(config.Config{DataDir: dir, ModelBinaryDir: "models"})
	err := svc.Load()

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, filepath.Join(modelDir, "yolo26n-seg.pt"), nf.Path)
}

func TestDecodeImageMissingField(t *testing.T) {
	svc := newTestService(config.Config{})

	_, err := svc.decodeImage(InferenceInput{})

	var ia *InvalidArgumentError
	require.ErrorAs(t, err, &ia)
	assert.Equal(t, "image_base64", ia.Field)
}

func TestDecodeImageBadBase64(t *testing.T) {
	svc := newTestService(config.Config{})

	_, err := svc.decodeImage(InferenceInput{ImageBase64: "not base64!!"})

	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestDecodeImageNotAnImage(t *testing.T) {
	svc := newTestService(config.Config{})
	payload := base64.StdEncoding.EncodeToString([]byte("just some bytes"))

	_, err := svc.decodeImage(InferenceInput{ImageBase64: payload})

	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestDecodeImageDimensionsRoundTrip(t *testing.T) {
	svc := newTestService(config.Config{})

	img, err := svc.decodeImage(InferenceInput{ImageBase64: pngBase64(t, 12, 7)})
	require.NoError(t, err)

	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 7, img.Bounds().Dy())
}

func TestOperationsBeforeLoad(t *testing.T) {
	svc := newTestService(config.Config{})
	ctx := context.Background()
	in := InferenceInput{ImageBase64: pngBase64(t, 4, 4)}

	var um *UninitializedModelError

	_, err := svc.DetectImage(ctx, in)
	assert.ErrorAs(t, err, &um)

	_, err = svc.SegmentImage(ctx, in)
	assert.ErrorAs(t, err, &um)

	_, err = svc.Models()
	assert.ErrorAs(t, err, &um)

	_, err = svc.PoolStats()
	assert.ErrorAs(t, err, &um)
}

func TestModelsAfterLoad(t *testing.T) {
	svc := newTestService(config.Config{})
	svc.detection = &yolo.Model{
		Name:       "yolo26n",
		Checkpoint: "/data/models/yolo26n.pt",
		Date:       "2026-08-01T12:00:00Z",
		Task:       yolo.TaskDetect,
	}
	svc.segmentation = &yolo.Model{
		Name:       "yolo26n-seg",
		Checkpoint: "/data/models/yolo26n-seg.pt",
		Date:       "2026-08-01T12:00:00Z",
		Task:       yolo.TaskSegment,
	}

	resp, err := svc.Models()
	require.NoError(t, err)
	require.Len(t, resp.Models, 2)

	assert.Equal(t, "yolo26n", resp.Models[0].Name)
	assert.Equal(t, "detect", resp.Models[0].Task)
	assert.Equal(t, "yolo26n-seg", resp.Models[1].Name)
	assert.Equal(t, "segment", resp.Models[1].Task)
	assert.Equal(t, "/data/models/yolo26n.pt", resp.Models[0].Checkpoint)
}

func TestPoolStatsAfterLoad(t *testing.T) {
	svc := newTestService(config.Config{})
	svc.detection = &yolo.Model{Name: "yolo26n"}
	svc.segmentation = &yolo.Model{Name: "yolo26n-seg"}

	stats, err := svc.PoolStats()
	require.NoError(t, err)
	assert.Len(t, stats, 2)
	assert.Contains(t, stats, "yolo26n")
	assert.Contains(t, stats, "yolo26n-seg")
}
