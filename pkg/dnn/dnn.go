// Package dnn runs a YOLOv8 ONNX detector through the OpenCV DNN module and
// picks the compute backend once, at load time.
package dnn

import (
	"image"
	"log"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

var (
	ratio    = 0.003921568627
	mean     = gocv.NewScalar(0, 0, 0, 0)
	swapRGB  = true
	padValue = gocv.NewScalar(144.0, 0, 0, 0)
)

// Config of a detector.
type Config struct {
	Model          string
	InputWidth     int
	InputHeight    int
	ScoreThreshold float32
	NMSThreshold   float32
	// Backend is "auto" (probe CUDA, fall back to CPU), "cuda" or "cpu".
	Backend string
}

func DefaultConfig(model string) Config {
	return Config{
		Model:          model,
		InputWidth:     640,
		InputHeight:    640,
		ScoreThreshold: 0.5,
		NMSThreshold:   0.4,
		Backend:        "auto",
	}
}

// Detector wraps a loaded network. Detect is safe for concurrent use.
type Detector struct {
	mu          sync.Mutex
	cfg         Config
	net         gocv.Net
	outputNames []string
	backend     Backend
}

// New loads the model. With Backend "auto" the CUDA backend is tried only when
// the host looks CUDA capable and a test inference succeeds; otherwise the
// default CPU backend is used and the fallback is logged, not returned.
func New(cfg Config) (*Detector, error) {
	info, err := os.Stat(cfg.Model)
	if err != nil {
		return nil, errors.Wrapf(err, "model file %s", cfg.Model)
	}
	if info.Size() == 0 {
		return nil, errors.Errorf("model file %s is empty", cfg.Model)
	}

	switch cfg.Backend {
	case "cpu":
		return load(cfg, BackendCPU)
	case "cuda":
		return load(cfg, BackendCUDA)
	}

	if HasGPUCapability() {
		d, err := load(cfg, BackendCUDA)
		if err == nil {
			if err = d.testInference(); err == nil {
				log.Printf("Using GPU for inference.")
				return d, nil
			}
			d.Close()
		}
		log.Printf("CUDA backend unusable (%v)", err)
	}
	log.Printf("GPU not available, using CPU.")
	return load(cfg, BackendCPU)
}

func load(cfg Config, backend Backend) (*Detector, error) {
	net := gocv.ReadNetFromONNX(cfg.Model)
	if net.Empty() {
		return nil, errors.Errorf("error reading network model from %s", cfg.Model)
	}
	if err := net.SetPreferableBackend(backend.NetBackend); err != nil {
		net.Close()
		return nil, errors.Wrapf(err, "set %s backend", backend.Name)
	}
	if err := net.SetPreferableTarget(backend.NetTarget); err != nil {
		net.Close()
		return nil, errors.Wrapf(err, "set %s target", backend.Name)
	}

	outputNames := getOutputNames(&net)
	if len(outputNames) == 0 {
		net.Close()
		return nil, errors.New("error reading output layer names")
	}

	return &Detector{
		cfg:         cfg,
		net:         net,
		outputNames: outputNames,
		backend:     backend,
	}, nil
}

func (d *Detector) Backend() Backend {
	return d.backend
}

// testInference runs the network once on a blank frame.
func (d *Detector) testInference() error {
	frame := gocv.NewMatWithSize(d.cfg.InputHeight, d.cfg.InputWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()
	_, err := d.Detect(frame)
	return err
}

// Detect returns the boxes that survive the score threshold and NMS, in
// NMS output order, scaled back to the pixel space of img.
func (d *Detector) Detect(img gocv.Mat) ([]utils.BoundingBox, error) {
	if img.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	params := gocv.NewImageToBlobParams(ratio, image.Pt(d.cfg.InputWidth, d.cfg.InputHeight), mean, swapRGB, gocv.MatTypeCV32F, gocv.DataLayoutNCHW, gocv.PaddingModeLetterbox, padValue)
	blob := gocv.BlobFromImageWithParams(img, params)
	defer blob.Close()

	// feed the blob into the detector
	d.net.SetInput(blob, "")

	// run a forward pass thru the network
	probs := d.net.ForwardLayers(d.outputNames)
	defer func() {
		for _, prob := range probs {
			prob.Close()
		}
	}()
	if len(probs) == 0 {
		return nil, errors.New("network produced no output")
	}

	rects, confidences, err := performDetection(probs, d.cfg.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	if len(rects) == 0 {
		return nil, nil
	}

	iboxes := params.BlobRectsToImageRects(rects, image.Pt(img.Cols(), img.Rows()))
	indices := gocv.NMSBoxes(iboxes, confidences, d.cfg.ScoreThreshold, d.cfg.NMSThreshold)

	boxes := make([]utils.BoundingBox, 0, len(indices))
	for _, idx := range indices {
		r := iboxes[idx]
		boxes = append(boxes, utils.BoundingBox{
			X1: float64(r.Min.X),
			Y1: float64(r.Min.Y),
			X2: float64(r.Max.X),
			Y2: float64(r.Max.Y),
		})
	}
	return boxes, nil
}

// DetectEncoded decodes an encoded image (JPEG, PNG) and runs Detect on it.
func (d *Detector) DetectEncoded(payload []byte) ([]utils.BoundingBox, error) {
	img, err := gocv.IMDecode(payload, gocv.IMReadColor)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	defer img.Close()
	return d.Detect(img)
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func getOutputNames(net *gocv.Net) []string {
	var outputLayers []string
	for _, i := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(i)
		layerName := layer.GetName()
		if layerName != "_input" {
			outputLayers = append(outputLayers, layerName)
		}
	}

	return outputLayers
}

// performDetection decodes YOLOv8 output rows [cx, cy, w, h, class scores...]
// into blob-space rectangles.
func performDetection(outs []gocv.Mat, scoreThreshold float32) ([]image.Rectangle, []float32, error) {
	var confidences []float32
	var boxes []image.Rectangle

	// needed for yolov8
	if err := gocv.TransposeND(outs[0], []int{0, 2, 1}, &outs[0]); err != nil {
		return nil, nil, errors.Wrap(err, "transpose output")
	}

	for _, out := range outs {
		out = out.Reshape(1, out.Size()[1])

		for i := 0; i < out.Rows(); i++ {
			cols := out.Cols()
			row := out.RowRange(i, i+1)
			scores := row.ColRange(4, cols)
			_, confidence, _, _ := gocv.MinMaxLoc(scores)
			scores.Close()
			row.Close()

			if confidence > scoreThreshold {
				centerX := out.GetFloatAt(i, 0)
				centerY := out.GetFloatAt(i, 1)
				width := out.GetFloatAt(i, 2)
				height := out.GetFloatAt(i, 3)

				left := centerX - width/2
				top := centerY - height/2
				right := centerX + width/2
				bottom := centerY + height/2
				confidences = append(confidences, confidence)

				boxes = append(boxes, image.Rect(int(left), int(top), int(right), int(bottom)))
			}
		}
		out.Close()
	}

	return boxes, confidences, nil
}
