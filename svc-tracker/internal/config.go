package internal

import (
	"fmt"
	"strconv"
	"strings"

	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

const (
	DetectorModeLocal  = "local"
	DetectorModeRemote = "remote"

	DefaultModel      = "visDrone.onnx"
	DefaultOutputPath = "output_manual_lock.mp4"
)

// Config holds the tracker service configuration, read from the environment.
type Config struct {
	// VideoSource is a device index, a file path or a stream url. Empty means
	// ask the operator.
	VideoSource string
	// BoxSize is a preset choice ("1", "2", "3"). Empty means ask the operator.
	BoxSize string

	Model       string
	ImageWidth  int
	ImageHeight int

	DetectorMode       string
	RemoteDetectorHost string
	RemoteDetectorPort string

	// OutputPath is the annotated output video; empty disables it.
	OutputPath string
	ShowWindow bool
	WaitStart  bool

	MoveStep int
	Params   Params

	JournalPath string
	MetricAddr  string
	MetricPort  string

	ProcTimeBuckets []float64
	RttTimeBuckets  []float64

	LogFrames bool
}

// LoadConfig builds a Config from getenv, usually os.Getenv.
func LoadConfig(getenv func(string) string) (*Config, error) {
	c := &Config{
		VideoSource:        getenv("VIDEO_SOURCE"),
		BoxSize:            getenv("TARGET_BOX_SIZE"),
		Model:              orDefault(getenv("YOLO_MODEL"), DefaultModel),
		DetectorMode:       orDefault(strings.ToLower(getenv("DETECTOR_MODE")), DetectorModeLocal),
		RemoteDetectorHost: getenv("REMOTE_DETECTOR_HOST"),
		RemoteDetectorPort: getenv("REMOTE_DETECTOR_PORT"),
		OutputPath:         orDefault(getenv("OUTPUT_PATH"), DefaultOutputPath),
		ShowWindow:         getenv("SHOW_WINDOW") != "false",
		WaitStart:          getenv("WAIT_START") != "false",
		JournalPath:        getenv("JOURNAL_PATH"),
		MetricAddr:         getenv("METRIC_ADDR"),
		MetricPort:         getenv("METRIC_PORT"),
		ProcTimeBuckets:    utils.ParseBuckets(getenv("PROC_TIME_BUCKETS")),
		RttTimeBuckets:     utils.ParseBuckets(getenv("RTT_TIME_BUCKETS")),
		LogFrames:          getenv("LOG_FRAMES") == "true",
		Params:             DefaultParams(),
	}
	if c.OutputPath == "none" {
		c.OutputPath = ""
	}

	var err error
	if c.ImageWidth, err = intOrDefault(getenv, "IMAGE_WIDTH", 640); err != nil {
		return nil, err
	}
	if c.ImageHeight, err = intOrDefault(getenv, "IMAGE_HEIGHT", 640); err != nil {
		return nil, err
	}
	if c.MoveStep, err = intOrDefault(getenv, "MOVE_STEP", DefaultMoveStep); err != nil {
		return nil, err
	}
	if c.Params.MaxLostFrames, err = intOrDefault(getenv, "MAX_LOST_FRAMES", DefaultMaxLostFrames); err != nil {
		return nil, err
	}
	if c.Params.HoldThreshold, err = floatOrDefault(getenv, "HOLD_IOU_THRESHOLD", HoldIoUThreshold); err != nil {
		return nil, err
	}
	if c.Params.AcquireThreshold, err = floatOrDefault(getenv, "ACQUIRE_IOU_THRESHOLD", AcquireIoUThreshold); err != nil {
		return nil, err
	}

	switch c.DetectorMode {
	case DetectorModeLocal:
	case DetectorModeRemote:
		if c.RemoteDetectorHost == "" || c.RemoteDetectorPort == "" {
			return nil, fmt.Errorf("REMOTE_DETECTOR_HOST or REMOTE_DETECTOR_PORT environment variable is not set")
		}
	default:
		return nil, fmt.Errorf("unknown DETECTOR_MODE %q", c.DetectorMode)
	}
	if c.MoveStep <= 0 {
		return nil, fmt.Errorf("MOVE_STEP must be positive, got %d", c.MoveStep)
	}
	if c.Params.MaxLostFrames < 0 {
		return nil, fmt.Errorf("MAX_LOST_FRAMES must not be negative, got %d", c.Params.MaxLostFrames)
	}
	return c, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOrDefault(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", key, v, err)
	}
	return i, nil
}

func floatOrDefault(getenv func(string) string, key string, def float64) (float64, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", key, v, err)
	}
	return f, nil
}
