// Package vision binds the tracker session to OpenCV: capture, display
// window, keyboard, output video and detectors.
package vision

import (
	"image"
	"log"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/etesami/manual-lock-tracker/svc-tracker/internal"
)

const (
	WindowName = "Tracker"
	// OutputCodec is the fourcc of the annotated output video.
	OutputCodec = "mp4v"

	defaultFPS = 30.0
)

// Capture is a VideoSource over gocv.VideoCapture. The returned frame is
// reused between reads and owned by the Capture.
type Capture struct {
	source  string
	capture *gocv.VideoCapture
	img     gocv.Mat
	width   int
	height  int
	fps     float64
}

// OpenCapture opens a device index ("0"), a video file or a stream url.
func OpenCapture(source string) (*Capture, error) {
	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, errors.Wrapf(err, "open video source %s", source)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("could not open video source %s", source)
	}

	c := &Capture{
		source:  source,
		capture: capture,
		img:     gocv.NewMat(),
		width:   int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:  int(capture.Get(gocv.VideoCaptureFrameHeight)),
		fps:     capture.Get(gocv.VideoCaptureFPS),
	}
	if c.fps <= 0 {
		c.fps = defaultFPS
	}
	log.Printf("Opened video source: %s [%dx%d @ %.1f fps]", source, c.width, c.height, c.fps)
	return c, nil
}

func (c *Capture) NextFrame() (gocv.Mat, bool) {
	if ok := c.capture.Read(&c.img); !ok || c.img.Empty() {
		return c.img, false
	}
	return c.img, true
}

func (c *Capture) Size() (int, int) {
	return c.width, c.height
}

func (c *Capture) FPS() float64 {
	return c.fps
}

func (c *Capture) Release() error {
	err := c.capture.Close()
	if cerr := c.img.Close(); err == nil {
		err = cerr
	}
	return err
}

// Display draws overlays and sends frames to an optional window and an
// optional output video file.
type Display struct {
	window *gocv.Window
	writer *gocv.VideoWriter
}

// NewDisplay opens the window when show is set and the output video when
// outputPath is not empty.
func NewDisplay(show bool, outputPath string, fps float64, width, height int) (*Display, error) {
	d := &Display{}
	if outputPath != "" {
		writer, err := gocv.VideoWriterFile(outputPath, OutputCodec, fps, width, height, true)
		if err != nil {
			return nil, errors.Wrapf(err, "open output video %s", outputPath)
		}
		d.writer = writer
		log.Printf("Writing annotated video to %s", outputPath)
	}
	if show {
		d.window = gocv.NewWindow(WindowName)
	}
	return d, nil
}

func (d *Display) Draw(frame gocv.Mat, o internal.Overlay) error {
	if frame.Empty() {
		return errors.New("empty frame")
	}
	rect := ToRect(o)
	gocv.Rectangle(&frame, rect, o.Color, 2)
	gocv.PutText(&frame, o.Label, image.Pt(rect.Min.X, rect.Min.Y-10), gocv.FontHersheySimplex, 0.6, o.Color, 2)
	return nil
}

func (d *Display) Present(frame gocv.Mat) error {
	if d.window != nil {
		d.window.IMShow(frame)
	}
	if d.writer != nil {
		return d.writer.Write(frame)
	}
	return nil
}

func (d *Display) Close() error {
	var err error
	if d.writer != nil {
		err = d.writer.Close()
	}
	if d.window != nil {
		if werr := d.window.Close(); err == nil {
			err = werr
		}
	}
	return err
}

// PollCommand waits at most one millisecond for a key on the display window.
// Without a window there is no keyboard and every poll is CommandNone.
func (d *Display) PollCommand() internal.Command {
	if d.window == nil {
		return internal.CommandNone
	}
	return internal.CommandForKey(d.window.WaitKey(1))
}

// ToRect converts an overlay box to integer pixel coordinates, truncating
// like the detector output.
func ToRect(o internal.Overlay) image.Rectangle {
	return image.Rect(int(o.Box.X1), int(o.Box.Y1), int(o.Box.X2), int(o.Box.Y2))
}
