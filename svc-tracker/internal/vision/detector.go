package vision

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"google.golang.org/protobuf/types/known/wrapperspb"

	api "github.com/etesami/manual-lock-tracker/api"
	"github.com/etesami/manual-lock-tracker/pkg/dnn"
	metric "github.com/etesami/manual-lock-tracker/pkg/metric"
	pb "github.com/etesami/manual-lock-tracker/pkg/protoc"
	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

// LocalDetector runs the DNN in process.
type LocalDetector struct {
	*dnn.Detector
}

func (d LocalDetector) Infer(frame gocv.Mat) ([]utils.BoundingBox, error) {
	return d.Detect(frame)
}

// RemoteDetector sends JPEG-encoded frames to svc-detector. The client is
// loaded from ClientRef on every call so a reconnect is picked up between
// frames.
type RemoteDetector struct {
	ClientRef *atomic.Value
	SourceId  string
	SessionId string
	Timeout   time.Duration
	Metric    *metric.Metric

	frameId int64
}

func (d *RemoteDetector) Infer(frame gocv.Mat) ([]utils.BoundingBox, error) {
	frameId := d.frameId
	d.frameId++

	clientIface := d.ClientRef.Load()
	if clientIface == nil {
		return nil, errors.New("detector client is not initialized")
	}
	client := clientIface.(pb.DetectorClient)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, errors.Wrap(err, "encode frame")
	}
	defer buf.Close()
	payload := buf.GetBytes()

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sentTime := time.Now()
	ctx, err = pb.WithFrameMetadata(ctx, api.FrameMetadata{
		SourceId:  d.SourceId,
		SessionId: d.SessionId,
		FrameId:   frameId,
		Timestamp: sentTime,
	})
	if err != nil {
		return nil, err
	}

	reply, err := client.Detect(ctx, wrapperspb.Bytes(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "detect frame %d", frameId)
	}
	recTime := time.Now()
	d.Metric.AddSentDataBytes("detector", float64(len(payload)))

	raw, ack, err := pb.ParseDetections(reply)
	if err != nil {
		return nil, errors.Wrapf(err, "parse reply for frame %d", frameId)
	}
	if rtt, err := utils.CalculateRtt(sentTime, ack.ReceivedTimestamp, ack.AckSentTimestamp, recTime); err == nil {
		d.Metric.AddRttTime("detector", rtt)
	}

	boxes := make([]utils.BoundingBox, 0, len(raw))
	for _, b := range raw {
		boxes = append(boxes, utils.BoundingBox{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]})
	}
	return boxes, nil
}
