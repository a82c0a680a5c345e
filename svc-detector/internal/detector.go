package internal

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	metric "github.com/etesami/manual-lock-tracker/pkg/metric"
	pb "github.com/etesami/manual-lock-tracker/pkg/protoc"
	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

// FrameDetector detects objects in an encoded frame. *dnn.Detector implements it.
type FrameDetector interface {
	DetectEncoded(payload []byte) ([]utils.BoundingBox, error)
}

type Server struct {
	pb.UnimplementedDetectorServer
	Detector FrameDetector
	Metric   *metric.Metric
}

// Detect handles a JPEG frame from the tracker and replies with its boxes.
func (s *Server) Detect(ctx context.Context, recData *wrapperspb.BytesValue) (*structpb.Struct, error) {
	recTime := time.Now()

	frameMeta, err := pb.FrameMetadataFromContext(ctx)
	if err != nil {
		log.Printf("Received frame without metadata: %v", err)
	}
	if len(recData.GetValue()) == 0 {
		return nil, status.Errorf(codes.InvalidArgument, "empty frame [%d] from [%s]", frameMeta.FrameId, frameMeta.SourceId)
	}

	boxes, err := s.Detector.DetectEncoded(recData.GetValue())
	if err != nil {
		log.Printf("Frame [%d] from [%s]: detection failed: %v", frameMeta.FrameId, frameMeta.SourceId, err)
		return nil, status.Errorf(codes.Internal, "detection failed: %v", err)
	}
	s.Metric.AddProcessingTime("detect", float64(time.Since(recTime).Microseconds())/1000.0)
	log.Printf("Frame [%d] from [%s]: detected %d objects", frameMeta.FrameId, frameMeta.SourceId, len(boxes))

	raw := make([][4]float64, 0, len(boxes))
	for _, b := range boxes {
		raw = append(raw, [4]float64{b.X1, b.Y1, b.X2, b.Y2})
	}
	reply, err := pb.NewDetections(raw, pb.Ack{
		Status:            "ok",
		ReceivedTimestamp: recTime,
		AckSentTimestamp:  time.Now(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build reply: %v", err)
	}
	return reply, nil
}
