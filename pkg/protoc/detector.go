// Package pb holds the gRPC contract between the tracker and the detector
// service. The messages are protobuf well-known types: the request is the
// JPEG-encoded frame in a BytesValue, the reply a Struct carrying the boxes
// and the ack timestamps.
package pb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	api "github.com/etesami/manual-lock-tracker/api"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	Detector_Detect_FullMethodName = "/detection.Detector/Detect"

	frameMetadataKey = "frame-metadata"
)

// Ack mirrors the acknowledgement fields of a detection reply.
type Ack struct {
	Status            string
	ReceivedTimestamp time.Time
	AckSentTimestamp  time.Time
}

// DetectorClient is the client API for the Detector service.
type DetectorClient interface {
	Detect(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type detectorClient struct {
	cc grpc.ClientConnInterface
}

func NewDetectorClient(cc grpc.ClientConnInterface) DetectorClient {
	return &detectorClient{cc}
}

func (c *detectorClient) Detect(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, Detector_Detect_FullMethodName, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DetectorServer is the server API for the Detector service.
type DetectorServer interface {
	Detect(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
}

// UnimplementedDetectorServer can be embedded to have forward compatible implementations.
type UnimplementedDetectorServer struct{}

func (UnimplementedDetectorServer) Detect(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Detect not implemented")
}

func RegisterDetectorServer(s grpc.ServiceRegistrar, srv DetectorServer) {
	s.RegisterService(&Detector_ServiceDesc, srv)
}

func _Detector_Detect_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectorServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Detector_Detect_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DetectorServer).Detect(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Detector_ServiceDesc is the grpc.ServiceDesc for the Detector service.
var Detector_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "detection.Detector",
	HandlerType: (*DetectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Detect",
			Handler:    _Detector_Detect_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "detector.proto",
}

// WithFrameMetadata attaches the frame metadata to an outgoing call.
func WithFrameMetadata(ctx context.Context, f api.FrameMetadata) (context.Context, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return ctx, fmt.Errorf("error marshalling metadata: %v", err)
	}
	return metadata.AppendToOutgoingContext(ctx, frameMetadataKey, string(b)), nil
}

// FrameMetadataFromContext reads the frame metadata of an incoming call.
func FrameMetadataFromContext(ctx context.Context) (api.FrameMetadata, error) {
	var f api.FrameMetadata
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return f, fmt.Errorf("no metadata in request")
	}
	vals := md.Get(frameMetadataKey)
	if len(vals) == 0 {
		return f, fmt.Errorf("no %s in request metadata", frameMetadataKey)
	}
	if err := json.Unmarshal([]byte(vals[0]), &f); err != nil {
		return f, fmt.Errorf("error unmarshalling metadata: %v", err)
	}
	return f, nil
}

// NewDetections builds a Detect reply. Boxes are (x1, y1, x2, y2) in the pixel
// space of the frame that was sent, in detector output order.
func NewDetections(boxes [][4]float64, ack Ack) (*structpb.Struct, error) {
	list := make([]interface{}, 0, len(boxes))
	for _, b := range boxes {
		list = append(list, []interface{}{b[0], b[1], b[2], b[3]})
	}
	return structpb.NewStruct(map[string]interface{}{
		"status":             ack.Status,
		"received_timestamp": ack.ReceivedTimestamp.Format(time.RFC3339Nano),
		"ack_sent_timestamp": ack.AckSentTimestamp.Format(time.RFC3339Nano),
		"boxes":              list,
	})
}

// ParseDetections is the inverse of NewDetections.
func ParseDetections(s *structpb.Struct) ([][4]float64, Ack, error) {
	var ack Ack
	if s == nil {
		return nil, ack, fmt.Errorf("empty reply")
	}
	fields := s.GetFields()
	ack.Status = fields["status"].GetStringValue()

	var err error
	if ack.ReceivedTimestamp, err = time.Parse(time.RFC3339Nano, fields["received_timestamp"].GetStringValue()); err != nil {
		return nil, ack, fmt.Errorf("invalid received_timestamp: %v", err)
	}
	if ack.AckSentTimestamp, err = time.Parse(time.RFC3339Nano, fields["ack_sent_timestamp"].GetStringValue()); err != nil {
		return nil, ack, fmt.Errorf("invalid ack_sent_timestamp: %v", err)
	}

	values := fields["boxes"].GetListValue().GetValues()
	boxes := make([][4]float64, 0, len(values))
	for i, v := range values {
		coords := v.GetListValue().GetValues()
		if len(coords) != 4 {
			return nil, ack, fmt.Errorf("box %d has %d coordinates", i, len(coords))
		}
		boxes = append(boxes, [4]float64{
			coords[0].GetNumberValue(),
			coords[1].GetNumberValue(),
			coords[2].GetNumberValue(),
			coords[3].GetNumberValue(),
		})
	}
	return boxes, ack, nil
}
