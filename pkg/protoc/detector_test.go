package pb

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	api "github.com/etesami/manual-lock-tracker/api"
)

type echoDetector struct {
	UnimplementedDetectorServer
	gotMeta    api.FrameMetadata
	gotPayload []byte
}

func (e *echoDetector) Detect(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	meta, err := FrameMetadataFromContext(ctx)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	e.gotMeta = meta
	e.gotPayload = in.GetValue()
	now := time.Now()
	return NewDetections([][4]float64{{1, 2, 3, 4}, {10, 20, 110, 220}}, Ack{
		Status:            "ok",
		ReceivedTimestamp: now,
		AckSentTimestamp:  now,
	})
}

func dialBufconn(t *testing.T, srv DetectorServer) DetectorClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterDetectorServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewDetectorClient(conn)
}

func TestDetectionsRoundTrip(t *testing.T) {
	rec := time.Date(2025, 3, 4, 5, 6, 7, 8000, time.UTC)
	ack := Ack{Status: "ok", ReceivedTimestamp: rec, AckSentTimestamp: rec.Add(time.Millisecond)}
	boxes := [][4]float64{{0, 0, 10, 10}, {5.5, 6.5, 7.5, 8.5}}

	s, err := NewDetections(boxes, ack)
	require.NoError(t, err)

	gotBoxes, gotAck, err := ParseDetections(s)
	require.NoError(t, err)
	if diff := cmp.Diff(boxes, gotBoxes); diff != "" {
		t.Errorf("boxes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "ok", gotAck.Status)
	assert.True(t, rec.Equal(gotAck.ReceivedTimestamp))
	assert.True(t, ack.AckSentTimestamp.Equal(gotAck.AckSentTimestamp))
}

func TestParseDetectionsEmptyBoxes(t *testing.T) {
	s, err := NewDetections(nil, Ack{Status: "ok", ReceivedTimestamp: time.Now(), AckSentTimestamp: time.Now()})
	require.NoError(t, err)

	boxes, _, err := ParseDetections(s)
	require.NoError(t, err)
	assert.Empty(t, boxes)
}

func TestParseDetectionsRejectsMalformed(t *testing.T) {
	_, _, err := ParseDetections(nil)
	assert.Error(t, err)

	now := time.Now().Format(time.RFC3339Nano)
	s, err := structpb.NewStruct(map[string]interface{}{
		"status":             "ok",
		"received_timestamp": now,
		"ack_sent_timestamp": now,
		"boxes":              []interface{}{[]interface{}{1.0, 2.0, 3.0}},
	})
	require.NoError(t, err)
	_, _, err = ParseDetections(s)
	assert.ErrorContains(t, err, "3 coordinates")

	s, err = structpb.NewStruct(map[string]interface{}{
		"status":             "ok",
		"received_timestamp": "yesterday",
		"ack_sent_timestamp": now,
	})
	require.NoError(t, err)
	_, _, err = ParseDetections(s)
	assert.ErrorContains(t, err, "received_timestamp")
}

func TestDetectOverGrpc(t *testing.T) {
	srv := &echoDetector{}
	client := dialBufconn(t, srv)

	meta := api.FrameMetadata{
		SourceId:  "cam-0",
		SessionId: "s-1",
		FrameId:   42,
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	ctx, err := WithFrameMetadata(context.Background(), meta)
	require.NoError(t, err)

	reply, err := client.Detect(ctx, wrapperspb.Bytes([]byte{0xff, 0xd8, 0xff}))
	require.NoError(t, err)

	boxes, ack, err := ParseDetections(reply)
	require.NoError(t, err)
	assert.Equal(t, [][4]float64{{1, 2, 3, 4}, {10, 20, 110, 220}}, boxes)
	assert.Equal(t, "ok", ack.Status)

	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, srv.gotPayload)
	assert.Equal(t, meta.FrameId, srv.gotMeta.FrameId)
	assert.Equal(t, meta.SourceId, srv.gotMeta.SourceId)
	assert.Equal(t, meta.SessionId, srv.gotMeta.SessionId)
	assert.True(t, meta.Timestamp.Equal(srv.gotMeta.Timestamp))
}

func TestDetectWithoutMetadata(t *testing.T) {
	client := dialBufconn(t, &echoDetector{})

	_, err := client.Detect(context.Background(), wrapperspb.Bytes([]byte{1}))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestUnimplementedDetector(t *testing.T) {
	client := dialBufconn(t, UnimplementedDetectorServer{})

	_, err := client.Detect(context.Background(), wrapperspb.Bytes([]byte{1}))
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
