package utils

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	api "github.com/etesami/manual-lock-tracker/api"
	pb "github.com/etesami/manual-lock-tracker/pkg/protoc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// CalculateRtt calculates the round-trip time (RTT) in milliseconds based on the
// four timestamps of a request/ack exchange. The remote processing time
// (msgRecTime -> ackSentTime) is excluded.
func CalculateRtt(msgSentTime, msgRecTime, ackSentTime, ackRecTime time.Time) (float64, error) {
	if msgSentTime.IsZero() || msgRecTime.IsZero() || ackSentTime.IsZero() || ackRecTime.IsZero() {
		return -1, fmt.Errorf("missing timestamps: (%v, %v, %v, %v)", msgSentTime, msgRecTime, ackSentTime, ackRecTime)
	}
	t1 := msgRecTime.Sub(msgSentTime)
	t2 := ackRecTime.Sub(ackSentTime)
	rtt := float64((t1 + t2).Microseconds()) / 1000.0
	return rtt, nil
}

// ParseBuckets parses a comma-separated string of bucket values into a slice of float64
func ParseBuckets(env string) []float64 {
	if env == "" {
		return nil
	}
	parts := strings.Split(env, ",")
	var buckets []float64
	for _, p := range parts {
		if f, err := strconv.ParseFloat(strings.TrimSpace(p), 64); err == nil {
			buckets = append(buckets, f)
		} else {
			log.Printf("Error parsing bucket value '%s': %v", p, err)
			return nil
		}
	}
	return buckets
}

// BoundingBox is an axis-aligned box in frame pixel space.
// The (X1, Y1) position is the top left corner,
// the (X2, Y2) position is the bottom right corner.
type BoundingBox struct {
	X1, Y1, X2, Y2 float64
}

// MakeBox returns the box with top left corner (x, y) and size w x h.
func MakeBox(x, y, w, h float64) BoundingBox {
	return BoundingBox{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

func (b BoundingBox) Width() float64 {
	return math.Max(0, b.X2-b.X1)
}

func (b BoundingBox) Height() float64 {
	return math.Max(0, b.Y2-b.Y1)
}

// Area is never negative; malformed boxes have area 0.
func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f, %.1f)", b.X1, b.Y1, b.X2, b.Y2)
}

// GetIoU calculates the Intersection over Union (IoU) of two bounding boxes.
// Returns exactly 0.0 when the boxes do not overlap, which also covers
// degenerate boxes and avoids a 0/0 division.
func GetIoU(bb1, bb2 BoundingBox) float64 {
	xLeft := math.Max(bb1.X1, bb2.X1)
	yTop := math.Max(bb1.Y1, bb2.Y1)
	xRight := math.Min(bb1.X2, bb2.X2)
	yBottom := math.Min(bb1.Y2, bb2.Y2)

	intersectionArea := math.Max(0, xRight-xLeft) * math.Max(0, yBottom-yTop)
	if intersectionArea == 0 {
		return 0.0
	}

	return intersectionArea / (bb1.Area() + bb2.Area() - intersectionArea)
}

// MonitorConnection keeps a detector client for targetSvc in clientRef,
// reconnecting whenever the service becomes unreachable. It returns when
// done is closed.
func MonitorConnection(targetSvc api.Service, clientRef *atomic.Value, interval time.Duration, done <-chan struct{}) {
	var conn *grpc.ClientConn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		if err := targetSvc.ServiceReachable(); err != nil {
			log.Printf("Target service [%s:%s] is not reachable: %v", targetSvc.Address, targetSvc.Port, err)
		} else if conn == nil || conn.GetState() == connectivity.Shutdown || conn.GetState() == connectivity.TransientFailure {
			if conn != nil {
				conn.Close()
			}
			newConn, err := grpc.NewClient(
				targetSvc.Address+":"+targetSvc.Port,
				grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				log.Println("Failed to connect:", err)
			} else {
				conn = newConn
				clientRef.Store(pb.NewDetectorClient(conn))
				log.Println("gRPC detector client connected and stored")
			}
		}

		select {
		case <-done:
			return
		case <-time.After(interval):
		}
	}
}
