package internal

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/asticode/go-astits"
	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	pkgerrors "github.com/pkg/errors"

	metric "github.com/etesami/manual-lock-tracker/pkg/metric"
)

var errNoH264Track = errors.New("H264 track not found")

// NewDescription returns a session description with a single H264 video media.
func NewDescription() *description.Session {
	return &description.Session{
		Medias: []*description.Media{{
			Type: description.MediaTypeVideo,
			Formats: []format.Format{&format.H264{
				PayloadTyp:        96,
				PacketizationMode: 1,
			}},
		}},
	}
}

func findTrack(r *mpegts.Reader) (*mpegts.Track, error) {
	for _, track := range r.Tracks() {
		if _, ok := track.Codec.(*mpegts.CodecH264); ok {
			return track, nil
		}
	}
	return nil, errNoH264Track
}

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// Replayer paces the H264 access units of an MPEG-TS file onto an RTSP
// stream at their recorded DTS rate.
type Replayer struct {
	Stream *gortsplib.ServerStream
	// Loop rewinds the file when it ends instead of returning.
	Loop   bool
	Metric *metric.Metric

	auCounter int
}

// RouteFrames blocks until ctx is done, the file ends (without Loop) or a
// read or write fails.
func (rp *Replayer) RouteFrames(ctx context.Context, f io.ReadSeeker) error {
	media := rp.Stream.Desc.Medias[0]

	// setup H264 -> RTP encoder
	rtpEnc, err := media.Formats[0].(*format.H264).CreateEncoder()
	if err != nil {
		return pkgerrors.Wrap(err, "create RTP encoder")
	}

	randomStart, err := randUint32()
	if err != nil {
		return err
	}

	for {
		r := &mpegts.Reader{R: f}
		if err := r.Initialize(); err != nil {
			return pkgerrors.Wrap(err, "read MPEG-TS header")
		}

		track, err := findTrack(r)
		if err != nil {
			return err
		}

		timeDecoder := mpegts.TimeDecoder{}
		timeDecoder.Initialize()

		var firstDTS *int64
		var firstTime time.Time
		var lastRTPTime uint32

		r.OnDataH264(track, func(pts, dts int64, au [][]byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dts = timeDecoder.Decode(dts)
			pts = timeDecoder.Decode(pts)

			// sleep between access units
			if firstDTS != nil {
				timeDrift := time.Duration(dts-*firstDTS)*time.Second/90000 - time.Since(firstTime)
				if timeDrift > 0 {
					select {
					case <-time.After(timeDrift):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			} else {
				firstTime = time.Now()
				firstDTS = &dts
			}

			rp.auCounter++
			if rp.auCounter%500 == 0 {
				log.Printf("writing access unit [%d] with pts=%d dts=%d", rp.auCounter, pts, dts)
			}

			packets, err := rtpEnc.Encode(au)
			if err != nil {
				return err
			}

			// H264 clock rate is 90kHz in both MPEG-TS and RTSP
			lastRTPTime = uint32(int64(randomStart) + pts)
			size := 0
			for _, packet := range packets {
				packet.Timestamp = lastRTPTime
				size += len(packet.Payload)
			}

			for _, packet := range packets {
				if err := rp.Stream.WritePacketRTP(media, packet); err != nil {
					return err
				}
			}
			rp.Metric.AddSentDataBytes("rtsp", float64(size))
			return nil
		})

		for {
			err := r.Read()
			if err == nil {
				continue
			}
			if !errors.Is(err, astits.ErrNoMorePackets) {
				return err
			}
			if !rp.Loop {
				log.Printf("file has ended after [%d] access units", rp.auCounter)
				return nil
			}
			log.Printf("file has ended, rewinding")
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return pkgerrors.Wrap(err, "rewind")
			}
			// keep timestamps increasing across loops
			randomStart = lastRTPTime + 1
			break
		}
	}
}

// AccessUnits is the number of access units written so far.
func (rp *Replayer) AccessUnits() int {
	return rp.auCounter
}

// ServerHandler serves one shared stream to every client. Mutex is held by
// the owner while the stream is being set up.
type ServerHandler struct {
	Server *gortsplib.Server
	Stream *gortsplib.ServerStream
	Mutex  sync.RWMutex

	sessions int
	sessMu   sync.Mutex
}

func (sh *ServerHandler) OnConnOpen(ctx *gortsplib.ServerHandlerOnConnOpenCtx) {
	log.Printf("conn opened")
}

func (sh *ServerHandler) OnConnClose(ctx *gortsplib.ServerHandlerOnConnCloseCtx) {
	log.Printf("conn closed (%v)", ctx.Error)
}

func (sh *ServerHandler) OnSessionOpen(ctx *gortsplib.ServerHandlerOnSessionOpenCtx) {
	sh.sessMu.Lock()
	sh.sessions++
	n := sh.sessions
	sh.sessMu.Unlock()
	log.Printf("session opened, [%d] active", n)
}

func (sh *ServerHandler) OnSessionClose(ctx *gortsplib.ServerHandlerOnSessionCloseCtx) {
	sh.sessMu.Lock()
	sh.sessions--
	n := sh.sessions
	sh.sessMu.Unlock()
	log.Printf("session closed, [%d] active", n)
}

// Sessions is the number of open RTSP sessions.
func (sh *ServerHandler) Sessions() int {
	sh.sessMu.Lock()
	defer sh.sessMu.Unlock()
	return sh.sessions
}

func (sh *ServerHandler) OnDescribe(ctx *gortsplib.ServerHandlerOnDescribeCtx) (*base.Response, *gortsplib.ServerStream, error) {
	log.Printf("DESCRIBE request")
	return sh.streamResponse()
}

func (sh *ServerHandler) OnSetup(ctx *gortsplib.ServerHandlerOnSetupCtx) (*base.Response, *gortsplib.ServerStream, error) {
	log.Printf("SETUP request")
	return sh.streamResponse()
}

func (sh *ServerHandler) OnPlay(ctx *gortsplib.ServerHandlerOnPlayCtx) (*base.Response, error) {
	log.Printf("PLAY request")
	return &base.Response{
		StatusCode: base.StatusOK,
	}, nil
}

func (sh *ServerHandler) streamResponse() (*base.Response, *gortsplib.ServerStream, error) {
	sh.Mutex.RLock()
	defer sh.Mutex.RUnlock()

	if sh.Stream == nil {
		return &base.Response{
			StatusCode: base.StatusNotFound,
		}, nil, nil
	}
	return &base.Response{
		StatusCode: base.StatusOK,
	}, sh.Stream, nil
}
