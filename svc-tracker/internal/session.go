package internal

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	metric "github.com/etesami/manual-lock-tracker/pkg/metric"
	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

// VideoSource yields frames until the stream ends. A failed read is the end
// of the stream.
type VideoSource[F any] interface {
	NextFrame() (F, bool)
	Release() error
}

// Detector runs inference on a frame. Boxes are raw, in frame pixel space and
// in detector output order.
type Detector[F any] interface {
	Infer(frame F) ([]utils.BoundingBox, error)
}

// InputSource returns at most one command per tick without blocking for long.
type InputSource interface {
	PollCommand() Command
}

// Renderer draws the overlay on a frame and presents it (window, output file).
type Renderer[F any] interface {
	Draw(frame F, o Overlay) error
	Present(frame F) error
	Close() error
}

// EventRecorder persists track events. RecStore implements it.
type EventRecorder interface {
	RecordEvent(ev TrackEvent) error
}

// Session runs the frame loop. All fields except Source, Detector, Input,
// Renderer and Tracker are optional.
type Session[F any] struct {
	Id       string
	Source   VideoSource[F]
	Detector Detector[F]
	Input    InputSource
	Renderer Renderer[F]
	Tracker  *Tracker

	Recorder  EventRecorder
	Metric    *metric.Metric
	LogFrames bool

	stats sessionStats
}

func NewSession[F any](source VideoSource[F], detector Detector[F], input InputSource, renderer Renderer[F], tracker *Tracker) *Session[F] {
	return &Session[F]{
		Id:       uuid.New().String(),
		Source:   source,
		Detector: detector,
		Input:    input,
		Renderer: renderer,
		Tracker:  tracker,
	}
}

// Run processes frames in lockstep until a quit command, the end of the
// stream or ctx cancellation, then releases the source and the renderer.
// Cancellation is checked once per tick, never mid-frame.
func (s *Session[F]) Run(ctx context.Context) Summary {
	defer s.release()
	log.Printf("Session [%s] started", s.Id)

	var frameId int64
	for ; ; frameId++ {
		select {
		case <-ctx.Done():
			log.Printf("Session [%s] cancelled at frame [%d]", s.Id, frameId)
			return s.finish()
		default:
		}

		frame, ok := s.Source.NextFrame()
		if !ok {
			log.Printf("Session [%s] end of stream after [%d] frames", s.Id, frameId)
			return s.finish()
		}

		cmd := s.processFrame(frameId, frame)
		if cmd == CommandQuit {
			log.Printf("Session [%s] quit at frame [%d]", s.Id, frameId)
			return s.finish()
		}
	}
}

// processFrame does one full tick: detection, command, state update, render.
func (s *Session[F]) processFrame(frameId int64, frame F) Command {
	st := time.Now()

	detections, err := s.Detector.Infer(frame)
	if err != nil {
		log.Printf("Frame [%d]: detection failed, treating as empty: %v", frameId, err)
		detections = nil
	}
	s.Metric.AddProcessingTime("detect", elapsedMs(st))

	cmd := s.Input.PollCommand()
	step := s.Tracker.Step(detections, cmd)
	state := s.Tracker.State()
	s.observe(frameId, state, step, len(detections))

	if err := s.Renderer.Draw(frame, s.Tracker.Overlay()); err != nil {
		log.Printf("Frame [%d]: error drawing overlay: %v", frameId, err)
	}
	if err := s.Renderer.Present(frame); err != nil {
		log.Printf("Frame [%d]: error presenting frame: %v", frameId, err)
	}

	s.Metric.AddProcessingTime("frame", elapsedMs(st))
	return cmd
}

func (s *Session[F]) observe(frameId int64, state TrackState, step Step, numDetections int) {
	s.stats.observe(state, step)
	s.Metric.AddFrame(state.Mode.String(), numDetections, state.Misses)

	if s.LogFrames {
		log.Printf("Frame [%d]: [%d] detections, [%s] misses=%d, association=%s command=%s",
			frameId, numDetections, state.Mode, state.Misses, step.Transition, step.Command)
	}

	for _, tr := range []Transition{step.Transition, step.Command} {
		if tr == TransitionNone {
			continue
		}
		s.Metric.AddTransition(tr.String())

		var box utils.BoundingBox
		switch tr {
		case TransitionLocked:
			box = step.Match.Box
			log.Printf("Frame [%d]: locked on %s (IoU %.2f)", frameId, box, step.Match.IoU)
		case TransitionReleased:
			log.Printf("Frame [%d]: target lost for more than %d frames, released", frameId, s.Tracker.params.MaxLostFrames)
		case TransitionReset:
			box = s.Tracker.Targeter().Box()
			log.Printf("Frame [%d]: reset, targeter recentered at %s", frameId, box)
		default:
			// reacquisitions, misses and moves are not journaled
			continue
		}
		s.record(TrackEvent{
			SessionId: s.Id,
			FrameId:   frameId,
			Kind:      tr.String(),
			Box:       box,
			Misses:    state.Misses,
			Timestamp: time.Now(),
		})
	}
}

func (s *Session[F]) record(ev TrackEvent) {
	if s.Recorder == nil {
		return
	}
	if err := s.Recorder.RecordEvent(ev); err != nil {
		log.Printf("Error recording track event: %v", err)
	}
}

func (s *Session[F]) finish() Summary {
	summary := s.stats.result()
	summary.SessionId = s.Id
	log.Printf("Session [%s] summary: %s", s.Id, summary)
	return summary
}

func (s *Session[F]) release() {
	if err := s.Source.Release(); err != nil {
		log.Printf("Error releasing video source: %v", err)
	}
	if err := s.Renderer.Close(); err != nil {
		log.Printf("Error closing renderer: %v", err)
	}
}

func elapsedMs(st time.Time) float64 {
	return float64(time.Since(st).Microseconds()) / 1000.0
}
