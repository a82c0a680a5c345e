package api

import (
	"fmt"
	"net"
	"time"
)

// FrameMetadata travels with every frame sent to the remote detector.
type FrameMetadata struct {
	SourceId  string    `json:"source_id"`
	SessionId string    `json:"session_id"`
	FrameId   int64     `json:"frame_id"`
	Timestamp time.Time `json:"timestamp"`
}

type Service struct {
	Address string
	Port    string
}

func (s *Service) ServiceReachable() error {
	if s.Address == "" || s.Port == "" {
		return fmt.Errorf("service address or port is not set")
	}
	address := net.JoinHostPort(s.Address, s.Port)
	conn, err := net.DialTimeout("tcp", address, 3*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	return nil
}
