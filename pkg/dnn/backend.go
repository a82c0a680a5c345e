package dnn

import (
	"log"
	"os/exec"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// Backend is a DNN compute backend/target pair.
type Backend struct {
	Name       string
	NetBackend gocv.NetBackendType
	NetTarget  gocv.NetTargetType
}

var (
	BackendCPU  = Backend{Name: "CPU", NetBackend: gocv.NetBackendDefault, NetTarget: gocv.NetTargetCPU}
	BackendCUDA = Backend{Name: "CUDA", NetBackend: gocv.NetBackendCUDA, NetTarget: gocv.NetTargetCUDA}
)

// HasGPUCapability checks for an NVIDIA GPU with its driver loaded. CUDA
// support in the OpenCV build itself is only known after a test inference.
func HasGPUCapability() bool {
	if !hasNVIDIAGPU() {
		log.Printf("[GPU_DETECT] No NVIDIA GPU detected")
		return false
	}
	if !hasNVIDIADriver() {
		log.Printf("[GPU_DETECT] NVIDIA drivers not loaded")
		return false
	}
	return true
}

func hasNVIDIAGPU() bool {
	output, err := exec.Command("lspci").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(output)), "nvidia")
}

func hasNVIDIADriver() bool {
	if err := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Run(); err != nil {
		return false
	}
	matches, _ := filepath.Glob("/dev/nvidia*")
	return len(matches) > 0
}
