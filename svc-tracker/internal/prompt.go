package internal

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// WebcamDevice is the capture device opened for the webcam choice.
const WebcamDevice = "0"

var videoExtensions = []string{"*.mov", "*.mp4", "*.avi"}

// Prompter runs the interactive setup questions on a line-oriented terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	dir string
}

// NewPrompter reads answers from r, writes questions to w and lists video
// files found in dir.
func NewPrompter(r io.Reader, w io.Writer, dir string) *Prompter {
	return &Prompter{in: bufio.NewReader(r), out: w, dir: dir}
}

func (p *Prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// SelectSource asks for webcam or video file until it gets a valid answer and
// returns a value suitable for VIDEO_SOURCE.
func (p *Prompter) SelectSource() (string, error) {
	for {
		choice, err := p.ask("Select video source -> [1] Webcam | [2] Video File: ")
		if err != nil {
			return "", err
		}
		switch choice {
		case "1":
			return WebcamDevice, nil
		case "2":
			return p.selectVideoFile()
		default:
			fmt.Fprint(p.out, "Invalid input, please try again.\n\n")
		}
	}
}

func (p *Prompter) selectVideoFile() (string, error) {
	for {
		videos, err := ListVideos(p.dir)
		if err != nil {
			return "", err
		}
		fmt.Fprint(p.out, "\nAvailable video files:\n")
		for i, v := range videos {
			fmt.Fprintf(p.out, "%d- %s\n", i+1, filepath.Base(v))
		}
		answer, err := p.ask("\nSelect a video file by number: ")
		if err != nil {
			return "", err
		}
		n, convErr := strconv.Atoi(answer)
		if convErr == nil && n >= 1 && n <= len(videos) {
			return videos[n-1], nil
		}
		fmt.Fprint(p.out, "Invalid selection, please try again.\n\n")
	}
}

// SelectPreset asks for the targeter size once. Anything but a valid choice
// falls back to the medium preset.
func (p *Prompter) SelectPreset() (Preset, error) {
	choice, err := p.ask("\nEnter targeter size | [1] Small (50x50) | [2] Medium (100x100) | [3] Large (150x150): ")
	if err != nil {
		return PresetMedium, err
	}
	return ResolvePreset(choice), nil
}

// ResolvePreset is PresetFor with the fallback logged.
func ResolvePreset(choice string) Preset {
	preset, ok := PresetFor(choice)
	if !ok {
		log.Printf("Invalid targeter size %q, defaulting to %s", choice, preset)
	}
	return preset
}

// WaitForStart blocks until the operator presses Enter.
func (p *Prompter) WaitForStart() error {
	_, err := p.ask("Press Enter to start video processing...")
	return err
}

// ListVideos returns the .mov, .mp4 and .avi files of dir, grouped by
// extension in that order and sorted by name within a group.
func ListVideos(dir string) ([]string, error) {
	var videos []string
	for _, pattern := range videoExtensions {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		videos = append(videos, matches...)
	}
	return videos, nil
}
