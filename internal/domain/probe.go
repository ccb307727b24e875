package domain

import (
	"fmt"
	"strconv"
)

type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ProbeStream struct {
	Index        int    `json:"index"`
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
}

type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

func (p *ProbeResult) VideoStream() *ProbeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "video" {
			return &p.Streams[i]
		}
	}
	return nil
}

// FrameRate returns the video stream's average frame rate, falling back to
// the container's real base rate. Zero means unknown.
func (p *ProbeResult) FrameRate() float64 {
	vs := p.VideoStream()
	if vs == nil {
		return 0
	}
	if fps := ParseFrameRate(vs.AvgFrameRate); fps > 0 {
		return fps
	}
	return ParseFrameRate(vs.RFrameRate)
}

func (p *ProbeResult) DurationSeconds() float64 {
	return ParseDuration(p.Format.Duration)
}

func ParseFrameRate(fraction string) float64 {
	if fraction == "" || fraction == "0/0" {
		return 0
	}
	var num, den int
	if _, err := fmt.Sscanf(fraction, "%d/%d", &num, &den); err == nil && den > 0 {
		return float64(num) / float64(den)
	}
	if v, err := strconv.ParseFloat(fraction, 64); err == nil && v > 0 {
		return v
	}
	return 0
}

func ParseDuration(durationStr string) float64 {
	if durationStr == "" || durationStr == "N/A" {
		return 0
	}
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0
	}
	return duration
}

// FormatDuration renders seconds as m:ss or h:mm:ss.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0:00"
	}
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
