package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	a := NewJob()
	b := NewJob()

	assert.NotEmpty(t, a.ID, "ID should be generated")
	assert.NotEqual(t, a.ID, b.ID, "IDs should be unique")
	assert.Equal(t, JobStatusStarting, a.Status)
	assert.Empty(t, a.Clips)
	assert.False(t, a.CreatedAt.IsZero())
	assert.NoError(t, a.Validate())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusStarting, JobStatusStarting, true},
		{JobStatusStarting, JobStatusProcessing, true},
		{JobStatusStarting, JobStatusError, true},
		{JobStatusStarting, JobStatusDone, false},
		{JobStatusProcessing, JobStatusProcessing, true},
		{JobStatusProcessing, JobStatusDone, true},
		{JobStatusProcessing, JobStatusError, true},
		{JobStatusProcessing, JobStatusStarting, false},
		{JobStatusDone, JobStatusDone, false},
		{JobStatusDone, JobStatusError, false},
		{JobStatusDone, JobStatusProcessing, false},
		{JobStatusError, JobStatusError, false},
		{JobStatusError, JobStatusStarting, false},
		{JobStatusError, JobStatusDone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := NewJob()

	job.StartProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NoError(t, job.Validate())

	job.ReportProgress(2, 4)
	require.NotNil(t, job.Progress)
	assert.Equal(t, Progress{Clip: 2, Total: 4}, *job.Progress)
	require.NoError(t, job.Validate())

	clips := []ClipResult{{Name: "Clip 1", URL: "http://x/stream/a_clip1.mp4"}}
	job.MarkDone(clips)
	assert.Equal(t, JobStatusDone, job.Status)
	assert.Nil(t, job.Progress, "progress is cleared on completion")
	assert.Equal(t, clips, job.Clips)
	require.NoError(t, job.Validate())

	clips[0].Name = "mutated"
	assert.Equal(t, "Clip 1", job.Clips[0].Name, "MarkDone must copy the clip slice")
}

func TestJob_MarkFailed(t *testing.T) {
	job := NewJob()
	job.StartProcessing()
	job.ReportProgress(1, 4)

	job.MarkFailed(ReasonExtractionFailed)

	assert.Equal(t, JobStatusError, job.Status)
	assert.Equal(t, ReasonExtractionFailed, job.Reason)
	assert.Nil(t, job.Progress)
	assert.Empty(t, job.Clips)
	assert.NoError(t, job.Validate())
}

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{
			name: "starting is valid",
			job:  Job{ID: "a", Status: JobStatusStarting},
		},
		{
			name:    "missing id",
			job:     Job{Status: JobStatusStarting},
			wantErr: true,
		},
		{
			name:    "unknown status",
			job:     Job{ID: "a", Status: "paused"},
			wantErr: true,
		},
		{
			name:    "done without clips",
			job:     Job{ID: "a", Status: JobStatusDone},
			wantErr: true,
		},
		{
			name:    "processing with clips",
			job:     Job{ID: "a", Status: JobStatusProcessing, Clips: []ClipResult{{Name: "Clip 1"}}},
			wantErr: true,
		},
		{
			name:    "error with clips",
			job:     Job{ID: "a", Status: JobStatusError, Clips: []ClipResult{{Name: "Clip 1"}}},
			wantErr: true,
		},
		{
			name:    "progress outside processing",
			job:     Job{ID: "a", Status: JobStatusStarting, Progress: &Progress{Clip: 1, Total: 2}},
			wantErr: true,
		},
		{
			name:    "reason outside error",
			job:     Job{ID: "a", Status: JobStatusProcessing, Reason: ReasonInternal},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJob_Clone(t *testing.T) {
	job := NewJob()
	job.StartProcessing()
	job.ReportProgress(1, 2)

	c := job.Clone()
	c.Progress.Clip = 2

	assert.Equal(t, 1, job.Progress.Clip, "clone must not share progress")
	assert.Nil(t, (*Job)(nil).Clone())
}

func TestClipFileName(t *testing.T) {
	assert.Equal(t, "abc_clip1.mp4", ClipFileName("abc", 1))
	assert.Equal(t, "Clip 3", ClipDisplayName(3))
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"0/0", 0},
		{"", 0},
		{"25", 25},
		{"garbage", 0},
		{"24/0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseFrameRate(tt.in), 1e-9)
		})
	}
}

func TestProbeResult_FrameRate(t *testing.T) {
	p := &ProbeResult{Streams: []ProbeStream{
		{CodecType: "audio"},
		{CodecType: "video", AvgFrameRate: "0/0", RFrameRate: "25/1"},
	}}
	assert.Equal(t, 25.0, p.FrameRate())

	p.Streams[1].AvgFrameRate = "24/1"
	assert.Equal(t, 24.0, p.FrameRate())

	assert.Equal(t, 0.0, (&ProbeResult{}).FrameRate())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "0:19", FormatDuration(19.4))
	assert.Equal(t, "1:01:05", FormatDuration(3665))
}
