// Package audio turns a raw audio stream into bounded voice segments.
// The level monitor samples stream energy on a cooperative polling loop;
// the segmenter runs a silence-detection state machine over those samples.
package audio

import (
	"context"
	"errors"
	"io"
	"math"
	"time"

	"voice-workflow-recorder/internal/observability/metrics"
)

// DefaultWindowSamples is the analysis window size in samples.
const DefaultWindowSamples = 256

// Sample is one audio level observation: the normalized energy of a chunk
// of the input stream at the time it was read.
type Sample struct {
	Time  time.Time
	Level float64 // energy normalized to [0,1]
	Chunk []byte  // raw audio that was analyzed
}

// ChunkSource supplies raw 16-bit little-endian PCM chunks.
// ReadChunk returns io.EOF when the stream ends.
type ChunkSource interface {
	ReadChunk(ctx context.Context) ([]byte, error)
}

// ReaderSource adapts an io.Reader into a ChunkSource of fixed-size
// analysis windows.
type ReaderSource struct {
	r    io.Reader
	size int
}

// NewReaderSource wraps r, reading windowSamples 16-bit samples per chunk.
func NewReaderSource(r io.Reader, windowSamples int) *ReaderSource {
	if windowSamples <= 0 {
		windowSamples = DefaultWindowSamples
	}
	return &ReaderSource{r: r, size: windowSamples * 2}
}

// ReadChunk reads the next analysis window. A short final window is
// returned as-is; the following call reports io.EOF.
func (s *ReaderSource) ReadChunk(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	if n > 0 {
		return buf[:n], nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, io.EOF
	}
	return nil, err
}

// Monitor samples an audio stream's energy at a fixed interval.
// It holds no state beyond the run in progress: a new Run on a new
// source restarts the sequence cleanly.
type Monitor struct {
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewMonitor creates a monitor polling at the given interval
// (~16ms approximates a 60fps analysis cadence).
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &Monitor{
		interval: interval,
		metrics:  metrics.DefaultMetrics,
		now:      time.Now,
	}
}

// Run drives the cooperative sampling loop: one chunk per tick, classified
// and handed to fn synchronously. Returns nil when the source ends, or the
// context error on cancellation. It never blocks between ticks longer than
// the source itself does.
func (m *Monitor) Run(ctx context.Context, source ChunkSource, fn func(Sample)) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			chunk, err := source.ReadChunk(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if len(chunk) == 0 {
				continue
			}
			m.metrics.AudioBytesRead.Add(float64(len(chunk)))
			m.metrics.LevelSamples.Inc()
			fn(Sample{
				Time:  m.now(),
				Level: Level(chunk),
				Chunk: chunk,
			})
		}
	}
}

// Level computes the RMS energy of a 16-bit little-endian PCM chunk,
// normalized to [0,1].
func Level(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	var count int
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
		count++
	}
	if count == 0 {
		return 0
	}
	rms := math.Sqrt(sum / float64(count))
	if rms > 1 {
		rms = 1
	}
	return rms
}
