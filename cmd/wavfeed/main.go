// wavfeed streams a PCM WAV file through the voice pipeline at real-time
// pace: level monitor, silence segmenter, then the transcription channel.
// It exercises the full segmentation path without a microphone.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"voice-workflow-recorder/internal/models"
	"voice-workflow-recorder/internal/observability/logging"
	"voice-workflow-recorder/internal/service/audio"
	"voice-workflow-recorder/internal/service/stt"
	"voice-workflow-recorder/internal/service/stt/mock"
	"voice-workflow-recorder/internal/service/transport"
)

// WAV header is 44 bytes for standard PCM files.
const wavHeaderSize = 44

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono PCM)")
	serverURL := flag.String("server", "ws://localhost:8765/voice-stream", "Transcription collaborator WebSocket URL")
	sessionId := flag.String("session", "wavfeed-"+time.Now().Format("150405"), "Session ID")
	useMock := flag.Bool("mock", false, "Use the scripted mock transcriber instead of the WebSocket collaborator")
	verbose := flag.Bool("v", false, "Log segment-level detail")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Format = "console"
	if *verbose {
		logCfg.Level = "debug"
	}
	logging.Init(logCfg)

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	sampleRate := readHeader(f)

	var transcriber interface {
		Connect(ctx context.Context) error
		Send(seg models.VoiceSegment) error
		OnTranscription(fn func(models.Transcription))
		Close() error
	}
	if *useMock {
		transcriber = stt.NewBridge(stt.BridgeConfig{SessionID: *sessionId, MinSegmentBytes: 8 * 1024}, mock.New())
	} else {
		cfg := transport.DefaultConfig(*serverURL, *sessionId)
		cfg.SampleRate = int(sampleRate)
		transcriber = transport.NewClient(cfg)
	}

	transcriber.OnTranscription(func(tr models.Transcription) {
		log.Printf("transcription @%.2f (%.2f): %s", tr.Timestamp, tr.Confidence, tr.Text)
	})

	ctx := context.Background()
	if err := transcriber.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect transcriber: %v", err)
	}
	defer transcriber.Close()

	segmenter := audio.NewSegmenter(*sessionId, audio.DefaultSegmenterConfig(), func(seg models.VoiceSegment) {
		if err := transcriber.Send(seg); err != nil {
			log.Printf("segment not sent: %v", err)
		} else {
			log.Printf("segment sent: %.2fs, %d bytes", seg.Duration(), len(seg.Audio))
		}
	})

	// One analysis window per tick keeps playback at real-time pace.
	interval := time.Duration(audio.DefaultWindowSamples) * time.Second / time.Duration(sampleRate)
	monitor := audio.NewMonitor(interval)
	source := audio.NewReaderSource(f, audio.DefaultWindowSamples)

	log.Printf("Streaming %s at %d Hz, session %s", *audioFile, sampleRate, *sessionId)
	start := time.Now()

	if err := monitor.Run(ctx, source, segmenter.Process); err != nil {
		log.Fatalf("monitor failed: %v", err)
	}
	segmenter.Flush(time.Now())

	// Let late transcriptions land before the channel closes.
	time.Sleep(500 * time.Millisecond)
	log.Printf("Finished in %v", time.Since(start))
}

// readHeader validates the RIFF/WAVE PCM header and returns the sample rate.
func readHeader(f *os.File) uint32 {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}

	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 {
		log.Fatal("Only PCM format supported")
	}
	if numChannels != 1 {
		log.Fatal("Only mono audio supported")
	}
	if bitsPerSample != 16 {
		log.Fatal("Only 16-bit samples supported")
	}
	return sampleRate
}
