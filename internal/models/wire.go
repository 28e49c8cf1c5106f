package models

// Message types exchanged with the transcription collaborator over the
// voice-stream WebSocket.
const (
	MessageTypeAudioSegment  = "audio_segment"
	MessageTypeTranscription = "transcription"
	MessageTypeConnection    = "connection"
)

// AudioSegmentMessage is the outbound frame carrying one voice segment.
// Data is base64-encoded on the wire (encoding/json encodes []byte that way).
type AudioSegmentMessage struct {
	Type           string  `json:"type"`
	Data           []byte  `json:"data"`
	Timestamp      float64 `json:"timestamp"`
	VoiceStartTime float64 `json:"voiceStartTime"`
	VoiceEndTime   float64 `json:"voiceEndTime"`
	Size           int     `json:"size"`
	MimeType       string  `json:"mimeType"`
	Format         string  `json:"format"`
	IsSegment      bool    `json:"isSegment"`
}

// TranscriptionMessage is the inbound frame carrying one transcription
// result. Confidence and source are optional; older collaborators omit them.
type TranscriptionMessage struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Timestamp  float64 `json:"timestamp"`
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source,omitempty"`
	Status     string  `json:"status,omitempty"`
	Message    string  `json:"message,omitempty"`
}
