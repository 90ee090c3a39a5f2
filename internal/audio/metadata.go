package audio

// Engine input requirements. Anything else gets normalized first.
const (
	TargetSampleRate = 16000
	TargetChannels   = 1
	TargetFormat     = "wav"
)

// Metadata describes the audio stream of an uploaded file. It is produced
// once by the Inspector and never mutated afterwards.
type Metadata struct {
	SampleRate       int     `json:"sample_rate"`
	Channels         int     `json:"channels"`
	Codec            string  `json:"codec"`
	DurationSeconds  float64 `json:"duration_seconds"`
	EstimatedBitRate int     `json:"estimated_bit_rate"`
}

// NeedsNormalization reports whether a file must be transcoded before the
// engine can consume it. A wav or flac container already at 16 kHz mono
// passes through untouched; everything else is normalized.
func NeedsNormalization(ext string, meta Metadata) bool {
	if (ext == "wav" || ext == "flac") &&
		meta.SampleRate == TargetSampleRate &&
		meta.Channels == TargetChannels {
		return false
	}
	return true
}
