package audio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/openasr/parakeetd/internal/apierrors"
	"github.com/openasr/parakeetd/internal/procexec"
)

// Inspector extracts audio stream metadata from uploaded files. It tries
// an in-process header reader for wav and flac containers first and only
// shells out to ffprobe when the fast path cannot parse the file.
type Inspector struct {
	ffprobeBin string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewInspector builds an inspector. ffprobeBin defaults to "ffprobe" on
// PATH when empty.
func NewInspector(ffprobeBin string, timeout time.Duration, logger *slog.Logger) *Inspector {
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{ffprobeBin: ffprobeBin, timeout: timeout, logger: logger}
}

// Inspect reads stream metadata for the file at path. It fails with a
// ValidationError when the file is empty, has no audio stream, or neither
// the fast path nor ffprobe can extract metadata.
func (i *Inspector) Inspect(ctx context.Context, path string) (Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, apierrors.Processing("failed to stat audio file", err)
	}
	if info.Size() == 0 {
		return Metadata{}, apierrors.Validation("Audio file is empty").WithDetail("path_size", 0)
	}

	if meta, ok := i.inspectFast(path); ok {
		return meta, nil
	}

	meta, err := i.inspectFFprobe(ctx, path)
	if err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// inspectFast attempts the in-process header readers. A false return means
// "fall back to ffprobe", not "invalid audio".
func (i *Inspector) inspectFast(path string) (Metadata, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, false
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil || n < 12 {
		return Metadata{}, false
	}
	header = header[:n]

	switch {
	case string(header[0:4]) == "RIFF" && string(header[8:12]) == "WAVE":
		meta, err := parseWAVHeader(header)
		if err != nil {
			i.logger.Debug("fast wav probe failed", "path", path, "error", err)
			return Metadata{}, false
		}
		return meta, true
	case string(header[0:4]) == "fLaC":
		meta, err := parseFLACStreamInfo(header)
		if err != nil {
			i.logger.Debug("fast flac probe failed", "path", path, "error", err)
			return Metadata{}, false
		}
		return meta, true
	}
	return Metadata{}, false
}

// parseWAVHeader walks the RIFF chunk list looking for "fmt " and "data".
func parseWAVHeader(header []byte) (Metadata, error) {
	var meta Metadata
	var byteRate uint32
	var dataSize uint32
	haveFmt, haveData := false, false

	offset := 12
	for offset+8 <= len(header) {
		chunkID := string(header[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(header[offset+4 : offset+8])
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(header) {
				return Metadata{}, fmt.Errorf("truncated fmt chunk")
			}
			meta.Channels = int(binary.LittleEndian.Uint16(header[body+2 : body+4]))
			meta.SampleRate = int(binary.LittleEndian.Uint32(header[body+4 : body+8]))
			byteRate = binary.LittleEndian.Uint32(header[body+8 : body+12])
			bits := binary.LittleEndian.Uint16(header[body+14 : body+16])
			meta.Codec = fmt.Sprintf("pcm_s%dle", bits)
			haveFmt = true
		case "data":
			dataSize = chunkSize
			haveData = true
		}
		if haveFmt && haveData {
			break
		}
		offset = body + int(chunkSize)
		if chunkSize%2 == 1 {
			offset++ // RIFF chunks are word aligned
		}
	}

	if !haveFmt {
		return Metadata{}, fmt.Errorf("missing fmt chunk")
	}
	if meta.SampleRate <= 0 || meta.Channels <= 0 {
		return Metadata{}, fmt.Errorf("invalid wav format values")
	}
	if haveData && byteRate > 0 {
		meta.DurationSeconds = float64(dataSize) / float64(byteRate)
	}
	meta.EstimatedBitRate = int(byteRate) * 8
	return meta, nil
}

// parseFLACStreamInfo reads the mandatory STREAMINFO block that follows
// the fLaC marker.
func parseFLACStreamInfo(header []byte) (Metadata, error) {
	// 4 bytes marker, 4 bytes block header, 34 bytes STREAMINFO.
	if len(header) < 42 {
		return Metadata{}, fmt.Errorf("flac header too short")
	}
	blockType := header[4] & 0x7f
	if blockType != 0 {
		return Metadata{}, fmt.Errorf("first metadata block is not STREAMINFO")
	}
	info := header[8:42]

	// Bytes 10..17 of STREAMINFO pack sample rate (20 bits), channels-1
	// (3 bits), bits-per-sample-1 (5 bits), total samples (36 bits).
	sampleRate := int(info[10])<<12 | int(info[11])<<4 | int(info[12])>>4
	channels := int(info[12]>>1&0x07) + 1
	totalSamples := uint64(info[13]&0x0f)<<32 |
		uint64(info[14])<<24 | uint64(info[15])<<16 |
		uint64(info[16])<<8 | uint64(info[17])

	if sampleRate <= 0 {
		return Metadata{}, fmt.Errorf("invalid flac sample rate")
	}
	meta := Metadata{
		SampleRate: sampleRate,
		Channels:   channels,
		Codec:      "flac",
	}
	if totalSamples > 0 {
		meta.DurationSeconds = float64(totalSamples) / float64(sampleRate)
	}
	return meta, nil
}

// ffprobeOutput mirrors the JSON shape of `ffprobe -show_streams -of json`.
type ffprobeOutput struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

func (i *Inspector) inspectFFprobe(ctx context.Context, path string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	result, err := procexec.Run(ctx, procexec.Command{
		Binary: i.ffprobeBin,
		Args: []string{
			"-v", "error",
			"-show_streams",
			"-select_streams", "a:0",
			"-of", "json",
			path,
		},
	})
	if err != nil {
		msg := "Invalid audio file"
		if result != nil {
			if tail := result.StderrTail(3); tail != "" {
				msg = fmt.Sprintf("Invalid audio file: %s", tail)
			}
		}
		return Metadata{}, apierrors.Validation(msg).WithDetail("probe_error", err.Error())
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(result.Stdout, &probe); err != nil {
		return Metadata{}, apierrors.Validation("Failed to read audio metadata").WithDetail("parse_error", err.Error())
	}
	if len(probe.Streams) == 0 {
		return Metadata{}, apierrors.Validation("No audio stream found in file")
	}

	stream := probe.Streams[0]
	meta := Metadata{
		Channels: stream.Channels,
		Codec:    stream.CodecName,
	}
	if v, err := strconv.Atoi(stream.SampleRate); err == nil {
		meta.SampleRate = v
	}
	if v, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
		meta.DurationSeconds = v
	}
	if v, err := strconv.Atoi(stream.BitRate); err == nil {
		meta.EstimatedBitRate = v
	}
	return meta, nil
}
