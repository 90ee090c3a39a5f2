package audio

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/openasr/parakeetd/internal/apierrors"
)

// SupportedFormats is the set of upload extensions the service accepts.
// Mirrors the OpenAI transcription endpoint's documented formats.
var SupportedFormats = map[string]struct{}{
	"flac": {}, "mp3": {}, "mp4": {}, "mpeg": {}, "mpga": {},
	"m4a": {}, "ogg": {}, "wav": {}, "webm": {},
}

// maxFilenameLength caps sanitized names at the common filesystem limit.
const maxFilenameLength = 255

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SupportedFormatList returns the supported extensions sorted for stable
// error messages.
func SupportedFormatList() []string {
	formats := make([]string, 0, len(SupportedFormats))
	for f := range SupportedFormats {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// SanitizeFilename strips path components, replaces disallowed characters
// with underscores, forces a default extension when none is present, and
// truncates to the maximum length while preserving the extension. The
// operation is idempotent.
func SanitizeFilename(filename string) string {
	// Drop directory components, including windows-style separators.
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if filename == "." || filename == ".." || filename == "/" {
		filename = "_"
	}

	filename = unsafeChars.ReplaceAllString(filename, "_")

	if !strings.Contains(filename, ".") {
		filename += ".audio"
	}

	if len(filename) > maxFilenameLength {
		ext := filepath.Ext(filename)
		if len(ext) >= maxFilenameLength {
			// The extension alone blows the budget; keep the head of the
			// whole string instead.
			filename = filename[:maxFilenameLength]
		} else {
			name := strings.TrimSuffix(filename, ext)
			filename = name[:maxFilenameLength-len(ext)] + ext
		}
	}
	return filename
}

// ValidateExtension checks the filename's extension against the supported
// set and returns it without the leading dot.
func ValidateExtension(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "", apierrors.Validation(fmt.Sprintf(
			"No file extension found. Supported formats: %s",
			strings.Join(SupportedFormatList(), ", "),
		)).WithDetail("filename", filename)
	}
	if _, ok := SupportedFormats[ext]; !ok {
		err := apierrors.Validation(fmt.Sprintf(
			"Unsupported file format: %s. Supported formats: %s",
			ext, strings.Join(SupportedFormatList(), ", "),
		)).WithDetail("extension", ext)
		err.Code = "invalid_file_format"
		return "", err
	}
	return ext, nil
}

// ValidateSize rejects payloads larger than maxBytes. The message states
// actual and maximum size in megabytes.
func ValidateSize(size, maxBytes int64) error {
	if size <= maxBytes {
		return nil
	}
	err := apierrors.Validation(fmt.Sprintf(
		"File too large: %.1fMB. Maximum allowed: %.1fMB",
		float64(size)/(1024*1024), float64(maxBytes)/(1024*1024),
	)).WithDetail("size_bytes", size).WithDetail("max_bytes", maxBytes)
	err.Code = "file_too_large"
	return err
}
