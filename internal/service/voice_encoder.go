package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/observability"
)

var (
	// ErrVoiceTooLarge indicates the decoded voice note exceeded the configured limit.
	ErrVoiceTooLarge = fmt.Errorf("%w: voice note exceeds maximum allowed size", ErrChatValidation)
	// ErrVoiceNotAudio indicates the payload did not decode to a recognised audio container.
	ErrVoiceNotAudio = fmt.Errorf("%w: voice note is not audio", ErrChatValidation)
	// ErrVoiceEncoding indicates the payload was not valid base64.
	ErrVoiceEncoding = fmt.Errorf("%w: voice note must be base64 encoded", ErrChatValidation)
)

// FileStorage abstracts upload destinations for voice notes.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// VoiceEncoder turns a client supplied voice payload into the stored message body.
type VoiceEncoder struct {
	storage  FileStorage
	maxBytes int64
	logger   zerolog.Logger
}

// NewVoiceEncoder constructs an encoder. storage may be nil, in which case the
// normalised data URI is stored inline.
func NewVoiceEncoder(storage FileStorage, maxKB int, logger zerolog.Logger) *VoiceEncoder {
	if maxKB <= 0 {
		maxKB = 2048
	}
	return &VoiceEncoder{
		storage:  storage,
		maxBytes: int64(maxKB) * 1024,
		logger:   logger.With().Str("component", "voice_encoder").Logger(),
	}
}

// Encode validates the payload and returns the body to persist.
func (v *VoiceEncoder) Encode(ctx context.Context, payload string) (string, error) {
	raw, err := decodeVoicePayload(payload)
	if err != nil {
		observability.VoiceRejected().WithLabelValues("encoding").Inc()
		return "", err
	}
	if len(raw) == 0 {
		observability.VoiceRejected().WithLabelValues("encoding").Inc()
		return "", ErrVoiceEncoding
	}
	if int64(len(raw)) > v.maxBytes {
		observability.VoiceRejected().WithLabelValues("size").Inc()
		return "", ErrVoiceTooLarge
	}

	mime := mimetype.Detect(raw)
	if !isAudioMime(mime.String()) {
		observability.VoiceRejected().WithLabelValues("type").Inc()
		return "", ErrVoiceNotAudio
	}
	contentType := baseMime(mime.String())

	if v.storage == nil {
		return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
	}

	name := "voice-" + uuid.NewString() + mime.Extension()
	url, err := v.storage.Upload(ctx, name, bytes.NewReader(raw))
	if err != nil {
		observability.VoiceRejected().WithLabelValues("storage").Inc()
		return "", fmt.Errorf("upload voice note: %w", err)
	}

	v.logger.Debug().Str("mime", contentType).Int("size_bytes", len(raw)).Msg("voice note uploaded")
	return url, nil
}

func decodeVoicePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		header, data, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, ErrVoiceEncoding
		}
		payload = data
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return decoded, nil
	}
	decoded, rawErr := base64.RawStdEncoding.DecodeString(payload)
	if rawErr != nil {
		return nil, errors.Join(ErrVoiceEncoding, err)
	}
	return decoded, nil
}

func baseMime(value string) string {
	base, _, _ := strings.Cut(value, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func isAudioMime(value string) bool {
	m := baseMime(value)
	if strings.HasPrefix(m, "audio/") {
		return true
	}
	// Browser recorders emit WebM/Ogg/MP4 containers that sniff as video.
	switch m {
	case "video/webm", "video/ogg", "application/ogg", "video/mp4":
		return true
	default:
		return false
	}
}
