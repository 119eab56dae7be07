package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

const defaultUploadTimeout = 30 * time.Second

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	Timeout   time.Duration
}

// VoiceStore uploads recorded voice notes to Cloudinary.
type VoiceStore struct {
	client  *cloudinary.Cloudinary
	folder  string
	timeout time.Duration
	logger  zerolog.Logger
}

// New constructs a Cloudinary voice store.
func New(cfg Config, logger zerolog.Logger) (*VoiceStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}

	return &VoiceStore{
		client:  cld,
		folder:  strings.Trim(cfg.Folder, "/"),
		timeout: timeout,
		logger:  logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload sends the voice note to Cloudinary and returns its secure URL.
// Cloudinary files audio under the video resource type.
func (s *VoiceStore) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     buildPublicID(name, time.Now()),
		ResourceType: "video",
		Tags:         []string{"conversation", "voice-note"},
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload voice note: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary rejected voice note: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Int("bytes", result.Bytes).Msg("voice note uploaded to cloudinary")

	return result.SecureURL, nil
}

func buildPublicID(name string, now time.Time) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "voice"
	}

	return fmt.Sprintf("%s-%d", base, now.Unix())
}
