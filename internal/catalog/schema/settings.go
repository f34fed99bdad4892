package schema

import (
	"encoding/json"
	"fmt"
)

// Well-known settings record ids.
const (
	SettingsFeaturedVideos = "featured_videos"
)

// MaxFeaturedVideos caps the featured-video showcase.
const MaxFeaturedVideos = 3

// Settings is a singleton record with an opaque payload.
type Settings struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt Millis          `json:"createdAt"`
}

// FeaturedVideo is one entry of the featured-video showcase.
type FeaturedVideo struct {
	VideoURL     string `json:"videoUrl" yaml:"video_url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty" yaml:"thumbnail_url,omitempty"`
}

// EntityID implements Entity.
func (s Settings) EntityID() string { return s.ID }

// CreatedMillis implements Entity.
func (s Settings) CreatedMillis() int64 { return int64(s.CreatedAt) }

// SetID assigns the settings id.
func (s *Settings) SetID(id string) { s.ID = id }

// Validate checks if the Settings record has valid field values.
func (s Settings) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if len(s.Payload) > 0 && !json.Valid(s.Payload) {
		return fmt.Errorf("payload of %s is not valid JSON", s.ID)
	}
	return nil
}

// FeaturedVideos decodes the payload of a featured-videos record. Entries
// without a video URL are dropped and at most MaxFeaturedVideos are kept.
func (s Settings) FeaturedVideos() ([]FeaturedVideo, error) {
	if len(s.Payload) == 0 {
		return nil, nil
	}
	var videos []FeaturedVideo
	if err := json.Unmarshal(s.Payload, &videos); err != nil {
		return nil, fmt.Errorf("failed to decode featured videos: %w", err)
	}
	return capVideos(videos), nil
}

// NewFeaturedVideos builds the featured-videos settings record.
func NewFeaturedVideos(videos []FeaturedVideo) (Settings, error) {
	payload, err := json.Marshal(capVideos(videos))
	if err != nil {
		return Settings{}, fmt.Errorf("failed to encode featured videos: %w", err)
	}
	return Settings{ID: SettingsFeaturedVideos, Payload: payload, CreatedAt: Now()}, nil
}

func capVideos(videos []FeaturedVideo) []FeaturedVideo {
	out := make([]FeaturedVideo, 0, MaxFeaturedVideos)
	for _, v := range videos {
		if v.VideoURL == "" {
			continue
		}
		out = append(out, v)
		if len(out) == MaxFeaturedVideos {
			break
		}
	}
	return out
}
