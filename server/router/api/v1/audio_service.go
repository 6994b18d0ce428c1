package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/speechcare/plugin/filter"
	"github.com/hrygo/speechcare/plugin/storage"
	"github.com/hrygo/speechcare/store"
)

// AudioAsset is the JSON view of a stored asset.
type AudioAsset struct {
	Hash        string `json:"hash"`
	Bucket      string `json:"bucket"`
	ObjectKey   string `json:"objectKey"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	DurationMs  int64  `json:"durationMs"`
	Provider    string `json:"provider"`
	VoiceID     string `json:"voiceId"`
	ModelID     string `json:"modelId"`
	CreatedTs   int64  `json:"createdTs"`
	URL         string `json:"url"`
	Exists      *bool  `json:"exists,omitempty"`
}

func (s *APIV1Service) convertAudioAsset(asset *store.AudioAsset) *AudioAsset {
	return &AudioAsset{
		Hash:        asset.Hash,
		Bucket:      asset.Bucket,
		ObjectKey:   asset.ObjectKey,
		Size:        asset.Size,
		ContentType: asset.ContentType,
		DurationMs:  asset.DurationMs,
		Provider:    asset.Provider,
		VoiceID:     asset.VoiceID,
		ModelID:     asset.ModelID,
		CreatedTs:   asset.CreatedTs,
		URL:         s.Objects.PublicURL(asset.ObjectKey),
	}
}

// GetAudioFile streams a stored object. Keys may contain slashes.
// Objects are content addressed and never change.
// GET /audio/*
func (s *APIV1Service) GetAudioFile(c echo.Context) error {
	key := c.Param("*")
	if !strings.HasSuffix(key, ".mp3") {
		return notFound(c, "Audio not found")
	}
	data, err := s.Objects.Download(c.Request().Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidKey):
			return badRequest(c, "Invalid audio key")
		case errors.Is(err, storage.ErrObjectNotFound):
			return notFound(c, "Audio not found")
		default:
			slog.Error("failed to read audio object", "key", key, "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read audio"})
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.Blob(http.StatusOK, storage.AudioContentType, data)
}

// ListAudioAssets lists stored assets, optionally narrowed by a CEL filter.
// GET /api/v1/audio-assets?filter=&limit=&offset=
func (s *APIV1Service) ListAudioAssets(c echo.Context) error {
	ctx := c.Request().Context()
	limit, offset, ok := parsePagination(c)
	if !ok {
		return badRequest(c, "Invalid pagination parameters")
	}

	var assets []*store.AudioAsset
	if expr := strings.TrimSpace(c.QueryParam("filter")); expr != "" {
		f, err := filter.Parse(expr)
		if err != nil {
			return badRequest(c, err.Error())
		}
		// Scan in batches until the requested page is filled or rows run out.
		var matched []*store.AudioAsset
		for scanned := 0; len(matched) < offset+limit; scanned += filterBatchSize {
			batch, err := s.Store.ListAudioAssets(ctx, &store.FindAudioAsset{Limit: filterBatchSize, Offset: scanned})
			if err != nil {
				slog.Error("failed to list audio assets", "error", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list audio assets"})
			}
			hits, err := f.Apply(batch)
			if err != nil {
				return badRequest(c, err.Error())
			}
			matched = append(matched, hits...)
			if len(batch) < filterBatchSize {
				break
			}
		}
		assets = paginate(matched, limit, offset)
	} else {
		list, err := s.Store.ListAudioAssets(ctx, &store.FindAudioAsset{Limit: limit, Offset: offset})
		if err != nil {
			slog.Error("failed to list audio assets", "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list audio assets"})
		}
		assets = list
	}

	views := make([]*AudioAsset, 0, len(assets))
	for _, asset := range assets {
		views = append(views, s.convertAudioAsset(asset))
	}
	return c.JSON(http.StatusOK, map[string]any{"assets": views})
}

// GetAudioAsset returns one asset with a live existence check.
// GET /api/v1/audio-assets/:hash
func (s *APIV1Service) GetAudioAsset(c echo.Context) error {
	ctx := c.Request().Context()
	hash := c.Param("hash")
	asset, err := s.Store.GetAudioAsset(ctx, &store.FindAudioAsset{Hash: &hash})
	if err != nil {
		slog.Error("failed to get audio asset", "hash", hash, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get audio asset"})
	}
	if asset == nil {
		return notFound(c, "Audio asset not found")
	}

	view := s.convertAudioAsset(asset)
	exists, err := s.Objects.Exists(ctx, asset.ObjectKey)
	if err != nil {
		slog.Warn("failed to check audio object", "key", asset.ObjectKey, "error", err)
	}
	view.Exists = &exists
	return c.JSON(http.StatusOK, view)
}

func paginate[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return []T{}
	}
	end := min(offset+limit, len(list))
	return list[offset:end]
}
