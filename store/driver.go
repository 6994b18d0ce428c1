package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Question model related methods.
	CreateQuestion(ctx context.Context, create *Question) (*Question, error)
	ListQuestions(ctx context.Context, find *FindQuestion) ([]*Question, error)
	UpdateQuestion(ctx context.Context, update *UpdateQuestion) (*Question, error)
	DeleteQuestion(ctx context.Context, delete *DeleteQuestion) error

	// EmotionCard model related methods.
	CreateEmotionCard(ctx context.Context, create *EmotionCard) (*EmotionCard, error)
	ListEmotionCards(ctx context.Context, find *FindEmotionCard) ([]*EmotionCard, error)
	UpdateEmotionCard(ctx context.Context, update *UpdateEmotionCard) (*EmotionCard, error)
	DeleteEmotionCard(ctx context.Context, delete *DeleteEmotionCard) error

	// AudioAsset model related methods.
	UpsertAudioAsset(ctx context.Context, upsert *AudioAsset) (*AudioAsset, error)
	ListAudioAssets(ctx context.Context, find *FindAudioAsset) ([]*AudioAsset, error)
	GetAudioAssetSummary(ctx context.Context) (*AudioAssetSummary, error)

	// TTSUsage model related methods.
	CreateTTSUsage(ctx context.Context, create *TTSUsage) (*TTSUsage, error)
	ListTTSUsage(ctx context.Context, find *FindTTSUsage) ([]*TTSUsage, error)
	GetTTSUsageSummary(ctx context.Context, since int64) (*TTSUsageSummary, error)

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	ListSystemSettings(ctx context.Context, find *FindSystemSetting) ([]*SystemSetting, error)
}
