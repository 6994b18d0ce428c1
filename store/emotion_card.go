package store

import (
	"context"
	"time"
)

// EmotionCard is an AAC emotion card. AudioURL holds the stored audio reference,
// either a bare object key or a full public object URL, and is empty until
// audio has been linked.
type EmotionCard struct {
	ID        string
	Label     string
	AudioURL  string
	CreatedTs int64
	UpdatedTs int64
}

type FindEmotionCard struct {
	ID *string

	// Pagination
	Limit  int
	Offset int
}

type UpdateEmotionCard struct {
	ID        string
	UpdatedTs *int64
	Label     *string
	AudioURL  *string
}

type DeleteEmotionCard struct {
	ID string
}

func (s *Store) CreateEmotionCard(ctx context.Context, create *EmotionCard) (*EmotionCard, error) {
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	emotionCard, err := s.driver.CreateEmotionCard(ctx, create)
	if err != nil {
		return nil, err
	}
	s.emotionCardCache.Set(ctx, emotionCard.ID, emotionCard)
	return emotionCard, nil
}

func (s *Store) ListEmotionCards(ctx context.Context, find *FindEmotionCard) ([]*EmotionCard, error) {
	return s.driver.ListEmotionCards(ctx, find)
}

// GetEmotionCard returns nil, nil when the emotionCard does not exist.
func (s *Store) GetEmotionCard(ctx context.Context, find *FindEmotionCard) (*EmotionCard, error) {
	if find.ID != nil {
		if cached, ok := s.emotionCardCache.Get(ctx, *find.ID); ok {
			if emotionCard, ok := cached.(*EmotionCard); ok {
				return emotionCard, nil
			}
		}
	}

	list, err := s.ListEmotionCards(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	emotionCard := list[0]
	s.emotionCardCache.Set(ctx, emotionCard.ID, emotionCard)
	return emotionCard, nil
}

func (s *Store) UpdateEmotionCard(ctx context.Context, update *UpdateEmotionCard) (*EmotionCard, error) {
	if update.UpdatedTs == nil {
		now := time.Now().Unix()
		update.UpdatedTs = &now
	}
	emotionCard, err := s.driver.UpdateEmotionCard(ctx, update)
	if err != nil {
		return nil, err
	}
	s.emotionCardCache.Set(ctx, emotionCard.ID, emotionCard)
	return emotionCard, nil
}

func (s *Store) DeleteEmotionCard(ctx context.Context, delete *DeleteEmotionCard) error {
	if err := s.driver.DeleteEmotionCard(ctx, delete); err != nil {
		return err
	}
	s.emotionCardCache.Delete(ctx, delete.ID)
	return nil
}
