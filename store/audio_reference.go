package store

import (
	"context"

	"github.com/pkg/errors"
)

// EntityKind names a record type that can carry a linked audio reference.
type EntityKind string

const (
	EntityKindQuestion    EntityKind = "question"
	EntityKindEmotionCard EntityKind = "emotion_card"
)

func (k EntityKind) Valid() bool {
	return k == EntityKindQuestion || k == EntityKindEmotionCard
}

// ErrEntityNotFound is returned when the referenced question or emotion card does not exist.
var ErrEntityNotFound = errors.New("entity not found")

// GetAudioReference returns the stored audio reference of an entity. An empty
// reference with a nil error means the entity exists but has no audio yet.
// It always reads the driver so references repointed by other writers are seen.
func (s *Store) GetAudioReference(ctx context.Context, kind EntityKind, id string) (string, error) {
	switch kind {
	case EntityKindQuestion:
		list, err := s.driver.ListQuestions(ctx, &FindQuestion{ID: &id})
		if err != nil {
			return "", errors.Wrapf(err, "failed to get question %s", id)
		}
		if len(list) == 0 {
			return "", ErrEntityNotFound
		}
		s.questionCache.Set(ctx, list[0].ID, list[0])
		return list[0].AudioURL, nil
	case EntityKindEmotionCard:
		list, err := s.driver.ListEmotionCards(ctx, &FindEmotionCard{ID: &id})
		if err != nil {
			return "", errors.Wrapf(err, "failed to get emotion card %s", id)
		}
		if len(list) == 0 {
			return "", ErrEntityNotFound
		}
		s.emotionCardCache.Set(ctx, list[0].ID, list[0])
		return list[0].AudioURL, nil
	default:
		return "", errors.Errorf("unsupported entity kind %q", kind)
	}
}

// SetAudioReference overwrites the audio reference of an entity. An empty
// reference clears the link.
func (s *Store) SetAudioReference(ctx context.Context, kind EntityKind, id, reference string) error {
	switch kind {
	case EntityKindQuestion:
		if _, err := s.UpdateQuestion(ctx, &UpdateQuestion{ID: id, AudioURL: &reference}); err != nil {
			return errors.Wrapf(err, "failed to update question %s", id)
		}
	case EntityKindEmotionCard:
		if _, err := s.UpdateEmotionCard(ctx, &UpdateEmotionCard{ID: id, AudioURL: &reference}); err != nil {
			return errors.Wrapf(err, "failed to update emotion card %s", id)
		}
	default:
		return errors.Errorf("unsupported entity kind %q", kind)
	}
	return nil
}
