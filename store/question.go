package store

import (
	"context"
	"time"
)

// Question is an AAC question card. AudioURL holds the stored audio reference,
// either a bare object key or a full public object URL, and is empty until
// audio has been linked.
type Question struct {
	ID        string
	Text      string
	AudioURL  string
	CreatedTs int64
	UpdatedTs int64
}

type FindQuestion struct {
	ID *string

	// Pagination
	Limit  int
	Offset int
}

type UpdateQuestion struct {
	ID        string
	UpdatedTs *int64
	Text      *string
	AudioURL  *string
}

type DeleteQuestion struct {
	ID string
}

func (s *Store) CreateQuestion(ctx context.Context, create *Question) (*Question, error) {
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	question, err := s.driver.CreateQuestion(ctx, create)
	if err != nil {
		return nil, err
	}
	s.questionCache.Set(ctx, question.ID, question)
	return question, nil
}

func (s *Store) ListQuestions(ctx context.Context, find *FindQuestion) ([]*Question, error) {
	return s.driver.ListQuestions(ctx, find)
}

// GetQuestion returns nil, nil when the question does not exist.
func (s *Store) GetQuestion(ctx context.Context, find *FindQuestion) (*Question, error) {
	if find.ID != nil {
		if cached, ok := s.questionCache.Get(ctx, *find.ID); ok {
			if question, ok := cached.(*Question); ok {
				return question, nil
			}
		}
	}

	list, err := s.ListQuestions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	question := list[0]
	s.questionCache.Set(ctx, question.ID, question)
	return question, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, update *UpdateQuestion) (*Question, error) {
	if update.UpdatedTs == nil {
		now := time.Now().Unix()
		update.UpdatedTs = &now
	}
	question, err := s.driver.UpdateQuestion(ctx, update)
	if err != nil {
		return nil, err
	}
	s.questionCache.Set(ctx, question.ID, question)
	return question, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, delete *DeleteQuestion) error {
	if err := s.driver.DeleteQuestion(ctx, delete); err != nil {
		return err
	}
	s.questionCache.Delete(ctx, delete.ID)
	return nil
}
