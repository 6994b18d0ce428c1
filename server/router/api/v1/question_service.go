package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/speechcare/plugin/storage"
	"github.com/hrygo/speechcare/store"
)

type Question struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	AudioURL  string `json:"audioUrl"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

type EmotionCard struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	AudioURL  string `json:"audioUrl"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

type createQuestionRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type createEmotionCardRequest struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// audioURL renders a stored reference as a fetchable URL. Full URLs pass through.
func (s *APIV1Service) audioURL(reference string) string {
	if reference == "" || strings.Contains(reference, "://") {
		return reference
	}
	if key, ok := storage.ObjectKeyFromReference(reference, s.Objects.Bucket()); ok {
		return s.Objects.PublicURL(key)
	}
	return reference
}

func (s *APIV1Service) convertQuestion(question *store.Question) *Question {
	return &Question{
		ID:        question.ID,
		Text:      question.Text,
		AudioURL:  s.audioURL(question.AudioURL),
		CreatedTs: question.CreatedTs,
		UpdatedTs: question.UpdatedTs,
	}
}

func (s *APIV1Service) convertEmotionCard(card *store.EmotionCard) *EmotionCard {
	return &EmotionCard{
		ID:        card.ID,
		Label:     card.Label,
		AudioURL:  s.audioURL(card.AudioURL),
		CreatedTs: card.CreatedTs,
		UpdatedTs: card.UpdatedTs,
	}
}

// CreateQuestion creates a question card. The id is generated when omitted.
// POST /api/v1/questions
func (s *APIV1Service) CreateQuestion(c echo.Context) error {
	ctx := c.Request().Context()
	var req createQuestionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return badRequest(c, "text is required")
	}
	if req.ID == "" {
		req.ID = shortuuid.New()
	}

	existing, err := s.Store.GetQuestion(ctx, &store.FindQuestion{ID: &req.ID})
	if err != nil {
		slog.Error("failed to get question", "id", req.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create question"})
	}
	if existing != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Question already exists"})
	}

	question, err := s.Store.CreateQuestion(ctx, &store.Question{ID: req.ID, Text: req.Text})
	if err != nil {
		slog.Error("failed to create question", "id", req.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create question"})
	}
	return c.JSON(http.StatusCreated, s.convertQuestion(question))
}

// ListQuestions GET /api/v1/questions?limit=&offset=
func (s *APIV1Service) ListQuestions(c echo.Context) error {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return badRequest(c, "Invalid pagination parameters")
	}
	list, err := s.Store.ListQuestions(c.Request().Context(), &store.FindQuestion{Limit: limit, Offset: offset})
	if err != nil {
		slog.Error("failed to list questions", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list questions"})
	}
	questions := make([]*Question, 0, len(list))
	for _, question := range list {
		questions = append(questions, s.convertQuestion(question))
	}
	return c.JSON(http.StatusOK, map[string]any{"questions": questions})
}

// GetQuestion GET /api/v1/questions/:id
func (s *APIV1Service) GetQuestion(c echo.Context) error {
	id := c.Param("id")
	question, err := s.Store.GetQuestion(c.Request().Context(), &store.FindQuestion{ID: &id})
	if err != nil {
		slog.Error("failed to get question", "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get question"})
	}
	if question == nil {
		return notFound(c, "Question not found")
	}
	return c.JSON(http.StatusOK, s.convertQuestion(question))
}

// DeleteQuestion DELETE /api/v1/questions/:id
func (s *APIV1Service) DeleteQuestion(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	question, err := s.Store.GetQuestion(ctx, &store.FindQuestion{ID: &id})
	if err != nil {
		slog.Error("failed to get question", "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete question"})
	}
	if question == nil {
		return notFound(c, "Question not found")
	}
	if err := s.Store.DeleteQuestion(ctx, &store.DeleteQuestion{ID: id}); err != nil {
		slog.Error("failed to delete question", "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete question"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearQuestionAudio unlinks stored audio so the next request resolves by content hash.
// DELETE /api/v1/questions/:id/audio
func (s *APIV1Service) ClearQuestionAudio(c echo.Context) error {
	return s.clearAudio(c, store.EntityKindQuestion)
}

// CreateEmotionCard POST /api/v1/emotion-cards
func (s *APIV1Service) CreateEmotionCard(c echo.Context) error {
	ctx := c.Request().Context()
	var req createEmotionCardRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	req.Label = strings.TrimSpace(req.Label)
	if req.Label == "" {
		return badRequest(c, "label is required")
	}
	if req.ID == "" {
		req.ID = shortuuid.New()
	}

	existing, err := s.Store.GetEmotionCard(ctx, &store.FindEmotionCard{ID: &req.ID})
	if err != nil {
		slog.Error("failed to get emotion card", "id", req.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create emotion card"})
	}
	if existing != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Emotion card already exists"})
	}

	card, err := s.Store.CreateEmotionCard(ctx, &store.EmotionCard{ID: req.ID, Label: req.Label})
	if err != nil {
		slog.Error("failed to create emotion card", "id", req.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create emotion card"})
	}
	return c.JSON(http.StatusCreated, s.convertEmotionCard(card))
}

// ListEmotionCards GET /api/v1/emotion-cards?limit=&offset=
func (s *APIV1Service) ListEmotionCards(c echo.Context) error {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return badRequest(c, "Invalid pagination parameters")
	}
	list, err := s.Store.ListEmotionCards(c.Request().Context(), &store.FindEmotionCard{Limit: limit, Offset: offset})
	if err != nil {
		slog.Error("failed to list emotion cards", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list emotion cards"})
	}
	cards := make([]*EmotionCard, 0, len(list))
	for _, card := range list {
		cards = append(cards, s.convertEmotionCard(card))
	}
	return c.JSON(http.StatusOK, map[string]any{"emotionCards": cards})
}

// GetEmotionCard GET /api/v1/emotion-cards/:id
func (s *APIV1Service) GetEmotionCard(c echo.Context) error {
	id := c.Param("id")
	card, err := s.Store.GetEmotionCard(c.Request().Context(), &store.FindEmotionCard{ID: &id})
	if err != nil {
		slog.Error("failed to get emotion card", "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get emotion card"})
	}
	if card == nil {
		return notFound(c, "Emotion card not found")
	}
	return c.JSON(http.StatusOK, s.convertEmotionCard(card))
}

// DeleteEmotionCard DELETE /api/v1/emotion-cards/:id
func (s *APIV1Service) DeleteEmotionCard(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	card, err := s.Store.GetEmotionCard(ctx, &store.FindEmotionCard{ID: &id})
	if err != nil {
		slog.Error("failed to get emotion card", "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete emotion card"})
	}
	if card == nil {
		return notFound(c, "Emotion card not found")
	}
	if err := s.Store.DeleteEmotionCard(ctx, &store.DeleteEmotionCard{ID: id}); err != nil {
		slog.Error("failed to delete emotion card", "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete emotion card"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearEmotionCardAudio DELETE /api/v1/emotion-cards/:id/audio
func (s *APIV1Service) ClearEmotionCardAudio(c echo.Context) error {
	return s.clearAudio(c, store.EntityKindEmotionCard)
}

func (s *APIV1Service) clearAudio(c echo.Context, kind store.EntityKind) error {
	id := c.Param("id")
	if err := s.Store.SetAudioReference(c.Request().Context(), kind, id, ""); err != nil {
		if errors.Is(err, store.ErrEntityNotFound) {
			return notFound(c, "Entity not found")
		}
		slog.Error("failed to clear audio reference", "kind", kind, "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to clear audio"})
	}
	return c.NoContent(http.StatusNoContent)
}
