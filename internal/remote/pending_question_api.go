package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/storynest/storynest/internal/models"
)

// PendingQuestionAPI is the pending question feature's remote data source.
type PendingQuestionAPI struct {
	client *Client
}

// NewPendingQuestionAPI creates a PendingQuestionAPI over a shared Client.
func NewPendingQuestionAPI(client *Client) *PendingQuestionAPI {
	return &PendingQuestionAPI{client: client}
}

type pendingQuestionPayload struct {
	ID         string `json:"id,omitempty"`
	StoryID    string `json:"story_id"`
	Question   string `json:"question"`
	Status     string `json:"status,omitempty"`
	AskedAt    string `json:"asked_at,omitempty"`
	AnsweredAt string `json:"answered_at,omitempty"`
}

func (p *pendingQuestionPayload) toModel() *models.PendingQuestion {
	return &models.PendingQuestion{
		ID:         models.ID(p.ID),
		StoryID:    models.ID(p.StoryID),
		Question:   p.Question,
		Status:     models.PendingQuestionStatus(p.Status),
		AskedAt:    parseTime(p.AskedAt),
		AnsweredAt: parseTime(p.AnsweredAt),
		SyncStatus: models.SyncStatusSynced,
	}
}

// List fetches all pending questions for a story.
func (a *PendingQuestionAPI) List(ctx context.Context, storyID models.ID) ([]*models.PendingQuestion, error) {
	var payloads []*pendingQuestionPayload
	path := listPath("/pending-questions", "story_id="+url.QueryEscape(storyID.String()))
	if err := a.client.do(ctx, http.MethodGet, path, nil, &payloads); err != nil {
		return nil, err
	}
	questions := make([]*models.PendingQuestion, 0, len(payloads))
	for _, p := range payloads {
		questions = append(questions, p.toModel())
	}
	return questions, nil
}

// Create pushes a locally-captured question.
func (a *PendingQuestionAPI) Create(ctx context.Context, pq *models.PendingQuestion) (*models.PendingQuestion, error) {
	body := &pendingQuestionPayload{
		StoryID:  pq.StoryID.String(),
		Question: pq.Question,
		Status:   string(pq.Status),
		AskedAt:  formatTime(pq.AskedAt),
	}
	var payload pendingQuestionPayload
	if err := a.client.do(ctx, http.MethodPost, "/pending-questions", body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// Update pushes a status change (typically answered).
func (a *PendingQuestionAPI) Update(ctx context.Context, pq *models.PendingQuestion) (*models.PendingQuestion, error) {
	body := &pendingQuestionPayload{
		Status:     string(pq.Status),
		AnsweredAt: formatTime(pq.AnsweredAt),
	}
	var payload pendingQuestionPayload
	path := "/pending-questions/" + url.PathEscape(pq.ID.String())
	if err := a.client.do(ctx, http.MethodPatch, path, body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// Delete removes a pending question remotely.
func (a *PendingQuestionAPI) Delete(ctx context.Context, id models.ID) error {
	return a.client.do(ctx, http.MethodDelete, "/pending-questions/"+url.PathEscape(id.String()), nil, nil)
}
