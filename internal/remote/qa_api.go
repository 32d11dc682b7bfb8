package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/storynest/storynest/internal/models"
)

// QAAPI is the Q&A feature's remote data source.
type QAAPI struct {
	client *Client
}

// NewQAAPI creates a QAAPI over a shared Client.
func NewQAAPI(client *Client) *QAAPI {
	return &QAAPI{client: client}
}

type qaSessionPayload struct {
	ID           string `json:"id,omitempty"`
	StoryID      string `json:"story_id"`
	Status       string `json:"status,omitempty"`
	MessageCount int    `json:"message_count,omitempty"`
	StartedAt    string `json:"started_at,omitempty"`
	EndedAt      string `json:"ended_at,omitempty"`
}

func (p *qaSessionPayload) toModel() *models.QASession {
	return &models.QASession{
		ID:           models.ID(p.ID),
		StoryID:      models.ID(p.StoryID),
		Status:       models.QASessionStatus(p.Status),
		MessageCount: p.MessageCount,
		StartedAt:    parseTime(p.StartedAt),
		EndedAt:      parseTime(p.EndedAt),
		SyncStatus:   models.SyncStatusSynced,
	}
}

type qaMessagePayload struct {
	ID        string `json:"id,omitempty"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	InScope   *bool  `json:"in_scope,omitempty"`
	AudioURL  string `json:"audio_url,omitempty"`
	Sequence  int    `json:"sequence"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (p *qaMessagePayload) toModel() *models.QAMessage {
	return &models.QAMessage{
		ID:         models.ID(p.ID),
		SessionID:  models.ID(p.SessionID),
		Role:       models.MessageRole(p.Role),
		Content:    p.Content,
		InScope:    p.InScope,
		AudioURL:   p.AudioURL,
		Sequence:   p.Sequence,
		CreatedAt:  parseTime(p.CreatedAt),
		SyncStatus: models.SyncStatusSynced,
	}
}

// CreateSession registers a new Q&A session remotely.
func (a *QAAPI) CreateSession(ctx context.Context, sess *models.QASession) (*models.QASession, error) {
	body := &qaSessionPayload{
		StoryID:   sess.StoryID.String(),
		Status:    string(sess.Status),
		StartedAt: formatTime(sess.StartedAt),
	}
	var payload qaSessionPayload
	if err := a.client.do(ctx, http.MethodPost, "/qa/sessions", body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// UpdateSession pushes a session state change (completion, timeout).
func (a *QAAPI) UpdateSession(ctx context.Context, sess *models.QASession) (*models.QASession, error) {
	body := &qaSessionPayload{
		Status:       string(sess.Status),
		MessageCount: sess.MessageCount,
		EndedAt:      formatTime(sess.EndedAt),
	}
	var payload qaSessionPayload
	path := "/qa/sessions/" + url.PathEscape(sess.ID.String())
	if err := a.client.do(ctx, http.MethodPatch, path, body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// DeleteSession removes a session remotely.
func (a *QAAPI) DeleteSession(ctx context.Context, id models.ID) error {
	return a.client.do(ctx, http.MethodDelete, "/qa/sessions/"+url.PathEscape(id.String()), nil, nil)
}

// askResponse carries both sides of one resolved turn: the child question
// as the server recorded it and the assistant's scoped answer.
type askResponse struct {
	Question qaMessagePayload `json:"question"`
	Answer   qaMessagePayload `json:"answer"`
}

// Ask submits a child question for LLM answering scoped to the story.
// This flow has no offline form.
func (a *QAAPI) Ask(ctx context.Context, sessionID models.ID, msg *models.QAMessage) (question, answer *models.QAMessage, err error) {
	body := &qaMessagePayload{
		SessionID: sessionID.String(),
		Role:      string(msg.Role),
		Content:   msg.Content,
		Sequence:  msg.Sequence,
		CreatedAt: formatTime(msg.CreatedAt),
	}
	var resp askResponse
	path := "/qa/sessions/" + url.PathEscape(sessionID.String()) + "/messages"
	if err := a.client.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Question.toModel(), resp.Answer.toModel(), nil
}

// PushMessage replays a journaled message without requesting an answer,
// used by the sync pass to backfill turns recorded while the session was
// being reconciled.
func (a *QAAPI) PushMessage(ctx context.Context, msg *models.QAMessage) (*models.QAMessage, error) {
	body := &qaMessagePayload{
		SessionID: msg.SessionID.String(),
		Role:      string(msg.Role),
		Content:   msg.Content,
		InScope:   msg.InScope,
		Sequence:  msg.Sequence,
		CreatedAt: formatTime(msg.CreatedAt),
	}
	var payload qaMessagePayload
	if err := a.client.do(ctx, http.MethodPost, "/qa/messages", body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// ListSessions fetches all sessions for a story.
func (a *QAAPI) ListSessions(ctx context.Context, storyID models.ID) ([]*models.QASession, error) {
	var payloads []*qaSessionPayload
	path := listPath("/qa/sessions", "story_id="+url.QueryEscape(storyID.String()))
	if err := a.client.do(ctx, http.MethodGet, path, nil, &payloads); err != nil {
		return nil, err
	}
	sessions := make([]*models.QASession, 0, len(payloads))
	for _, p := range payloads {
		sessions = append(sessions, p.toModel())
	}
	return sessions, nil
}
