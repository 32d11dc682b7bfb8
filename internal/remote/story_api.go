package remote

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/storynest/storynest/internal/models"
)

// StoryAPI is the story feature's remote data source.
type StoryAPI struct {
	client *Client
}

// NewStoryAPI creates a StoryAPI over a shared Client.
func NewStoryAPI(client *Client) *StoryAPI {
	return &StoryAPI{client: client}
}

type storyPayload struct {
	ID                string `json:"id,omitempty"`
	ParentID          string `json:"parent_id"`
	Title             string `json:"title"`
	Content           string `json:"content"`
	Source            string `json:"source"`
	WordCount         int    `json:"word_count"`
	Keywords          string `json:"keywords,omitempty"`
	EstimatedDuration int    `json:"estimated_duration,omitempty"`
	AudioURL          string `json:"audio_url,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

func storyToPayload(st *models.Story) *storyPayload {
	return &storyPayload{
		ID:                st.ID.String(),
		ParentID:          st.ParentID.String(),
		Title:             st.Title,
		Content:           st.Content,
		Source:            string(st.Source),
		WordCount:         st.WordCount,
		Keywords:          st.Keywords,
		EstimatedDuration: st.EstimatedDuration,
		AudioURL:          st.RemoteAudioURL,
		CreatedAt:         formatTime(st.CreatedAt),
		UpdatedAt:         formatTime(st.UpdatedAt),
	}
}

func (p *storyPayload) toModel() *models.Story {
	return &models.Story{
		ID:                models.ID(p.ID),
		ParentID:          models.ID(p.ParentID),
		Title:             p.Title,
		Content:           p.Content,
		Source:            models.StorySource(p.Source),
		WordCount:         p.WordCount,
		Keywords:          p.Keywords,
		EstimatedDuration: p.EstimatedDuration,
		RemoteAudioURL:    p.AudioURL,
		CreatedAt:         parseTime(p.CreatedAt),
		UpdatedAt:         parseTime(p.UpdatedAt),
		SyncStatus:        models.SyncStatusSynced,
	}
}

// List fetches all stories for a parent.
func (a *StoryAPI) List(ctx context.Context, parentID models.ID) ([]*models.Story, error) {
	var payloads []*storyPayload
	path := listPath("/stories", "parent_id="+url.QueryEscape(parentID.String()))
	if err := a.client.do(ctx, http.MethodGet, path, nil, &payloads); err != nil {
		return nil, err
	}
	stories := make([]*models.Story, 0, len(payloads))
	for _, p := range payloads {
		stories = append(stories, p.toModel())
	}
	return stories, nil
}

// Get fetches one story by server id.
func (a *StoryAPI) Get(ctx context.Context, id models.ID) (*models.Story, error) {
	var payload storyPayload
	if err := a.client.do(ctx, http.MethodGet, "/stories/"+url.PathEscape(id.String()), nil, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// Create pushes a locally-created story. The response carries the
// server-assigned id and authoritative fields.
func (a *StoryAPI) Create(ctx context.Context, st *models.Story) (*models.Story, error) {
	body := storyToPayload(st)
	body.ID = "" // server assigns
	var payload storyPayload
	if err := a.client.do(ctx, http.MethodPost, "/stories", body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// Update pushes a local mutation of a remotely-known story.
func (a *StoryAPI) Update(ctx context.Context, st *models.Story) (*models.Story, error) {
	var payload storyPayload
	path := "/stories/" + url.PathEscape(st.ID.String())
	if err := a.client.do(ctx, http.MethodPatch, path, storyToPayload(st), &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// Delete removes a story remotely.
func (a *StoryAPI) Delete(ctx context.Context, id models.ID) error {
	return a.client.do(ctx, http.MethodDelete, "/stories/"+url.PathEscape(id.String()), nil, nil)
}

// Generate asks the backend's LLM to produce a story from keywords. This
// flow has no offline form.
func (a *StoryAPI) Generate(ctx context.Context, parentID models.ID, keywords []string) (*models.Story, error) {
	body := map[string]interface{}{
		"parent_id": parentID.String(),
		"keywords":  strings.Join(keywords, ","),
	}
	var payload storyPayload
	if err := a.client.do(ctx, http.MethodPost, "/stories/generate", body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// DownloadAudio fetches narration audio for offline playback.
func (a *StoryAPI) DownloadAudio(ctx context.Context, audioURL string) ([]byte, error) {
	return a.client.download(ctx, audioURL)
}
