package remote

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"

	"github.com/storynest/storynest/internal/models"
)

// VoiceProfileAPI is the voice profile feature's remote data source.
type VoiceProfileAPI struct {
	client *Client
}

// NewVoiceProfileAPI creates a VoiceProfileAPI over a shared Client.
func NewVoiceProfileAPI(client *Client) *VoiceProfileAPI {
	return &VoiceProfileAPI{client: client}
}

type voiceProfilePayload struct {
	ID             string  `json:"id,omitempty"`
	ParentID       string  `json:"parent_id"`
	Name           string  `json:"name"`
	Status         string  `json:"status,omitempty"`
	SampleDuration float64 `json:"sample_duration,omitempty"`
	ModelURL       string  `json:"model_url,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

func (p *voiceProfilePayload) toModel() *models.VoiceProfile {
	return &models.VoiceProfile{
		ID:             models.ID(p.ID),
		ParentID:       models.ID(p.ParentID),
		Name:           p.Name,
		Status:         models.VoiceProfileStatus(p.Status),
		SampleDuration: p.SampleDuration,
		RemoteModelURL: p.ModelURL,
		ErrorMessage:   p.ErrorMessage,
		CreatedAt:      parseTime(p.CreatedAt),
		UpdatedAt:      parseTime(p.UpdatedAt),
		SyncStatus:     models.SyncStatusSynced,
	}
}

// List fetches all voice profiles for a parent.
func (a *VoiceProfileAPI) List(ctx context.Context, parentID models.ID) ([]*models.VoiceProfile, error) {
	var payloads []*voiceProfilePayload
	path := listPath("/voice-profiles", "parent_id="+url.QueryEscape(parentID.String()))
	if err := a.client.do(ctx, http.MethodGet, path, nil, &payloads); err != nil {
		return nil, err
	}
	profiles := make([]*models.VoiceProfile, 0, len(payloads))
	for _, p := range payloads {
		profiles = append(profiles, p.toModel())
	}
	return profiles, nil
}

// Get fetches one voice profile by server id.
func (a *VoiceProfileAPI) Get(ctx context.Context, id models.ID) (*models.VoiceProfile, error) {
	var payload voiceProfilePayload
	if err := a.client.do(ctx, http.MethodGet, "/voice-profiles/"+url.PathEscape(id.String()), nil, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// CreateWithSample uploads a voice sample for cloning. The backend assigns
// the id and drives the cloning lifecycle (pending -> processing -> ready).
// This flow has no offline form.
func (a *VoiceProfileAPI) CreateWithSample(ctx context.Context, vp *models.VoiceProfile, sample []byte) (*models.VoiceProfile, error) {
	body := map[string]interface{}{
		"parent_id":       vp.ParentID.String(),
		"name":            vp.Name,
		"sample_duration": vp.SampleDuration,
		"sample_audio":    base64.StdEncoding.EncodeToString(sample),
	}
	var payload voiceProfilePayload
	if err := a.client.do(ctx, http.MethodPost, "/voice-profiles", body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// Update pushes a local mutation (rename) of a remotely-known profile.
func (a *VoiceProfileAPI) Update(ctx context.Context, vp *models.VoiceProfile) (*models.VoiceProfile, error) {
	body := map[string]interface{}{"name": vp.Name}
	var payload voiceProfilePayload
	path := "/voice-profiles/" + url.PathEscape(vp.ID.String())
	if err := a.client.do(ctx, http.MethodPatch, path, body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// Delete removes a voice profile remotely.
func (a *VoiceProfileAPI) Delete(ctx context.Context, id models.ID) error {
	return a.client.do(ctx, http.MethodDelete, "/voice-profiles/"+url.PathEscape(id.String()), nil, nil)
}
