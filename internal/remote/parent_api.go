package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/storynest/storynest/internal/models"
)

// ParentAPI is the parent account's remote data source.
type ParentAPI struct {
	client *Client
}

// NewParentAPI creates a ParentAPI over a shared Client.
func NewParentAPI(client *Client) *ParentAPI {
	return &ParentAPI{client: client}
}

type parentPayload struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (p *parentPayload) toModel() *models.Parent {
	return &models.Parent{
		ID:         models.ID(p.ID),
		Name:       p.Name,
		Email:      p.Email,
		CreatedAt:  parseTime(p.CreatedAt),
		UpdatedAt:  parseTime(p.UpdatedAt),
		SyncStatus: models.SyncStatusSynced,
	}
}

// Get fetches the parent profile by server id.
func (a *ParentAPI) Get(ctx context.Context, id models.ID) (*models.Parent, error) {
	var payload parentPayload
	if err := a.client.do(ctx, http.MethodGet, "/parents/"+url.PathEscape(id.String()), nil, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// Update pushes a local mutation of the parent profile.
func (a *ParentAPI) Update(ctx context.Context, p *models.Parent) (*models.Parent, error) {
	body := &parentPayload{Name: p.Name, Email: p.Email}
	var payload parentPayload
	path := "/parents/" + url.PathEscape(p.ID.String())
	if err := a.client.do(ctx, http.MethodPatch, path, body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}
