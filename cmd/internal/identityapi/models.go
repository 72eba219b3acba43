package identityapi

import (
	"time"

	"identd/cmd/identity"
)

type identityResponse struct {
	ID        int64     `json:"id"`
	AccessKey string    `json:"access_key"`
	CreatedAt time.Time `json:"created_at"`
}

func toIdentityResponse(in identity.Identity) identityResponse {
	return identityResponse{
		ID:        in.ID,
		AccessKey: in.AccessKey,
		CreatedAt: in.CreatedAt.UTC(),
	}
}
