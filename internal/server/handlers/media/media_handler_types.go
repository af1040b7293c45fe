package media

import "github.com/cadencefm/cadence/internal/server/media"

type SearchRequest struct {
	Query string `form:"q"`
	Limit int    `form:"limit"`
}

type SearchResponse struct {
	Objects []*media.StoredObject `json:"objects"`
}

type ObjectURI struct {
	ID string `uri:"id" binding:"required"`
}

type SegmentURI struct {
	ID   string `uri:"id" binding:"required"`
	Name string `uri:"name" binding:"required"`
}

type SegmentResponse struct {
	Key  string `json:"key"`
	ETag string `json:"etag"`
	Size int64  `json:"size"`
}
