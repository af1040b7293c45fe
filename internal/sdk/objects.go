package sdk

import (
	"context"
	"strconv"

	"github.com/imroc/req/v3"
)

const (
	v1Objects = "/api/v1/objects"
	v1Object  = "/api/v1/objects/{id}"
)

type ObjectsAPI struct {
	client *req.Client
}

func newObjectsAPI(client *req.Client) *ObjectsAPI {
	return &ObjectsAPI{
		client: client,
	}
}

func (o *ObjectsAPI) Get(ctx context.Context, id string) (apiResp *StoredObject, err error) {
	resp, err := o.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetSuccessResult(&apiResp).
		Get(v1Object)

	if err := handleAPIError(resp, err, "object get"); err != nil {
		return nil, err
	}

	return apiResp, nil
}

// Search lists objects whose name contains query. A zero limit uses the server default
func (o *ObjectsAPI) Search(ctx context.Context, query string, limit int) ([]*StoredObject, error) {
	var apiResp SearchResponse

	r := o.client.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetSuccessResult(&apiResp)
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}

	resp, err := r.Get(v1Objects)
	if err := handleAPIError(resp, err, "object search"); err != nil {
		return nil, err
	}

	return apiResp.Objects, nil
}
