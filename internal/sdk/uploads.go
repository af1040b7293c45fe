package sdk

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/imroc/req/v3"
)

const (
	v1Uploads        = "/api/v1/uploads"
	v1UploadSession  = "/api/v1/uploads/{session}"
	v1UploadChunk    = "/api/v1/uploads/{session}/chunks/{index}"
	v1UploadComplete = "/api/v1/uploads/{session}/complete"
)

type UploadsAPI struct {
	client *req.Client
}

func newUploadsAPI(client *req.Client) *UploadsAPI {
	return &UploadsAPI{
		client: client,
	}
}

// Init opens an upload session
func (u *UploadsAPI) Init(ctx context.Context, params *InitUploadRequest) (apiResp *InitUploadResponse, err error) {
	resp, err := u.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&apiResp).
		Post(v1Uploads)

	if err := handleAPIError(resp, err, "upload init"); err != nil {
		return nil, err
	}

	return apiResp, nil
}

// PutChunk sends one chunk as the raw request body
func (u *UploadsAPI) PutChunk(ctx context.Context, sessionID string, index int, data []byte) (apiResp *ChunkResponse, err error) {
	resp, err := u.client.R().
		SetContext(ctx).
		SetPathParam("session", sessionID).
		SetPathParam("index", strconv.Itoa(index)).
		SetHeader("Content-Type", "application/octet-stream").
		SetBodyBytes(data).
		SetSuccessResult(&apiResp).
		Put(v1UploadChunk)

	if err := handleAPIError(resp, err, fmt.Sprintf("upload chunk %d", index)); err != nil {
		return nil, err
	}

	return apiResp, nil
}

// Complete assembles the session into a stored object
func (u *UploadsAPI) Complete(ctx context.Context, sessionID string) (apiResp *StoredObject, err error) {
	resp, err := u.client.R().
		SetContext(ctx).
		SetPathParam("session", sessionID).
		SetSuccessResult(&apiResp).
		Post(v1UploadComplete)

	if err := handleAPIError(resp, err, "upload complete"); err != nil {
		return nil, err
	}

	return apiResp, nil
}

func (u *UploadsAPI) Status(ctx context.Context, sessionID string) (apiResp *UploadStatus, err error) {
	resp, err := u.client.R().
		SetContext(ctx).
		SetPathParam("session", sessionID).
		SetSuccessResult(&apiResp).
		Get(v1UploadSession)

	if err := handleAPIError(resp, err, "upload status"); err != nil {
		return nil, err
	}

	return apiResp, nil
}

func (u *UploadsAPI) Cancel(ctx context.Context, sessionID string) error {
	resp, err := u.client.R().
		SetContext(ctx).
		SetPathParam("session", sessionID).
		Delete(v1UploadSession)

	return handleAPIError(resp, err, "upload cancel")
}

// Upload sends a whole file, resuming a previous attempt when its state file is still valid
func (u *UploadsAPI) Upload(ctx context.Context, params *UploadParams) (*StoredObject, error) {
	info, err := os.Stat(params.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}

	if info.Size() == 0 {
		return nil, ErrEmptyFile
	}

	uploader := newResumableUploader(u, params, info)
	return uploader.Upload(ctx)
}
