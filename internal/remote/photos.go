package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PhotosClient talks to a photo-library REST API: create-or-find
// album, raw-bytes upload yielding a transient token, and batch
// creation attaching tokens to an album. Credential refresh is
// transparent: a rejected bearer token is refreshed and the request
// retried once before the failure propagates.
type PhotosClient struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
	log     zerolog.Logger
}

// NewPhotosClient creates a PhotosClient against baseURL (no trailing
// slash) using the given credential source.
func NewPhotosClient(baseURL string, creds CredentialSource, log zerolog.Logger) *PhotosClient {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &PhotosClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: tr, Timeout: 5 * time.Minute},
		creds:   creds,
		log:     log,
	}
}

type album struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type albumList struct {
	Albums        []album `json:"albums"`
	NextPageToken string  `json:"nextPageToken"`
}

// EnsureAlbum returns the ID of an existing album with the given
// title, creating one if none exists. The lookup makes a crash between
// remote creation and ledger commit reuse the orphaned album instead
// of duplicating it.
func (c *PhotosClient) EnsureAlbum(ctx context.Context, name string) (string, error) {
	if id, err := c.findAlbum(ctx, name); err != nil || id != "" {
		return id, err
	}

	body, err := json.Marshal(map[string]any{"album": map[string]string{"title": name}})
	if err != nil {
		return "", &Error{Op: "photos.EnsureAlbum", Code: CodeInvalid, Err: err}
	}

	var created album
	if err := c.doJSON(ctx, "photos.EnsureAlbum", http.MethodPost, "/v1/albums", body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &Error{Op: "photos.EnsureAlbum", Code: CodeInvalid, Err: fmt.Errorf("create returned no album id")}
	}
	c.log.Debug().Str("album", name).Str("album_id", created.ID).Msg("album created")
	return created.ID, nil
}

func (c *PhotosClient) findAlbum(ctx context.Context, name string) (string, error) {
	pageToken := ""
	for {
		path := "/v1/albums?pageSize=50"
		if pageToken != "" {
			path += "&pageToken=" + url.QueryEscape(pageToken)
		}
		var page albumList
		if err := c.doJSON(ctx, "photos.EnsureAlbum", http.MethodGet, path, nil, &page); err != nil {
			return "", err
		}
		for _, a := range page.Albums {
			if a.Title == name {
				return a.ID, nil
			}
		}
		if page.NextPageToken == "" {
			return "", nil
		}
		pageToken = page.NextPageToken
	}
}

// UploadMedia uploads the raw bytes of the file at path and returns
// the upload token issued by the API.
func (c *PhotosClient) UploadMedia(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	resp, err := c.send(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/uploads", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("X-Goog-Upload-File-Name", filepath.Base(path))
		req.Header.Set("X-Goog-Upload-Protocol", "raw")
		return req, nil
	})
	if err != nil {
		return "", asRemoteError("photos.UploadMedia", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Op: "photos.UploadMedia", Code: CodeTransient, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", classify("photos.UploadMedia", resp.StatusCode, body)
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", &Error{Op: "photos.UploadMedia", Code: CodeInvalid, Err: fmt.Errorf("empty upload token")}
	}
	return token, nil
}

type mediaItemResult struct {
	MediaItem struct {
		ID string `json:"id"`
	} `json:"mediaItem"`
	Status struct {
		Message string `json:"message"`
	} `json:"status"`
}

type batchCreateResponse struct {
	Results []mediaItemResult `json:"newMediaItemResults"`
}

// AddToAlbum creates a media item from an upload token inside the
// given album (or the library root for LibraryAlbumID) and returns the
// permanent media ID.
func (c *PhotosClient) AddToAlbum(ctx context.Context, albumID, uploadToken string) (string, error) {
	payload := map[string]any{
		"newMediaItems": []map[string]any{
			{"simpleMediaItem": map[string]string{"uploadToken": uploadToken}},
		},
	}
	if albumID != LibraryAlbumID {
		payload["albumId"] = albumID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{Op: "photos.AddToAlbum", Code: CodeInvalid, Err: err}
	}

	var created batchCreateResponse
	if err := c.doJSON(ctx, "photos.AddToAlbum", http.MethodPost, "/v1/mediaItems:batchCreate", body, &created); err != nil {
		return "", err
	}
	if len(created.Results) == 0 || created.Results[0].MediaItem.ID == "" {
		msg := "no media item in response"
		if len(created.Results) > 0 && created.Results[0].Status.Message != "" {
			msg = created.Results[0].Status.Message
		}
		return "", &Error{Op: "photos.AddToAlbum", Code: CodeInvalid, Err: fmt.Errorf("%s", msg)}
	}
	return created.Results[0].MediaItem.ID, nil
}

func (c *PhotosClient) doJSON(ctx context.Context, op, method, path string, body []byte, out any) error {
	resp, err := c.send(ctx, func() (*http.Request, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return asRemoteError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Code: CodeTransient, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return classify(op, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{Op: op, Code: CodeInvalid, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}

// send executes a request built by makeReq with a bearer token. On a
// 401 the credential is refreshed and the request rebuilt and retried
// exactly once; any second rejection propagates.
func (c *PhotosClient) send(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	refreshed := false
	for {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return nil, err
		}
		req, err := makeReq()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized && !refreshed {
			resp.Body.Close()
			c.log.Debug().Msg("bearer token rejected, refreshing credentials")
			if _, err := c.creds.Refresh(ctx); err != nil {
				return nil, err
			}
			refreshed = true
			continue
		}
		return resp, nil
	}
}

// asRemoteError passes through already-classified errors and treats
// anything else (transport failures, timeouts) as transient.
func asRemoteError(op string, err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return &Error{Op: op, Code: CodeTransient, Err: err}
}

// classify maps an HTTP status to the adapter error taxonomy. Quota
// exhaustion and bad credentials abort the folder; rate limits and
// server errors are retried with backoff.
func classify(op string, status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	err := fmt.Errorf("status %d: %s", status, msg)

	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Op: op, Code: CodeRateLimited, Err: err}
	case status == http.StatusUnauthorized:
		return &Error{Op: op, Code: CodeUnauthorized, Err: err}
	case status == http.StatusForbidden:
		return &Error{Op: op, Code: CodeQuotaExhausted, Err: err}
	case status >= 500:
		return &Error{Op: op, Code: CodeTransient, Err: err}
	default:
		return &Error{Op: op, Code: CodeInvalid, Err: err}
	}
}
