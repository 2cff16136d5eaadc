package b2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dumpvault/internal/checksum"
	"github.com/dev-tams/dumpvault/internal/remote"
)

const (
	defaultAuthURL = "https://api.backblazeb2.com"
	defaultTimeout = 5 * time.Minute

	// Files at or below this size upload in one request; larger files go
	// through the multi-part session, split into parts of this size.
	defaultPartSize = 100 * 1024 * 1024

	maxListPageSize = 1000

	contentTypeAuto = "b2/x-auto"
)

// Session is the credential state shared read-only by all data operations
// after Authenticate. It is explicit data rather than hidden client state so
// tests can construct an already-authenticated client.
type Session struct {
	Token       string
	APIURL      string
	DownloadURL string
}

type Options struct {
	Name       string
	KeyID      string
	AppKey     string
	BucketID   string
	BucketName string

	// AuthURL overrides the account-authorization endpoint (tests, proxies).
	AuthURL string

	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Timeout     time.Duration

	// PartSize overrides the single-shot threshold and part size. Tests use
	// small values; production leaves it at the default.
	PartSize int64

	// ListPageSize overrides the listing page size, capped at the API
	// maximum of 1000. Tests use small values to exercise pagination.
	ListPageSize int
}

// Client talks to a B2-style object store. It is used sequentially within a
// run; parts of a multi-part upload are sent one at a time in ascending
// order.
type Client struct {
	name         string
	keyID        string
	appKey       string
	bucketID     string
	bucketName   string
	authURL      string
	partSize     int64
	listPageSize int

	httpc   *http.Client
	retry   retryer
	session *Session
	log     *logrus.Entry
}

func New(opt Options) (*Client, error) {
	if opt.KeyID == "" || opt.AppKey == "" {
		return nil, fmt.Errorf("b2: key_id and app_key are required")
	}
	if opt.BucketID == "" || opt.BucketName == "" {
		return nil, fmt.Errorf("b2: bucket_id and bucket_name are required")
	}

	authURL := strings.TrimRight(opt.AuthURL, "/")
	if authURL == "" {
		authURL = defaultAuthURL
	}
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	partSize := opt.PartSize
	if partSize <= 0 {
		partSize = defaultPartSize
	}
	pageSize := opt.ListPageSize
	if pageSize <= 0 || pageSize > maxListPageSize {
		pageSize = maxListPageSize
	}

	return &Client{
		name:         opt.Name,
		keyID:        opt.KeyID,
		appKey:       opt.AppKey,
		bucketID:     opt.BucketID,
		bucketName:   opt.BucketName,
		authURL:      authURL,
		partSize:     partSize,
		listPageSize: pageSize,
		httpc:        &http.Client{Timeout: timeout},
		retry:        newRetryer(opt.MaxRetries, BackoffPolicy{Base: opt.BackoffBase, Max: opt.BackoffMax}),
		log:          logrus.WithField("storage", opt.Name),
	}, nil
}

// NewAuthenticated returns a client already holding a session. Tests use it
// to start in the authenticated state without a credential exchange.
func NewAuthenticated(opt Options, s Session) (*Client, error) {
	c, err := New(opt)
	if err != nil {
		return nil, err
	}
	c.session = &s
	return c, nil
}

func (c *Client) Name() string { return c.name }

// Authenticate exchanges the key pair for a bearer token plus API and
// download base URLs. Failures are not retried here; the caller decides
// whether to retry the whole run.
func (c *Client) Authenticate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL+"/b2api/v2/b2_authorize_account", nil)
	if err != nil {
		return &AuthError{Err: err}
	}
	req.SetBasicAuth(c.keyID, c.appKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Err: decodeAPIError(resp)}
	}

	var auth authorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return &AuthError{Err: fmt.Errorf("decode authorize response: %w", err)}
	}

	c.session = &Session{
		Token:       auth.AuthorizationToken,
		APIURL:      strings.TrimRight(auth.APIURL, "/"),
		DownloadURL: strings.TrimRight(auth.DownloadURL, "/"),
	}
	c.log.Debug("authenticated against remote store")
	return nil
}

// reauth is handed to the retryer so an expired-token response refreshes the
// session before the next attempt of the same operation.
func (c *Client) reauth(ctx context.Context) func() error {
	return func() error {
		c.log.Warn("auth token expired, re-authenticating")
		return c.Authenticate(ctx)
	}
}

// ListObjects merges listing pages until the remote reports no continuation
// cursor. Any page failure discards partial results and returns a ListError:
// a truncated listing would break the diff's folder-presence check.
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]remote.Object, error) {
	if c.session == nil {
		return nil, ErrNotAuthenticated
	}

	var (
		out   []remote.Object
		start string
	)
	for {
		reqBody := listFileNamesRequest{
			BucketID:      c.bucketID,
			StartFileName: start,
			MaxFileCount:  c.listPageSize,
			Prefix:        prefix,
		}
		var page listFileNamesResponse
		err := c.retry.do(ctx, "b2_list_file_names", func() error {
			page = listFileNamesResponse{}
			return c.apiCall(ctx, "b2_list_file_names", reqBody, &page)
		}, c.reauth(ctx))
		if err != nil {
			return nil, &ListError{Err: err}
		}

		for _, f := range page.Files {
			out = append(out, f.object())
		}
		if page.NextFileName == nil || *page.NextFileName == "" {
			return out, nil
		}
		start = *page.NextFileName
	}
}

// UploadObject uploads the file at localPath under the given object name.
// If an object with exactly that name already exists remotely the existing
// metadata is returned without re-uploading. Files above the part-size
// threshold go through the multi-part session protocol.
func (c *Client) UploadObject(ctx context.Context, localPath, name string) (remote.Object, error) {
	if c.session == nil {
		return remote.Object{}, ErrNotAuthenticated
	}

	existing, err := c.findObject(ctx, name)
	if err != nil {
		return remote.Object{}, &UploadError{Name: name, Err: err}
	}
	if existing != nil {
		c.log.WithField("object", name).Info("object already present, skipping upload")
		return *existing, nil
	}

	fi, err := os.Stat(localPath)
	if err != nil {
		return remote.Object{}, &UploadError{Name: name, Err: fmt.Errorf("stat local file: %w", err)}
	}

	if fi.Size() <= c.partSize {
		return c.uploadSingle(ctx, localPath, name, fi.Size())
	}
	return c.uploadLarge(ctx, localPath, name, fi.Size())
}

// findObject probes for an exact name via a one-entry prefixed listing.
func (c *Client) findObject(ctx context.Context, name string) (*remote.Object, error) {
	reqBody := listFileNamesRequest{
		BucketID:      c.bucketID,
		StartFileName: name,
		MaxFileCount:  1,
		Prefix:        name,
	}
	var page listFileNamesResponse
	err := c.retry.do(ctx, "b2_list_file_names", func() error {
		page = listFileNamesResponse{}
		return c.apiCall(ctx, "b2_list_file_names", reqBody, &page)
	}, c.reauth(ctx))
	if err != nil {
		return nil, err
	}
	if len(page.Files) > 0 && page.Files[0].FileName == name {
		obj := page.Files[0].object()
		return &obj, nil
	}
	return nil, nil
}

func (c *Client) uploadSingle(ctx context.Context, localPath, name string, size int64) (remote.Object, error) {
	sha, err := checksum.File(localPath)
	if err != nil {
		return remote.Object{}, &UploadError{Name: name, Err: err}
	}

	var uploaded fileInfo
	err = c.retry.do(ctx, "b2_upload_file", func() error {
		var target uploadTarget
		if err := c.apiCall(ctx, "b2_get_upload_url", getUploadURLRequest{BucketID: c.bucketID}, &target); err != nil {
			return err
		}

		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("open local file: %w", err)
		}
		defer f.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.UploadURL, f)
		if err != nil {
			return err
		}
		req.ContentLength = size
		req.Header.Set("Authorization", target.AuthorizationToken)
		req.Header.Set("X-Bz-File-Name", escapeFileName(name))
		req.Header.Set("Content-Type", contentTypeAuto)
		req.Header.Set("X-Bz-Content-Sha1", sha)

		uploaded = fileInfo{}
		return c.send(req, &uploaded)
	}, c.reauth(ctx))
	if err != nil {
		return remote.Object{}, &UploadError{Name: name, Err: err}
	}

	c.log.WithFields(logrus.Fields{"object": name, "bytes": size}).Info("uploaded object")
	return uploaded.object(), nil
}

// uploadLarge runs the multi-part session: start, upload each part in strict
// ascending order with its own digest, finalize with the ordered digest
// list. The retry budget is per request, never per session.
func (c *Client) uploadLarge(ctx context.Context, localPath, name string, size int64) (remote.Object, error) {
	var started startLargeFileResponse
	err := c.retry.do(ctx, "b2_start_large_file", func() error {
		started = startLargeFileResponse{}
		return c.apiCall(ctx, "b2_start_large_file", startLargeFileRequest{
			BucketID:    c.bucketID,
			FileName:    name,
			ContentType: contentTypeAuto,
		}, &started)
	}, c.reauth(ctx))
	if err != nil {
		return remote.Object{}, &UploadError{Name: name, Err: err}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return remote.Object{}, &UploadError{Name: name, Err: fmt.Errorf("open local file: %w", err)}
	}
	defer f.Close()

	partCount := int((size + c.partSize - 1) / c.partSize)
	partShas := make([]string, 0, partCount)

	for part := 1; part <= partCount; part++ {
		offset := int64(part-1) * c.partSize
		length := c.partSize
		if remaining := size - offset; remaining < length {
			length = remaining
		}

		sha, err := checksum.Reader(io.NewSectionReader(f, offset, length))
		if err != nil {
			return remote.Object{}, &UploadError{Name: name, Err: fmt.Errorf("part %d: %w", part, err)}
		}

		err = c.retry.do(ctx, "b2_upload_part", func() error {
			var target uploadTarget
			if err := c.apiCall(ctx, "b2_get_upload_part_url", getUploadPartURLRequest{FileID: started.FileID}, &target); err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.UploadURL, io.NewSectionReader(f, offset, length))
			if err != nil {
				return err
			}
			req.ContentLength = length
			req.Header.Set("Authorization", target.AuthorizationToken)
			req.Header.Set("X-Bz-Part-Number", strconv.Itoa(part))
			req.Header.Set("X-Bz-Content-Sha1", sha)

			return c.send(req, nil)
		}, c.reauth(ctx))
		if err != nil {
			return remote.Object{}, &UploadError{Name: name, Err: fmt.Errorf("part %d/%d: %w", part, partCount, err)}
		}

		partShas = append(partShas, sha)
		c.log.WithFields(logrus.Fields{
			"object": name,
			"part":   part,
			"parts":  partCount,
			"bytes":  length,
		}).Info("uploaded part")
	}

	var finished fileInfo
	err = c.retry.do(ctx, "b2_finish_large_file", func() error {
		finished = fileInfo{}
		return c.apiCall(ctx, "b2_finish_large_file", finishLargeFileRequest{
			FileID:        started.FileID,
			PartSha1Array: partShas,
		}, &finished)
	}, c.reauth(ctx))
	if err != nil {
		return remote.Object{}, &UploadError{Name: name, Err: err}
	}

	c.log.WithFields(logrus.Fields{"object": name, "bytes": size, "parts": partCount}).Info("uploaded object")
	return finished.object(), nil
}

// DownloadObject streams the named object into w.
func (c *Client) DownloadObject(ctx context.Context, name string, w io.Writer) error {
	if c.session == nil {
		return ErrNotAuthenticated
	}

	return c.retry.do(ctx, "download_file_by_name", func() error {
		u := c.session.DownloadURL + "/file/" + url.PathEscape(c.bucketName) + "/" + escapeFileName(name)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", c.session.Token)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return decodeAPIError(resp)
		}
		if _, err := io.Copy(w, resp.Body); err != nil {
			return fmt.Errorf("copy download body: %w", err)
		}
		return nil
	}, c.reauth(ctx))
}

// DeleteObject removes one file version.
func (c *Client) DeleteObject(ctx context.Context, name, id string) error {
	if c.session == nil {
		return ErrNotAuthenticated
	}

	return c.retry.do(ctx, "b2_delete_file_version", func() error {
		return c.apiCall(ctx, "b2_delete_file_version", deleteFileVersionRequest{
			FileName: name,
			FileID:   id,
		}, &struct{}{})
	}, c.reauth(ctx))
}

// apiCall posts a JSON body to a v2 endpoint using the session token and
// decodes the 200 response into out.
func (c *Client) apiCall(ctx context.Context, endpoint string, body, out interface{}) error {
	if c.session == nil {
		return ErrNotAuthenticated
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.session.APIURL+"/b2api/v2/"+endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.session.Token)
	req.Header.Set("Content-Type", "application/json")

	return c.send(req, out)
}

// send executes req and decodes a JSON 200 body into out (ignored when out
// is nil).
func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	if er.Message == "" {
		er.Message = strings.TrimSpace(string(body))
	}
	return &apiError{Status: resp.StatusCode, Code: er.Code, Message: er.Message}
}

// escapeFileName percent-encodes an object name for the file-name header and
// download path, keeping path separators intact.
func escapeFileName(name string) string {
	segs := strings.Split(name, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
