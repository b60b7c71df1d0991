package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/goicq/internal/filter"
)

// maxParallelDownloads bounds concurrent dlink fetches in DownloadFile.
const maxParallelDownloads = 4

// FileInfo is the files/getInfo response.
type FileInfo struct {
	FileList []FileEntry `json:"file_list"`
}

type FileEntry struct {
	DLink    string `json:"dlink"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"filesize,omitempty"`
	MimeType string `json:"mime,omitempty"`
}

// GetFileInfo resolves a file id to its download links. A file the server no
// longer has yields an error matching ErrFileNotFound.
func (c *Client) GetFileInfo(ctx context.Context, fileID string) (*FileInfo, error) {
	params := url.Values{}
	params.Set("file_id", fileID)

	body, err := c.get(ctx, "getFileInfo", "files/getInfo", params)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
		}
		return nil, err
	}

	var info FileInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &TransportError{Op: "getFileInfo", Err: fmt.Errorf("unmarshal file info: %w", err)}
	}
	return &info, nil
}

// DownloadedFile is the content behind one dlink.
type DownloadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// DownloadFile fetches every file behind a file link. The links of a
// multi-file share are downloaded concurrently; results keep server order.
func (c *Client) DownloadFile(ctx context.Context, fileURL string) ([]DownloadedFile, error) {
	fileID, ok := filter.ExtractFileID(fileURL)
	if !ok {
		return nil, fmt.Errorf("not a file link: %q", fileURL)
	}
	info, err := c.GetFileInfo(ctx, fileID)
	if err != nil {
		return nil, err
	}

	files := make([]DownloadedFile, len(info.FileList))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)
	for i, entry := range info.FileList {
		i, entry := i, entry
		g.Go(func() error {
			f, err := c.download(gctx, entry)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) download(ctx context.Context, entry FileEntry) (DownloadedFile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, entry.DLink, nil)
	if err != nil {
		return DownloadedFile{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return DownloadedFile{}, &TransportError{Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return DownloadedFile{}, fmt.Errorf("%w: %s", ErrFileNotFound, entry.DLink)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DownloadedFile{}, &APIError{Method: "download", StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return DownloadedFile{}, &TransportError{Op: "download", Err: fmt.Errorf("read body: %w", err)}
	}
	return DownloadedFile{
		Name:        entry.Filename,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// SendFile uploads content under name and returns the response data, which
// carries the link to share.
func (c *Client) SendFile(ctx context.Context, name string, content io.Reader) (json.RawMessage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("aimsid", c.token)
	if name != "" {
		params.Set("filename", name)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("im/sendFile")+"?"+params.Encode(), content)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	body, err := c.do(req, "sendFile")
	if err != nil {
		return nil, err
	}
	return unwrap("sendFile", body)
}

// StickerPackQuery selects a sticker pack. At least one field must be set.
type StickerPackQuery struct {
	StoreID string
	PackID  string
	FileID  string
}

// StickerPackInfo returns the store/packinfo document for a pack.
func (c *Client) StickerPackInfo(ctx context.Context, q StickerPackQuery) (json.RawMessage, error) {
	if q.StoreID == "" && q.PackID == "" && q.FileID == "" {
		return nil, errors.New("sticker pack query needs a store id, pack id or file id")
	}
	params := url.Values{}
	if q.StoreID != "" {
		params.Set("store_id", q.StoreID)
	}
	if q.PackID != "" {
		params.Set("id", q.PackID)
	}
	if q.FileID != "" {
		params.Set("file_id", q.FileID)
	}
	body, err := c.get(ctx, "stickerPackInfo", "store/packinfo", params)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}
