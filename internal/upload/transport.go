package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pagecurl/flipbookd/internal/blob"
	"github.com/pagecurl/flipbookd/internal/flipbook"
)

// HTTPTransport PUTs the file bytes to the granted upload URL, reporting
// progress as the body is consumed.
type HTTPTransport struct {
	Client *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

func (t *HTTPTransport) Transfer(ctx context.Context, granted *blob.Upload, file File, progress func(loaded, total int64)) error {
	if _, err := file.Data.Seek(0, io.SeekStart); err != nil {
		return &flipbook.TransportError{Err: err}
	}

	body := &progressReader{r: file.Data, total: file.Size, report: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, granted.URL, body)
	if err != nil {
		return &flipbook.TransportError{Err: err}
	}
	req.ContentLength = file.Size
	req.Header.Set("Content-Type", file.MIMEType)

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return &flipbook.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &flipbook.TransportError{Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return nil
}

// progressReader reports cumulative bytes read. The report callback may
// fire at arbitrary granularity depending on how the HTTP client drains
// the body.
type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	report func(loaded, total int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.loaded += int64(n)
		if p.report != nil {
			p.report(p.loaded, p.total)
		}
	}
	return n, err
}
