package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"sealchat/internal/domain"
)

// HTTPClient talks to a directoryd instance. Bundle endpoints are JSON;
// mailbox payloads are the CBOR wire messages. Timeouts and
// cancellation come from the caller's context and the injected
// http.Client.
type HTTPClient struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for the directory at base.
func NewHTTP(base string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{Base: base, HTTP: client}
}

func (c *HTTPClient) Upload(ctx context.Context, userID string, bundle domain.PublicKeyBundle) error {
	body, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/bundle/"+url.PathEscape(userID), "application/json", body, nil)
}

func (c *HTTPClient) Fetch(ctx context.Context, userID string) (domain.PublicKeyBundle, error) {
	var out domain.PublicKeyBundle
	if err := c.do(ctx, http.MethodGet, "/bundle/"+url.PathEscape(userID), "", nil, &out); err != nil {
		return domain.PublicKeyBundle{}, err
	}
	return out, nil
}

// Push drops an encrypted message into the recipient's mailbox.
func (c *HTTPClient) Push(ctx context.Context, msg domain.Message) error {
	body, err := domain.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/mailbox/"+url.PathEscape(msg.To), "application/cbor", body, nil)
}

// Drain fetches and removes up to limit pending messages for userID
// (all of them when limit <= 0).
func (c *HTTPClient) Drain(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	path := "/mailbox/" + url.PathEscape(userID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var raws [][]byte
	if err := c.do(ctx, http.MethodGet, path, "", nil, &raws); err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(raws))
	for _, raw := range raws {
		m, err := domain.DecodeMessage(raw)
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var rd *bytes.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, rd)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("directory %s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var _ domain.DirectoryClient = (*HTTPClient)(nil)
