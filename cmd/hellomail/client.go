package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mailhttp "github.com/dropDatabas3/hellomail/internal/http"
)

// client habla con un "hellomail serve" remoto en lugar de usar SMTP local.
type client struct {
	BaseURL string
	HTTP    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode/100 != 2 {
		var he mailhttp.HTTPError
		if json.Unmarshal(b, &he) == nil && he.Code != "" {
			he.Status = resp.StatusCode
			return &he
		}
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	if out != nil {
		return json.Unmarshal(b, out)
	}
	return nil
}

func (c *client) send(ctx context.Context, in mailhttp.MailRequest) (*mailhttp.SendResponse, error) {
	var out mailhttp.SendResponse
	if err := c.do(ctx, http.MethodPost, "/v1/mail/send", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) preview(ctx context.Context, in mailhttp.MailRequest) (*mailhttp.PreviewResponse, error) {
	var out mailhttp.PreviewResponse
	if err := c.do(ctx, http.MethodPost, "/v1/mail/preview", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
