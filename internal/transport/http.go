package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"text/template"
	"time"

	"stageq/internal/config"
)

// HTTP issues the configured target request for every iteration.
type HTTP struct {
	Client *http.Client

	method  string
	engine  *TemplateEngine
	url     *template.Template
	headers map[string]*template.Template
	body    *template.Template

	staticURL  string
	staticBody []byte
}

// NewHTTP compiles the target templates and builds a pooled client sized for
// maxConns concurrent requests.
func NewHTTP(target config.Target, timeout time.Duration, maxConns int) (*HTTP, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = maxConns
	t.MaxConnsPerHost = maxConns
	t.MaxIdleConnsPerHost = maxConns
	if target.Insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	h := &HTTP{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: t,
		},
		method:  target.Method,
		engine:  NewTemplateEngine(),
		headers: make(map[string]*template.Template, len(target.Headers)),
	}
	if h.method == "" {
		h.method = http.MethodGet
	}

	var err error
	if IsTemplate(target.URL) {
		if h.url, err = h.engine.Parse("url", target.URL); err != nil {
			return nil, fmt.Errorf("parse url template: %w", err)
		}
	} else {
		h.staticURL = target.URL
	}

	if IsTemplate(target.Body) {
		if h.body, err = h.engine.Parse("body", target.Body); err != nil {
			return nil, fmt.Errorf("parse body template: %w", err)
		}
	} else if target.Body != "" {
		h.staticBody = []byte(target.Body)
	}

	for k, v := range target.Headers {
		if h.headers[k], err = h.engine.Parse("header "+k, v); err != nil {
			return nil, fmt.Errorf("parse header %q: %w", k, err)
		}
	}
	return h, nil
}

func (h *HTTP) Execute(ctx context.Context, req Request) (ResponseMeta, error) {
	httpReq, err := h.build(ctx, req)
	if err != nil {
		return ResponseMeta{BodyLength: -1}, err
	}

	resp, err := h.Client.Do(httpReq)
	if err != nil {
		return ResponseMeta{BodyLength: -1}, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	meta := ResponseMeta{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		BodyLength:  n,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if err != nil {
		return meta, fmt.Errorf("read body: %w", err)
	}
	return meta, nil
}

func (h *HTTP) build(ctx context.Context, req Request) (*http.Request, error) {
	data := newTemplateData(req)

	target := h.staticURL
	if h.url != nil {
		s, err := h.engine.Execute(h.url, data)
		if err != nil {
			return nil, fmt.Errorf("render url: %w", err)
		}
		target = s
	}

	var body io.Reader
	switch {
	case h.body != nil:
		s, err := h.engine.Execute(h.body, data)
		if err != nil {
			return nil, fmt.Errorf("render body: %w", err)
		}
		body = bytes.NewBufferString(s)
	case h.staticBody != nil:
		body = bytes.NewReader(h.staticBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, h.method, target, body)
	if err != nil {
		return nil, err
	}
	for k, t := range h.headers {
		v, err := h.engine.Execute(t, data)
		if err != nil {
			return nil, fmt.Errorf("render header %q: %w", k, err)
		}
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// CloseIdle releases pooled connections after a run.
func (h *HTTP) CloseIdle() {
	h.Client.CloseIdleConnections()
}
