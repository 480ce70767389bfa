// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPLoaderConfig configures remote range reads.
type HTTPLoaderConfig struct {
	Client  *http.Client
	Timeout time.Duration
	Auth    AuthTokenSupplier
	// CookieName is the cookie carrying the auth token. Defaults to "auth".
	CookieName string
}

// HTTPLoader issues HTTP Range requests against http:// and https:// locations.
type HTTPLoader struct {
	client     *http.Client
	auth       AuthTokenSupplier
	cookieName string
}

// NewHTTPLoader builds an HTTP loader.
func NewHTTPLoader(cfg HTTPLoaderConfig) *HTTPLoader {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	name := cfg.CookieName
	if name == "" {
		name = "auth"
	}
	return &HTTPLoader{client: client, auth: cfg.Auth, cookieName: name}
}

// Load implements BlockLoader.
func (l *HTTPLoader) Load(ctx context.Context, location string, offset, length int64) ([]byte, error) {
	if err := validRange(location, offset, length); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", location, err)
	}
	req.Header.Set("Range", *NewByteRange(offset, length).headerValue())
	if l.auth != nil {
		token, err := l.auth.Token(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("auth token %s: %w", location, err)
		}
		if token != "" {
			req.AddCookie(&http.Cookie{Name: l.cookieName, Value: token})
		}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	defer resp.Body.Close()

	var body io.Reader
	switch resp.StatusCode {
	case http.StatusPartialContent:
		body = resp.Body
	case http.StatusOK:
		// Server ignored the Range header.
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			return nil, fmt.Errorf("skip to offset %d in %s: %w", offset, location, err)
		}
		body = resp.Body
	default:
		return nil, fmt.Errorf("get %s: unexpected status %s", location, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(body, length))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", location, err)
	}
	if err := checkLength(location, data, length); err != nil {
		return nil, err
	}
	return data, nil
}
