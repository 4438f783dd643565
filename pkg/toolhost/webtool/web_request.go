// Copyright 2025 Kadir Pekel
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

// Package webtool implements the web tool class: outbound HTTP requests
// through a retrying client, bounded by a per-call timeout and a response
// size cap.
package webtool

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/swarmhive/swarmd/pkg/httpclient"
	"github.com/swarmhive/swarmd/pkg/toolhost"
	"github.com/swarmhive/swarmd/pkg/toolhost/functiontool"
)

// WebRequestArgs defines the parameters for making HTTP requests.
type WebRequestArgs struct {
	URL     string            `json:"url" jsonschema:"required,description=The URL to request"`
	Method  string            `json:"method,omitempty" jsonschema:"description=HTTP method (GET POST PUT DELETE PATCH HEAD OPTIONS),default=GET,enum=GET|POST|PUT|DELETE|PATCH|HEAD|OPTIONS"`
	Headers map[string]string `json:"headers,omitempty" jsonschema:"description=HTTP headers as key-value pairs"`
	Body    string            `json:"body,omitempty" jsonschema:"description=Request body (for POST PUT PATCH)"`
}

// Config configures the web_request tool.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	MaxRequestSize  int64
	MaxResponseSize int64
	AllowedDomains  []string
	DeniedDomains   []string
	AllowedMethods  []string
	AllowRedirects  bool
	MaxRedirects    int
	UserAgent       string
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxRequestSize == 0 {
		c.MaxRequestSize = 1024 * 1024
	}
	if c.MaxResponseSize == 0 {
		c.MaxResponseSize = 10 * 1024 * 1024
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = 10
	}
	if c.UserAgent == "" {
		c.UserAgent = "swarmd/1.0"
	}
}

// NewWebRequest builds the web_request tool definition.
func NewWebRequest(cfg Config) (toolhost.Definition, error) {
	cfg.setDefaults()

	httpClientConfig := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !cfg.AllowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}

	hc := httpclient.New(
		httpclient.WithHTTPClient(httpClientConfig),
		httpclient.WithMaxRetries(cfg.MaxRetries),
	)

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        "web_request",
			Description: "Make HTTP requests to external APIs and web services. Supports all HTTP methods, custom headers, and request bodies.",
			Class:       toolhost.ClassWeb,
			Policy: toolhost.Policy{
				Class:          toolhost.ClassWeb,
				RequestTimeout: cfg.Timeout,
				ResponseCap:    cfg.MaxResponseSize,
			},
		},
		func(ctx toolhost.Context, args WebRequestArgs) (map[string]any, error) {
			return webRequestImpl(cfg, hc, args)
		},
		func(args WebRequestArgs) error {
			parsedURL, err := url.Parse(args.URL)
			if err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}

			if err := validateDomain(cfg, parsedURL.Host); err != nil {
				return err
			}

			method := "GET"
			if args.Method != "" {
				method = strings.ToUpper(args.Method)
			}
			if err := validateMethod(cfg, method); err != nil {
				return err
			}

			if int64(len(args.Body)) > cfg.MaxRequestSize {
				return fmt.Errorf("request body too large: %d bytes (max: %d)", len(args.Body), cfg.MaxRequestSize)
			}

			return nil
		},
	)
}

func webRequestImpl(cfg Config, hc *httpclient.Client, args WebRequestArgs) (map[string]any, error) {
	method := "GET"
	if args.Method != "" {
		method = strings.ToUpper(args.Method)
	}

	var body io.Reader
	if args.Body != "" {
		body = bytes.NewReader([]byte(args.Body))
	}

	req, err := http.NewRequest(method, args.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", cfg.UserAgent)
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	limitedReader := io.LimitReader(resp.Body, cfg.MaxResponseSize+1)
	responseBody, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if int64(len(responseBody)) > cfg.MaxResponseSize {
		return nil, fmt.Errorf("response too large: exceeds %d bytes", cfg.MaxResponseSize)
	}

	respHeaders := make(map[string]string)
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	return map[string]any{
		"success":      success,
		"content":      string(responseBody),
		"url":          args.URL,
		"method":       method,
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"headers":      respHeaders,
		"content_type": resp.Header.Get("Content-Type"),
		"size":         len(responseBody),
	}, nil
}

func validateDomain(cfg Config, host string) error {
	if len(cfg.AllowedDomains) == 0 && len(cfg.DeniedDomains) == 0 {
		return nil
	}

	for _, denied := range cfg.DeniedDomains {
		if matchesDomain(host, denied) {
			return fmt.Errorf("domain not allowed: %s (matches deny rule: %s): %w", host, denied, toolhost.ErrPolicyDenied)
		}
	}

	if len(cfg.AllowedDomains) > 0 {
		for _, allowed := range cfg.AllowedDomains {
			if matchesDomain(host, allowed) {
				return nil
			}
		}
		return fmt.Errorf("domain not allowed: %s (not in allowed list): %w", host, toolhost.ErrPolicyDenied)
	}

	return nil
}

func validateMethod(cfg Config, method string) error {
	if len(cfg.AllowedMethods) == 0 {
		return nil
	}

	for _, allowed := range cfg.AllowedMethods {
		if strings.EqualFold(method, allowed) {
			return nil
		}
	}

	return fmt.Errorf("HTTP method not allowed: %s (allowed: %v): %w", method, cfg.AllowedMethods, toolhost.ErrPolicyDenied)
}

func matchesDomain(host, pattern string) bool {
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	if host == pattern {
		return true
	}

	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:]
		return strings.HasSuffix(host, suffix)
	}

	return false
}
