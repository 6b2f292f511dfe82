package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPTool executes a tool as a templated HTTP call built from stored
// definition metadata. Arguments named by {placeholder} markers in the URL
// are substituted into the path; remaining arguments travel as query
// parameters for GET requests and as a JSON body otherwise.
//
// Responses with a JSON content type are decoded into an arbitrary value;
// anything else is returned as text. Non-2xx statuses become an execution
// error carrying the status and a truncated body.
type HTTPTool struct {
	def    Definition
	client *http.Client
}

// HTTPToolOptions configure an HTTPTool.
type HTTPToolOptions struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPTool builds an HTTPTool from a stored definition. The definition
// must carry Kind == KindHTTP and a populated HTTP spec.
func NewHTTPTool(def Definition, optFns ...func(o *HTTPToolOptions)) (*HTTPTool, error) {
	if def.HTTP == nil {
		return nil, fmt.Errorf("tool %s: http metadata missing", def.Name)
	}
	opts := HTTPToolOptions{Timeout: 30 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPTool{def: def, client: client}, nil
}

// Name returns the unique tool name.
func (t *HTTPTool) Name() string { return t.def.Name }

// Description returns the description exposed to models.
func (t *HTTPTool) Description() string { return t.def.Description }

// Parameters returns the schema describing expected arguments.
func (t *HTTPTool) Parameters() map[string]any { return t.def.ParameterSchema }

// Call performs the templated request. All transport failures are wrapped as
// *Error with code EXECUTION_ERROR; a raw transport error never escapes.
func (t *HTTPTool) Call(ctx context.Context, args map[string]any) (any, error) {
	spec := t.def.HTTP

	endpoint, remaining := expandURL(spec.URL, args)
	method := strings.ToUpper(spec.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method == http.MethodGet || method == http.MethodHead {
		if len(remaining) > 0 {
			q := url.Values{}
			for k, v := range remaining {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			sep := "?"
			if strings.Contains(endpoint, "?") {
				sep = "&"
			}
			endpoint += sep + q.Encode()
		}
	} else {
		raw, err := json.Marshal(remaining)
		if err != nil {
			return nil, &Error{Tool: t.def.Name, Message: fmt.Sprintf("encode request body: %v", err), Code: CodeExecution}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &Error{Tool: t.def.Name, Message: fmt.Sprintf("build request: %v", err), Code: CodeExecution}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Error{Tool: t.def.Name, Message: err.Error(), Code: CodeExecution}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Tool: t.def.Name, Message: fmt.Sprintf("read response: %v", err), Code: CodeExecution}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Tool:    t.def.Name,
			Message: fmt.Sprintf("upstream returned %s: %s", resp.Status, truncate(string(raw), 256)),
			Code:    CodeExecution,
		}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded, nil
		}
	}
	return string(raw), nil
}

// expandURL substitutes {name} placeholders with argument values and returns
// the expanded URL plus the arguments not consumed by the path.
func expandURL(tmpl string, args map[string]any) (string, map[string]any) {
	remaining := make(map[string]any, len(args))
	for k, v := range args {
		remaining[k] = v
	}
	expanded := tmpl
	for k, v := range args {
		placeholder := "{" + k + "}"
		if strings.Contains(expanded, placeholder) {
			expanded = strings.ReplaceAll(expanded, placeholder, url.PathEscape(fmt.Sprintf("%v", v)))
			delete(remaining, k)
		}
	}
	return expanded, remaining
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
