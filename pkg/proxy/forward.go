package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// usageInfo is extracted from the upstream response, either from the single
// JSON body (non-streaming) or from the last SSE chunk that carries a usage
// field (streaming).
type usageInfo struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Model            string
	RequestID        string
}

func (u usageInfo) metered() bool { return u.TotalTokens > 0 }

type upstreamChunk struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Proxy) upstreamRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Cfg.UpstreamBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.Cfg.UpstreamAPIKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// forwardNonStreaming issues a single request/response round trip and
// copies the upstream response straight through, extracting usage from the
// decoded JSON body along the way.
func (p *Proxy) forwardNonStreaming(ctx context.Context, body []byte) (*http.Response, usageInfo, error) {
	req, err := p.upstreamRequest(ctx, body)
	if err != nil {
		return nil, usageInfo{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, usageInfo{}, fmt.Errorf("calling upstream: %w", err)
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, usageInfo{}, fmt.Errorf("reading upstream response: %w", err)
	}

	var usage usageInfo
	if resp.StatusCode == http.StatusOK {
		var chunk upstreamChunk
		if jsonErr := json.Unmarshal(raw, &chunk); jsonErr == nil && chunk.Usage != nil {
			usage = usageInfo{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
				Model:            chunk.Model,
				RequestID:        chunk.ID,
			}
		}
	}

	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp, usage, nil
}

// streamResult carries the usage extracted from a forwarded SSE stream,
// filled in as the final chunk is copied through — the caller reads it only
// after the stream has been fully drained to the client.
type streamResult struct {
	usage usageInfo
}

// forwardStreaming copies the upstream SSE response line by line to w,
// flushing after each line so the client sees tokens as they arrive, while
// extracting the trailing usage object emitted on the final chunk.
func (p *Proxy) forwardStreaming(ctx context.Context, body []byte, w http.ResponseWriter) (streamResult, error) {
	req, err := p.upstreamRequest(ctx, body)
	if err != nil {
		return streamResult{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return streamResult{}, fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)

	var result streamResult
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintf(w, "%s\n\n", line)
		if flusher != nil {
			flusher.Flush()
		}

		if strings.HasPrefix(line, "data: ") && line != "data: [DONE]" {
			var chunk upstreamChunk
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err == nil {
				if chunk.Usage != nil {
					result.usage.PromptTokens = chunk.Usage.PromptTokens
					result.usage.CompletionTokens = chunk.Usage.CompletionTokens
					result.usage.TotalTokens = chunk.Usage.TotalTokens
				}
				if chunk.Model != "" {
					result.usage.Model = chunk.Model
				}
				if chunk.ID != "" {
					result.usage.RequestID = chunk.ID
				}
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return result, fmt.Errorf("reading upstream stream: %w", err)
	}
	return result, nil
}
