// Package avatar implements the AI-interviewer variant: SDP exchange over
// REST instead of the signaling channel, plus caption pacing synchronized to
// audible avatar speech.
package avatar

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/hirelink/interviewcore/internal/domain"
)

// Credentials is the stream bootstrap returned by the provider: the remote
// offer plus the ICE servers to reach it.
type Credentials struct {
	StreamID  string             `json:"stream_id"`
	SessionID string             `json:"session_id"`
	Offer     domain.SDPPayload  `json:"offer"`
	ICE       []iceServerPayload `json:"ice_servers"`
}

type iceServerPayload struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// ICEServers converts the wire payload into pion configuration.
func (c *Credentials) ICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICE))
	for _, s := range c.ICE {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	return out
}

// Client talks to the avatar provider's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchCredentials opens a new avatar stream and returns the remote offer.
func (c *Client) FetchCredentials(ctx context.Context) (*Credentials, error) {
	var creds Credentials
	if err := c.do(ctx, http.MethodPost, "/streams", nil, &creds); err != nil {
		return nil, domain.TransportError("fetch credentials", err)
	}
	return &creds, nil
}

// SubmitAnswer posts our local session description back to the provider.
func (c *Client) SubmitAnswer(ctx context.Context, streamID, sessionID string, answer domain.SDPPayload) error {
	body := struct {
		SessionID string            `json:"session_id"`
		Answer    domain.SDPPayload `json:"answer"`
	}{SessionID: sessionID, Answer: answer}

	if err := c.do(ctx, http.MethodPost, "/streams/"+streamID+"/sdp", body, nil); err != nil {
		return domain.TransportError("submit answer", err)
	}
	return nil
}

// RequestUtterance asks the avatar to speak the given text.
func (c *Client) RequestUtterance(ctx context.Context, streamID, sessionID, text string) error {
	body := struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}{SessionID: sessionID, Text: text}

	if err := c.do(ctx, http.MethodPost, "/streams/"+streamID+"/speak", body, nil); err != nil {
		return domain.TransportError("request utterance", err)
	}
	return nil
}

// CloseStream tears the provider-side stream down.
func (c *Client) CloseStream(ctx context.Context, streamID, sessionID string) error {
	body := struct {
		SessionID string `json:"session_id"`
	}{SessionID: sessionID}

	if err := c.do(ctx, http.MethodDelete, "/streams/"+streamID, body, nil); err != nil {
		return domain.TransportError("close stream", err)
	}
	return nil
}

// Transcribe sends recorded candidate audio and returns the recognized text.
// Failures are non-fatal; the user is re-prompted to speak.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	body := struct {
		Audio string `json:"audio"`
	}{Audio: base64.StdEncoding.EncodeToString(audio)}

	var resp struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, http.MethodPost, "/transcribe", body, &resp); err != nil {
		return "", domain.TranscriptionError("transcribe", err)
	}
	return resp.Text, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
