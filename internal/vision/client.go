package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Judgment is the structured uniform-compliance verdict over the fixed
// categories. Overall is taken verbatim from the model and is not re-derived
// from the item flags.
type Judgment struct {
	BlazerOrSuit bool `json:"black_blazer_or_suit"`
	Tie          bool `json:"tie"`
	WhiteShirt   bool `json:"white_shirt"`
	IDCard       bool `json:"id_card"`
	Beard        bool `json:"beard"`
	Overall      bool `json:"overall_compliance"`
}

// FaceMatch is the identity-verification verdict for a candidate photo
// against a stored reference photo.
type FaceMatch struct {
	SamePerson bool   `json:"same_person"`
	Confidence string `json:"confidence"`
}

// ErrUnparseable reports a model response with no recoverable JSON object.
var ErrUnparseable = errors.New("no JSON object in model response")

const (
	classifyPrompt = `Check if wearing: blazer or suit, tie, white shirt, ID card. Also check if person has a beard.
Respond ONLY in JSON:
{"black_blazer_or_suit": {"present": true/false}, "tie": {"present": true/false}, "white_shirt": {"present": true/false}, "id_card": {"present": true/false}, "beard": {"present": true/false}, "overall_compliance": true/false}`

	verifyPrompt = `Compare these two images and determine if they show the same person.
Look at facial features, structure, and characteristics.
Respond ONLY in JSON format:
{"same_person": true/false, "confidence": "high/medium/low"}`
)

// Client calls a vision-capable chat model over an OpenAI-compatible API.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with a bounded request timeout. Skip enables a mock
// mode for local development without an API key.
func New(baseURL, apiKey, model string, timeout time.Duration, skip bool) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// ClassifyUniform submits a single photo and returns the compliance judgment.
func (c *Client) ClassifyUniform(ctx context.Context, image []byte) (Judgment, error) {
	if c.Skip {
		return Judgment{BlazerOrSuit: true, Tie: true, WhiteShirt: true, IDCard: true, Overall: true}, nil
	}

	content := []part{
		textPart(classifyPrompt),
		imagePart(image, ""),
	}
	raw, err := c.complete(ctx, content)
	if err != nil {
		return Judgment{}, err
	}

	obj, err := extractJSON(raw)
	if err != nil {
		return Judgment{}, err
	}

	var wire struct {
		BlazerOrSuit presence `json:"black_blazer_or_suit"`
		Tie          presence `json:"tie"`
		WhiteShirt   presence `json:"white_shirt"`
		IDCard       presence `json:"id_card"`
		Beard        presence `json:"beard"`
		Overall      bool     `json:"overall_compliance"`
	}
	if err := json.Unmarshal([]byte(obj), &wire); err != nil {
		return Judgment{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return Judgment{
		BlazerOrSuit: wire.BlazerOrSuit.Present,
		Tie:          wire.Tie.Present,
		WhiteShirt:   wire.WhiteShirt.Present,
		IDCard:       wire.IDCard.Present,
		Beard:        wire.Beard.Present,
		Overall:      wire.Overall,
	}, nil
}

// VerifyFace compares a stored reference photo with a candidate photo.
func (c *Client) VerifyFace(ctx context.Context, reference, candidate []byte) (FaceMatch, error) {
	if c.Skip {
		return FaceMatch{SamePerson: true, Confidence: "high"}, nil
	}

	content := []part{
		textPart(verifyPrompt),
		imagePart(reference, "high"),
		textPart("Reference image above. Current image below:"),
		imagePart(candidate, "high"),
	}
	raw, err := c.complete(ctx, content)
	if err != nil {
		return FaceMatch{}, err
	}

	obj, err := extractJSON(raw)
	if err != nil {
		return FaceMatch{}, err
	}
	var match FaceMatch
	if err := json.Unmarshal([]byte(obj), &match); err != nil {
		return FaceMatch{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return match, nil
}

type presence struct {
	Present bool `json:"present"`
}

type part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

func textPart(text string) part {
	return part{Type: "text", Text: text}
}

func imagePart(data []byte, detail string) part {
	url := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
	return part{Type: "image_url", ImageURL: &imageURL{URL: url, Detail: detail}}
}

// complete posts one user message to the chat-completions endpoint and
// returns the raw content of the first choice.
func (c *Client) complete(ctx context.Context, content []part) (string, error) {
	payload := map[string]any{
		"model":       c.Model,
		"temperature": 0.1,
		"max_tokens":  200,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vision service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("vision response had no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// extractJSON recovers the substring from the first '{' to the last '}' so
// surrounding prose from the model does not break parsing.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", ErrUnparseable
	}
	return text[start : end+1], nil
}
