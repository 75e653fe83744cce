// Package ai calls the OpenAI-compatible gateway for report generation,
// report review and document text extraction. Every call is one shot:
// failures map to user-facing messages and are never retried here.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"apec/internal/apperr"
	"apec/internal/models"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Review is the structured feedback returned by ReviewReport.
type Review struct {
	QualityScore       int      `json:"qualityScore"`
	CompletenessIssues []string `json:"completenessIssues"`
	ConsistencyIssues  []string `json:"consistencyIssues"`
	Enhancements       []string `json:"enhancements"`
	OverallFeedback    string   `json:"overallFeedback"`
}

// Model is one entry from the gateway's model listing.
type Model struct {
	ID string `json:"id"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateReport drafts report text for a report type, grounded on the
// knowledge base excerpts and the user's inputs.
func (c *Client) GenerateReport(ctx context.Context, cfg *models.OpenAISettings, reportType *models.ReportType, kbExcerpts []string, userInputs map[string]string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a professional %s inspection report.\n", reportType.Name)
	if reportType.Description != "" {
		fmt.Fprintf(&sb, "Report type description: %s\n", reportType.Description)
	}
	if len(kbExcerpts) > 0 {
		sb.WriteString("\nReference material:\n")
		for _, e := range kbExcerpts {
			sb.WriteString(e)
			sb.WriteString("\n---\n")
		}
	}
	if len(userInputs) > 0 {
		sb.WriteString("\nInspection details provided by the technician:\n")
		for k, v := range userInputs {
			fmt.Fprintf(&sb, "%s: %s\n", k, v)
		}
	}

	return c.chat(ctx, cfg, []chatMessage{
		{Role: "system", Content: "You are an experienced NDT inspection report writer. Produce clear, formal report prose."},
		{Role: "user", Content: sb.String()},
	}, nil)
}

// ReviewReport asks the gateway for a structured quality review of the
// serialized report text.
func (c *Client) ReviewReport(ctx context.Context, cfg *models.OpenAISettings, reportText string) (*Review, error) {
	prompt := "Review the following inspection report. Respond with JSON: " +
		`{"qualityScore": 0-100, "completenessIssues": [], "consistencyIssues": [], "enhancements": [], "overallFeedback": ""}` +
		"\n\n" + reportText

	out, err := c.chat(ctx, cfg, []chatMessage{
		{Role: "system", Content: "You are a senior NDT report reviewer. Respond only with the requested JSON."},
		{Role: "user", Content: prompt},
	}, json.RawMessage(`{"type":"json_object"}`))
	if err != nil {
		return nil, err
	}

	var review Review
	if err := json.Unmarshal([]byte(out), &review); err != nil {
		return nil, apperr.External("AI review returned malformed output", err)
	}
	return &review, nil
}

// ParseDocument extracts text content from an uploaded knowledge base
// document. Binary formats go up as-is; the gateway handles extraction.
func (c *Client) ParseDocument(ctx context.Context, cfg *models.OpenAISettings, fileName, fileType string, data []byte) (string, error) {
	const maxPayload = 512 * 1024
	if len(data) > maxPayload {
		data = data[:maxPayload]
	}

	prompt := fmt.Sprintf("Extract the full text content of the document %q (%s). Return only the extracted text.\n\n%s",
		fileName, fileType, string(data))

	return c.chat(ctx, cfg, []chatMessage{
		{Role: "system", Content: "You extract clean plain text from documents."},
		{Role: "user", Content: prompt},
	}, nil)
}

// ListModels fetches the models available to the given API key.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Network("could not reach AI gateway", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, gatewayError(resp)
	}

	var body struct {
		Data []Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperr.External("AI gateway returned malformed output", err)
	}
	return body.Data, nil
}

func (c *Client) chat(ctx context.Context, cfg *models.OpenAISettings, messages []chatMessage, responseFormat json.RawMessage) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:          cfg.Model,
		Messages:       messages,
		ResponseFormat: responseFormat,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Network("could not reach AI gateway", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", gatewayError(resp)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperr.External("AI gateway returned malformed output", err)
	}
	if len(body.Choices) == 0 {
		return "", apperr.External("AI gateway returned no output", nil)
	}
	return body.Choices[0].Message.Content, nil
}

// gatewayError maps gateway status codes to the distinct user-facing
// messages the UI shows.
func gatewayError(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	cause := fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return apperr.External("AI rate limit exceeded, try again shortly", cause)
	case http.StatusUnauthorized:
		return apperr.External("invalid OpenAI API key", cause)
	case http.StatusPaymentRequired:
		return apperr.External("AI credits exhausted", cause)
	default:
		return apperr.External("AI request failed", cause)
	}
}
