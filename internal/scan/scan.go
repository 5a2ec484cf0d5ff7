// Package scan extracts a pre-fill suggestion for the deposit form from a
// photographed transfer receipt. The result is never authoritative: the
// member reviews and re-validates every field before anything is saved.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"libreta/internal/core"
)

const modelName = "gemini-2.0-flash"

// Suggestion is the best-effort triple read off a bank transfer receipt.
type Suggestion struct {
	Date      string  `json:"date"`
	AmountBs  float64 `json:"amount"`
	Reference string  `json:"reference"`
}

type Scanner struct {
	client *genai.Client
}

// NewScanner creates the receipt scanner. Credentials come from the
// GEMINI_API_KEY environment variable, read by the genai client itself.
func NewScanner(ctx context.Context) (*Scanner, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Scanner{client: client}, nil
}

const scanPrompt = "You are a receipt parser for Venezuelan bank transfer receipts (pago móvil and transferencia screenshots).\n\n" +
	"Task:\n" +
	"- Read the attached receipt image.\n" +
	"- Output STRICT JSON only (no comments, no extra text).\n" +
	"- Output a single JSON object.\n\n" +
	"The object must have these fields:\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\", or null if unreadable\n" +
	"- \"amount\": number, the transferred amount in bolivars, or null\n" +
	"- \"reference\": string, the operation reference number, or null\n\n" +
	"Rules:\n" +
	"- Amounts use comma as the decimal separator; convert to a plain JSON number.\n" +
	"- Prefer the full reference number over a truncated one.\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// Scan sends the receipt image to the model and parses the suggestion.
// Fields the model could not read come back zero-valued.
func (s *Scanner) Scan(ctx context.Context, image []byte, mimeType string) (Suggestion, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: scanPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, modelName, contents, nil)
	if err != nil {
		return Suggestion{}, fmt.Errorf("generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return Suggestion{}, fmt.Errorf("empty response from model")
	}

	return parseSuggestion(rawText)
}

// parseSuggestion tolerates code fences and stray text around the JSON the
// model was told not to emit.
func parseSuggestion(raw string) (Suggestion, error) {
	clean := cleanModelJSON(raw)

	var loose struct {
		Date      *string          `json:"date"`
		Amount    *json.RawMessage `json:"amount"`
		Reference *string          `json:"reference"`
	}
	if err := json.Unmarshal([]byte(clean), &loose); err != nil {
		return Suggestion{}, fmt.Errorf("unmarshal model JSON: %w", err)
	}

	var out Suggestion
	if loose.Date != nil {
		if _, err := core.ParseDate(*loose.Date); err == nil {
			out.Date = *loose.Date
		}
	}
	if loose.Reference != nil {
		out.Reference = strings.TrimSpace(*loose.Reference)
	}
	if loose.Amount != nil {
		var n float64
		if err := json.Unmarshal(*loose.Amount, &n); err == nil && n > 0 {
			out.AmountBs = n
		} else {
			// Some models echo the amount as a localized string.
			var str string
			if err := json.Unmarshal(*loose.Amount, &str); err == nil {
				if v, perr := core.ParseDecimal(str); perr == nil {
					out.AmountBs = v
				}
			}
		}
	}
	return out, nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
