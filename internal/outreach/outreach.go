// Package outreach turns a scored prospect into a personalized email via an
// OpenAI-compatible chat-completions API, with a deterministic template as
// the fallback when generation is unavailable.
package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"bdr-engine/internal/config"
	"bdr-engine/internal/domain"
	"bdr-engine/internal/retry"
)

const systemPrompt = "You are a professional BDR (Business Development Representative) " +
	"writing personalized outreach emails. Your emails should be concise, professional, " +
	"and personalized based on the recipient's role and company information."

// Message is one generated email. Fallback marks messages produced by the
// built-in template instead of the model.
type Message struct {
	Subject  string
	Body     string
	Fallback bool
}

// AuthError marks a credential rejection. Falling back here would mask a
// broken configuration, so it fails the whole generate stage.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("outreach API rejected credentials: status %d", e.Status)
}

type Generator struct {
	cfg    config.Outreach
	apiKey string
	httpc  *http.Client
	policy retry.Policy
}

// New builds a generator. An empty API key is allowed; every message then
// comes from the fallback template (if the config permits it).
func New(cfg config.Outreach, apiKey string, policy retry.Policy) *Generator {
	return &Generator{
		cfg:    cfg,
		apiKey: apiKey,
		httpc:  &http.Client{Timeout: 30 * time.Second},
		policy: policy,
	}
}

// Generate produces the outreach message for one prospect. Transient API
// failures are retried; exhausted retries and non-auth rejections degrade
// to the template so the record still gets a message.
func (g *Generator) Generate(ctx context.Context, p domain.Prospect) (Message, error) {
	if g.apiKey == "" {
		if !g.cfg.UseFallback {
			return Message{}, errors.New("outreach: no API key and fallback disabled")
		}
		return g.fallback(p), nil
	}

	prompt := buildPrompt(p)
	var content string
	err := g.policy.Do(ctx, "outreach generate", func() error {
		var cerr error
		content, cerr = g.complete(ctx, prompt)
		return cerr
	})
	if err == nil {
		return parseMessage(content, g.cfg.DefaultSubject), nil
	}

	var auth *AuthError
	if errors.As(err, &auth) {
		return Message{}, err
	}
	if ctx.Err() != nil {
		return Message{}, err
	}
	if !g.cfg.UseFallback {
		return Message{}, err
	}
	log.Printf("[outreach] generation failed for %q, using fallback template: %v", p.Email, err)
	return g.fallback(p), nil
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": g.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"max_tokens":  g.cfg.MaxTokens,
		"temperature": g.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(req)
	if err != nil {
		return "", retry.MarkTransient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		switch {
		case retry.RetryableStatus(resp.StatusCode):
			return "", retry.MarkTransient(fmt.Errorf("chat completions: %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return "", &AuthError{Status: resp.StatusCode}
		default:
			return "", fmt.Errorf("chat completions: %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completions: empty choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func buildPrompt(p domain.Prospect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a personalized outreach email for the following prospect:\n\n")
	fmt.Fprintf(&b, "Name: %s\n", p.FullName())
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	fmt.Fprintf(&b, "Company: %s\n", p.Company)
	fmt.Fprintf(&b, "Industry: %s\n", p.Industry)
	fmt.Fprintf(&b, "Company Size: %d employees\n", p.CompanySize)
	fmt.Fprintf(&b, "Location: %s (%s)\n", p.Location, p.Region)
	if p.LinkedInURL != "" {
		fmt.Fprintf(&b, "LinkedIn: %s\n", p.LinkedInURL)
	}
	if len(p.ScoreReasons) > 0 {
		fmt.Fprintf(&b, "Fit signals: %s\n", strings.Join(p.ScoreReasons, ", "))
	}
	if p.CompanyBlurb != "" {
		fmt.Fprintf(&b, "About the company: %s\n", p.CompanyBlurb)
	}
	fmt.Fprintf(&b, `
Requirements:
1. Keep the email under 150 words
2. Make it personal and relevant to their role and company
3. Include a specific value proposition
4. End with a clear call-to-action
5. Be professional but conversational
6. Reference their company or industry when possible

Format the response as:
Subject: [Email Subject]
Body: [Email Body]

Focus on how our solution can help %s based on their industry (%s) and size (%d employees).
`, p.Company, p.Industry, p.CompanySize)
	return b.String()
}

// parseMessage splits a model reply into subject and body. Replies without
// a Subject: line keep the configured default subject and the whole text
// becomes the body.
func parseMessage(content, defaultSubject string) Message {
	msg := Message{Subject: defaultSubject, Body: content}

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "subject:") {
			continue
		}
		_, after, _ := strings.Cut(line, ":")
		msg.Subject = strings.TrimSpace(after)
		msg.Body = strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		break
	}

	// models usually echo the Body: label back
	if rest, ok := cutPrefixFold(msg.Body, "body:"); ok {
		msg.Body = strings.TrimSpace(rest)
	}
	if msg.Subject == "" {
		msg.Subject = defaultSubject
	}
	return msg
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func (g *Generator) fallback(p domain.Prospect) Message {
	first := p.FirstName
	if first == "" {
		first = "there"
	}
	company := p.Company
	if company == "" {
		company = "your company"
	}

	roleClause := ""
	if p.Title != "" {
		roleClause = fmt.Sprintf(", especially given your role as %s", p.Title)
	}

	senderName := g.cfg.SenderName
	if senderName == "" {
		senderName = "[Your Name]"
	}
	senderCompany := g.cfg.SenderCompany
	if senderCompany == "" {
		senderCompany = "[Your Company]"
	}

	body := fmt.Sprintf(`Hi %s,

I hope this email finds you well. I came across %s and was impressed by your work in the industry.

I'm reaching out because I believe our solution could help %s optimize its technology infrastructure%s.

Would you be open to a brief 15-minute call to discuss how we've helped similar companies in your space?

Best regards,
%s
%s`, first, company, company, roleClause, senderName, senderCompany)

	return Message{
		Subject:  fmt.Sprintf("Quick question about %s's tech stack", company),
		Body:     body,
		Fallback: true,
	}
}
