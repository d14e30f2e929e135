package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dukamart/dukapay-gobackend/internal/models"
)

const assistantModel = "llama-3.3-70b-versatile"

const assistantSystemPrompt = `You are a helpful assistant for an online store.
Answer customer questions using the provided store information. Payments are
made via M-Pesa: the customer receives a prompt on their phone after checkout
and the order is confirmed once the payment completes. If you do not have the
information needed, say so clearly.`

// FAQSource provides the store context injected into the assistant prompt.
// FAQService implements it.
type FAQSource interface {
	ActiveFAQs(ctx context.Context, limit int64) ([]models.FAQ, error)
}

// AssistantService makes stateless chat-completion calls with FAQ context.
// No conversation state is kept between requests.
type AssistantService struct {
	faqs    FAQSource
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewAssistantService(faqs FAQSource, baseURL, apiKey string) *AssistantService {
	return &AssistantService{
		faqs:    faqs,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Ask sends the question with FAQ context and returns the generated answer.
func (s *AssistantService) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: no question provided", ErrValidation)
	}
	if s.apiKey == "" {
		return "", fmt.Errorf("assistant API key not configured")
	}

	faqs, err := s.faqs.ActiveFAQs(ctx, 10)
	if err != nil {
		log.Printf("Failed to load FAQ context: %v", err)
		return "", fmt.Errorf("failed to load FAQ context: %v", err)
	}

	var faqContext strings.Builder
	faqContext.WriteString("=== STORE FAQ ===\n")
	for _, faq := range faqs {
		fmt.Fprintf(&faqContext, "Q: %s\nA: %s\n", faq.Question, faq.Answer)
	}

	reqPayload := map[string]interface{}{
		"model": assistantModel,
		"messages": []chatMessage{
			{Role: "system", Content: assistantSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Context:\n%s\nCustomer Question: %s", faqContext.String(), question)},
		},
		"max_tokens":  1500,
		"temperature": 0.7,
	}
	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/openai/v1/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("Chat completion request failed: %v", err)
		return "", fmt.Errorf("chat completion request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("Chat completion failed with status %d: %s", resp.StatusCode, string(body))
		return "", fmt.Errorf("chat completion failed with status %d", resp.StatusCode)
	}

	var chatResp struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %v", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}

	return chatResp.Choices[0].Message.Content, nil
}
