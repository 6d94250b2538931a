package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/depot/chattemplate"
	"github.com/modeldepot/depot/pkg/depot/embedding"
	"github.com/modeldepot/depot/pkg/depot/generation"
	"github.com/modeldepot/depot/pkg/depot/reasoning"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generateRequest struct {
	ID             string             `json:"id" binding:"required"`
	Prompt         string             `json:"prompt"`
	Messages       []chatMessage      `json:"messages"`
	SystemPrompt   string             `json:"systemPrompt"`
	ChatTemplate   string             `json:"chatTemplate"`
	MaxTokens      int                `json:"maxTokens"`
	Temperature    float64            `json:"temperature"`
	TopP           float64            `json:"topP"`
	StopSequences  []string           `json:"stopSequences"`
	RepeatPenalty  float64            `json:"repeatPenalty"`
	Seed           *int64             `json:"seed"`
	LogitBias      map[string]float64 `json:"logitBias"`
	AntiPrompts    []string           `json:"antiPrompts"`
	ExtractReasoning bool             `json:"extractReasoning"`
}

// resolvePrompt renders req.Messages into a prompt string via
// chattemplate.Render when no raw Prompt was supplied.
func (req *generateRequest) resolvePrompt(modelName string) string {
	if req.Prompt != "" || len(req.Messages) == 0 {
		return req.Prompt
	}
	messages := make([]chattemplate.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chattemplate.Message{Role: m.Role, Content: m.Content}
	}
	cfg := chattemplate.Config{ChatTemplate: req.ChatTemplate, ModelName: modelName}
	return chattemplate.Render(messages, req.SystemPrompt, cfg)
}

func (req *generateRequest) toGenerationRequest(prompt string) *generation.Request {
	return &generation.Request{
		Prompt:        prompt,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopSequences,
		RepeatPenalty: req.RepeatPenalty,
		Seed:          req.Seed,
		LogitBias:     req.LogitBias,
		AntiPrompts:   req.AntiPrompts,
	}
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid generate request", err))
		return
	}
	eng, model, err := s.loadForGeneration(c.Request.Context(), req.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	prompt := req.resolvePrompt(model.Name)
	start := time.Now()
	resp, err := eng.Generate(c.Request.Context(), req.toGenerationRequest(prompt))
	if err != nil {
		writeError(c, err)
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.GenerationDuration.WithLabelValues(string(resp.FinishReason)).Observe(time.Since(start).Seconds())
	}

	body := gin.H{
		"text":             resp.Text,
		"finishReason":     resp.FinishReason,
		"promptTokens":     resp.PromptTokens,
		"completionTokens": resp.CompletionTokens,
		"totalTokens":      resp.TotalTokens,
	}
	if req.ExtractReasoning {
		r := reasoning.Process(resp.Text)
		body["reasoning"] = gin.H{
			"hasReasoning":    r.HasReasoning,
			"thinking":        r.Thinking,
			"finalAnswer":     r.FinalAnswer,
			"reasoningTokens": r.ReasoningTokens,
		}
	}
	c.JSON(http.StatusOK, body)
}

// handleGenerateStream streams newline-delimited JSON TokenEvents,
// flushing after every event so a client reading the response body
// incrementally observes tokens as they arrive.
func (s *Server) handleGenerateStream(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid generate request", err))
		return
	}
	eng, model, err := s.loadForGeneration(c.Request.Context(), req.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	prompt := req.resolvePrompt(model.Name)
	stream, err := eng.GenerateStream(c.Request.Context(), req.toGenerationRequest(prompt))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-stream
		if !ok {
			return false
		}
		payload := map[string]interface{}{"token": ev.Token, "done": ev.Done}
		if ev.Err != nil {
			payload["error"] = ev.Err.Error()
		}
		line, err := json.Marshal(payload)
		if err != nil {
			return false
		}
		w.Write(line)
		w.Write([]byte("\n"))
		return !ev.Done && ev.Err == nil
	})
}

type embedRequest struct {
	ID        string   `json:"id" binding:"required"`
	Texts     []string `json:"texts" binding:"required"`
	Normalize bool     `json:"normalize"`
}

func (s *Server) handleEmbed(c *gin.Context) {
	var req embedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid embed request", err))
		return
	}
	eng, _, err := s.loadForEmbedding(c.Request.Context(), req.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	start := time.Now()
	resp, err := eng.Embed(c.Request.Context(), &embedding.Request{Texts: req.Texts, Normalize: req.Normalize})
	if err != nil {
		writeError(c, err)
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.EmbeddingDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	}
	c.JSON(http.StatusOK, gin.H{
		"vectors":   resp.Vectors,
		"tokens":    resp.Tokens,
		"dimension": resp.Dimension,
	})
}
