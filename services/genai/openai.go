// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package genai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var openaiTracer = otel.Tracer("proscenium.genai.openai")

// OpenAIBackend talks to the OpenAI chat completion API. The API key stays
// sealed between calls; a client is assembled per request around a shared
// HTTP transport so connections are still pooled.
type OpenAIBackend struct {
	key        *APIKey
	model      string
	httpClient *http.Client
}

// NewOpenAIBackend reads OPENAI_API_KEY (or the container secret) and
// prepares a backend for the given model.
func NewOpenAIBackend(model string) (*OpenAIBackend, error) {
	key, err := LoadAPIKey("OPENAI_API_KEY", "/run/secrets/openai_api_key")
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OpenAI model not configured, defaulting", "model", model)
	}
	slog.Info("Initializing OpenAI backend", "model", model)
	return &OpenAIBackend{
		key:        key,
		model:      model,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Generate implements the Backend interface.
func (o *OpenAIBackend) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	ctx, span := openaiTracer.Start(ctx, "OpenAIBackend.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("genai.model", o.model))

	keyBuf, err := o.key.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to open API key: %w", err)
	}
	defer keyBuf.Destroy()

	clientCfg := openai.DefaultConfig(keyBuf.String())
	clientCfg.HTTPClient = o.httpClient
	client := openai.NewClientWithConfig(clientCfg)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return "", ErrEmptyResponse
	}

	span.SetAttributes(attribute.String("genai.finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}
