// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the text-reasoning collaborator the Overseer
// consults during decision fusion.
//
// The collaborator is treated as an untrusted, possibly slow, possibly
// malformed oracle: callers must tolerate errors and unparsable output.
package llm

import (
	"context"
	"fmt"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// NewClient constructs a backend by provider name: "openai" or "ollama".
// An empty provider disables the collaborator and returns (nil, nil);
// planning then runs rule-based only.
func NewClient(provider string) (LLMClient, error) {
	switch provider {
	case "":
		return nil, nil
	case "openai":
		return NewOpenAIClient()
	case "ollama":
		return NewOllamaClient()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
