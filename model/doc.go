// Package model defines the language-model capability consumed by the
// reasoning engine: a provider-neutral request/response contract with
// unified streaming, plus an embedding interface for vector retrieval.
// Provider adapters live in subpackages (openai, anthropic).
package model
