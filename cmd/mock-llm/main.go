// Package main implements a mock LLM server for local development and e2e
// testing. It serves OpenAI-compatible /v1/chat/completions and
// Anthropic-compatible /v1/messages responses, answering each pipeline phase
// with deterministic extraction JSON so the chain runs fast, offline, and
// reproducibly.
//
// Usage:
//
//	mock-llm -port 11434 [-fail-rate 0.2] [-latency 100ms]
//
// The phase is recognized from markers in the system prompt. An optional
// failure rate injects 500s to exercise the retry and fallback paths.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	System string `json:"system,omitempty"` // anthropic puts the system prompt here
}

var requestCount atomic.Int64

func main() {
	port := flag.Int("port", 11434, "Listen port")
	failRate := flag.Float64("fail-rate", 0, "Fraction of requests answered with 500")
	latency := flag.Duration("latency", 0, "Artificial response delay")
	flag.Parse()

	handler := func(wrap func(content, model string) any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			n := requestCount.Add(1)

			if *latency > 0 {
				time.Sleep(*latency)
			}
			if *failRate > 0 && rand.Float64() < *failRate {
				log.Printf("request %d: injected failure", n)
				http.Error(w, `{"error": "injected failure"}`, http.StatusInternalServerError)
				return
			}

			var req chatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error": "bad request"}`, http.StatusBadRequest)
				return
			}

			content := answerFor(systemPromptOf(req))
			log.Printf("request %d: model=%s bytes=%d", n, req.Model, len(content))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(wrap(content, req.Model))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handler(openAIResponse))
	mux.HandleFunc("POST /v1/messages", handler(anthropicResponse))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock-llm listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

// systemPromptOf extracts the system prompt from either wire shape.
func systemPromptOf(req chatRequest) string {
	if req.System != "" {
		return req.System
	}
	for _, m := range req.Messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

// answerFor routes by phase markers in the system prompt.
func answerFor(system string) string {
	switch {
	case strings.Contains(system, "news triage analyst"):
		return triageAnswer
	case strings.Contains(system, "facts and the named entities"):
		return elementsAnswer
	case strings.Contains(system, "verbatim quotes"):
		return quotesAnswer
	case strings.Contains(system, "linking the extracted elements"):
		return relationsAnswer
	default:
		// Translation and anything unrecognized echo a fixed Spanish text.
		return translationAnswer
	}
}

const (
	triageAnswer = `{"is_relevant": true, "decision": "PROCESS",
  "justification": "contiene hechos verificables y entidades nombradas",
  "category": "economia", "keywords": ["iva", "hacienda", "impuestos"], "score": 0.92}`

	elementsAnswer = `{
  "facts": [
    {"text": "El Ministerio de Hacienda anunció una reducción del IVA del 21% al 17%", "confidence": 0.95, "type": "ANNOUNCEMENT", "temporal_precision": "exact_date"},
    {"text": "La medida entrará en vigor el próximo trimestre", "confidence": 0.9, "type": "EVENT", "temporal_precision": "approximate"}
  ],
  "entities": [
    {"text": "Ministerio de Hacienda", "type": "ORGANIZATION", "relevance": 0.95, "descriptors": ["ministerio"]},
    {"text": "España", "type": "PLACE", "relevance": 0.6}
  ],
  "summary": "Hacienda anuncia una rebaja del IVA para la cesta básica. Entrará en vigor el próximo trimestre."
}`

	quotesAnswer = `{
  "quotes": [
    {"text": "La rebaja llegará a todos los hogares", "speaker_text": "el ministro", "cited_entity_id": 1, "context": "anuncio de la medida", "relevance": 0.85}
  ],
  "quantitative_data": [
    {"description": "reducción del tipo de IVA", "value": 4, "unit": "%", "period_reference": "próximo trimestre", "category": "fiscal", "trend": "down"}
  ]
}`

	relationsAnswer = `{
  "fact_fact": [
    {"fact_a": 1, "fact_b": 2, "type": "elaborates", "strength": 0.8, "description": "la segunda concreta el calendario de la primera"}
  ],
  "entity_entity": [],
  "contradictions": []
}`

	translationAnswer = "El Ministerio de Hacienda anunció este lunes una reducción del IVA " +
		"que se aplicará a los productos de la cesta básica durante el próximo trimestre."
)

// openAIResponse wraps content in the chat-completions shape.
func openAIResponse(content, model string) any {
	return map[string]any{
		"id":      fmt.Sprintf("chatcmpl-mock-%d", requestCount.Load()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     100,
			"completion_tokens": len(content) / 4,
			"total_tokens":      100 + len(content)/4,
		},
	}
}

// anthropicResponse wraps content in the messages shape.
func anthropicResponse(content, model string) any {
	return map[string]any{
		"id":          fmt.Sprintf("msg-mock-%d", requestCount.Load()),
		"type":        "message",
		"role":        "assistant",
		"model":       model,
		"content":     []map[string]string{{"type": "text", "text": content}},
		"stop_reason": "end_turn",
		"usage": map[string]int{
			"input_tokens":  100,
			"output_tokens": len(content) / 4,
		},
	}
}
