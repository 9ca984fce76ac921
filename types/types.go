package types

import (
	"encoding/json"
	"sort"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one turn in a conversation. Annotations carry structured
// side-channel data (attachments, artifacts, citation sources) alongside the
// message text. History is append-only; the client replays it in full on
// each turn.
type ChatMessage struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

type ChatRequest struct {
	ConversationID string         `json:"conversationId,omitempty"`
	Messages       []ChatMessage  `json:"messages"`
	Params         map[string]any `json:"params,omitempty"`
}

type ArtifactKind string

const (
	ArtifactKindCode     ArtifactKind = "code"
	ArtifactKindDocument ArtifactKind = "document"
)

// Artifact is a generated document or code payload attached to a
// conversation. A nil CreatedAt marks a pending artifact whose timestamp is
// not yet known; such artifacts order after all timestamped ones.
type Artifact struct {
	CreatedAt *time.Time      `json:"createdAt"`
	Kind      ArtifactKind    `json:"kind"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type SourceNode struct {
	NodeID     string         `json:"nodeId"`
	CitationID string         `json:"citationId"`
	Score      float64        `json:"score"`
	Text       string         `json:"text,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type FileAttachment struct {
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
}

// Artifacts collects every artifact annotation in history order and returns
// them sorted by createdAt ascending. Artifacts without a timestamp sort
// last; ties keep their insertion order.
func Artifacts(messages []ChatMessage) []Artifact {
	var out []Artifact
	for _, msg := range messages {
		for _, ann := range msg.Annotations {
			artifact, ok := ann.Artifact()
			if !ok {
				continue
			}
			out = append(out, artifact)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CreatedAt, out[j].CreatedAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})
	return out
}

// LastArtifact returns the most recent artifact in the conversation, the
// baseline a following turn edits. A pending artifact (nil createdAt) wins
// over any timestamped one.
func LastArtifact(messages []ChatMessage) *Artifact {
	artifacts := Artifacts(messages)
	if len(artifacts) == 0 {
		return nil
	}
	last := artifacts[len(artifacts)-1]
	return &last
}
