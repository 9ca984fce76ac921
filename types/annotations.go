package types

import "encoding/json"

type AnnotationType string

const (
	AnnotationFile     AnnotationType = "file"
	AnnotationArtifact AnnotationType = "artifact"
	AnnotationSources  AnnotationType = "sources"
)

// Annotation is a typed attachment on a chat message. The payload stays raw
// JSON so unknown annotation types survive a round trip through storage.
type Annotation struct {
	Type AnnotationType  `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewFileAnnotation(file FileAttachment) Annotation {
	data, _ := json.Marshal(file)
	return Annotation{Type: AnnotationFile, Data: data}
}

func NewArtifactAnnotation(artifact Artifact) Annotation {
	data, _ := json.Marshal(artifact)
	return Annotation{Type: AnnotationArtifact, Data: data}
}

func NewSourcesAnnotation(nodes []SourceNode) Annotation {
	data, _ := json.Marshal(struct {
		Nodes []SourceNode `json:"nodes"`
	}{Nodes: nodes})
	return Annotation{Type: AnnotationSources, Data: data}
}

// Artifact decodes the annotation payload when the annotation carries an
// artifact. The second return is false for any other annotation type or an
// undecodable payload.
func (a Annotation) Artifact() (Artifact, bool) {
	if a.Type != AnnotationArtifact || len(a.Data) == 0 {
		return Artifact{}, false
	}
	var artifact Artifact
	if err := json.Unmarshal(a.Data, &artifact); err != nil {
		return Artifact{}, false
	}
	return artifact, true
}

func (a Annotation) File() (FileAttachment, bool) {
	if a.Type != AnnotationFile || len(a.Data) == 0 {
		return FileAttachment{}, false
	}
	var file FileAttachment
	if err := json.Unmarshal(a.Data, &file); err != nil {
		return FileAttachment{}, false
	}
	return file, true
}

func (a Annotation) Sources() ([]SourceNode, bool) {
	if a.Type != AnnotationSources || len(a.Data) == 0 {
		return nil, false
	}
	var payload struct {
		Nodes []SourceNode `json:"nodes"`
	}
	if err := json.Unmarshal(a.Data, &payload); err != nil {
		return nil, false
	}
	return payload.Nodes, true
}
