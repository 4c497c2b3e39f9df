package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonwraymond/tokenart/cache"
	"github.com/jonwraymond/tokenart/observe"
)

// TemplateType selects the document template a script is injected into.
type TemplateType int

const (
	// TemplateP5 runs the script as a p5.js sketch.
	TemplateP5 TemplateType = iota
	// TemplateSVG runs the script against a bare SVG host element.
	TemplateSVG
)

func (t TemplateType) String() string {
	switch t {
	case TemplateP5:
		return "p5"
	case TemplateSVG:
		return "svg"
	default:
		return fmt.Sprintf("template(%d)", int(t))
	}
}

// Valid reports whether t names a known template.
func (t TemplateType) Valid() bool {
	return t == TemplateP5 || t == TemplateSVG
}

// ParseTemplateType parses "p5" or "svg" (case-insensitive).
func ParseTemplateType(s string) (TemplateType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p5":
		return TemplateP5, nil
	case "svg":
		return TemplateSVG, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTemplate, s)
	}
}

// MarshalJSON encodes the template by name.
func (t TemplateType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTemplate, int(t))
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts either the template name or its numeric index.
func (t *TemplateType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseTemplateType(name)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}

	var index int
	if err := json.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, data)
	}
	if !TemplateType(index).Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownTemplate, index)
	}
	*t = TemplateType(index)
	return nil
}

// TokenInfo identifies a render target. TokenHash names the artifact files
// and the in-process cache entry; TokenID keys the metadata store.
type TokenInfo struct {
	TokenHash string `json:"tokenHash"`
	TokenID   string `json:"tokenId"`
}

// Request fully determines a render's output.
type Request struct {
	Script   string       `json:"script"`
	Template TemplateType `json:"type"`
	Token    TokenInfo    `json:"tokenInfo"`
	Count    int          `json:"count"`
}

// Validate checks that the request can be rendered and persisted.
func (r Request) Validate() error {
	if err := cache.ValidateKey(r.Token.TokenHash); err != nil {
		return fmt.Errorf("%w: token hash: %w", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(r.Token.TokenID) == "" {
		return fmt.Errorf("%w: token id is required", ErrInvalidRequest)
	}
	if !r.Template.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, ErrUnknownTemplate)
	}
	return nil
}

// Meta returns the telemetry identity of the request.
func (r Request) Meta() observe.TokenMeta {
	return observe.TokenMeta{
		Hash:     r.Token.TokenHash,
		ID:       r.Token.TokenID,
		Template: r.Template.String(),
	}
}

// Result is the output of one render. After Coordinator.Render returns,
// Thumbnail always holds the bytes that were persisted, whether the document
// supplied them or they were derived from Image.
type Result struct {
	Metadata  json.RawMessage
	Image     []byte
	Thumbnail []byte
}
