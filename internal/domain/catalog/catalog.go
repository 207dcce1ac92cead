package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/samber/lo"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

//go:embed models.yaml
var builtin []byte

// VideoOptions are the user-selectable video parameters
type VideoOptions struct {
	Duration    string `json:"duration,omitempty" yaml:"duration"`
	Resolution  string `json:"resolution,omitempty" yaml:"resolution"`
	AspectRatio string `json:"aspect_ratio,omitempty" yaml:"aspect_ratio"`
	Style       string `json:"style,omitempty" yaml:"style"`
}

// VideoChoices lists the allowed values of each video option; the first
// entry of each list is the default.
type VideoChoices struct {
	Durations    []string `json:"durations" yaml:"durations"`
	Resolutions  []string `json:"resolutions" yaml:"resolutions"`
	AspectRatios []string `json:"aspect_ratios" yaml:"aspect_ratios"`
	Styles       []string `json:"styles" yaml:"styles"`
}

// TextDefaults are the sampling parameters sent with text jobs
type TextDefaults struct {
	Temperature     float64 `json:"temperature" yaml:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens" yaml:"max_output_tokens"`
}

type document struct {
	Models []types.Model `yaml:"models"`
	Video  VideoChoices  `yaml:"video"`
	Text   TextDefaults  `yaml:"text"`
}

// Catalog is the set of models and their argument rules
type Catalog struct {
	models   []types.Model
	byID     map[string]types.Model
	defaults map[types.Kind]types.Model
	video    VideoChoices
	text     TextDefaults
}

// Default returns the embedded catalog
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("embedded model catalog is invalid: %v", err))
	}
	return c
}

// Parse reads a YAML catalog. Every kind must have a model.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := &Catalog{
		byID:     make(map[string]types.Model, len(doc.Models)),
		defaults: make(map[types.Kind]types.Model),
		video:    doc.Video,
		text:     doc.Text,
	}
	for _, m := range doc.Models {
		if m.ID == "" || !m.Kind.Valid() {
			return nil, fmt.Errorf("invalid model entry %q (kind %q)", m.ID, m.Kind)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate model %q", m.ID)
		}
		c.models = append(c.models, m)
		c.byID[m.ID] = m
		if cur, ok := c.defaults[m.Kind]; !ok || (m.Default && !cur.Default) {
			c.defaults[m.Kind] = m
		}
	}

	for _, kind := range []types.Kind{types.KindText, types.KindImage, types.KindVideo} {
		if _, ok := c.defaults[kind]; !ok {
			return nil, fmt.Errorf("catalog has no %s model", kind)
		}
	}
	if c.text.Temperature == 0 {
		c.text.Temperature = 0.7
	}
	if c.text.MaxOutputTokens == 0 {
		c.text.MaxOutputTokens = 1024
	}
	return c, nil
}

// Models returns every model, optionally filtered by kind
func (c *Catalog) Models(kind types.Kind) []types.Model {
	if kind == "" {
		return append([]types.Model(nil), c.models...)
	}
	return lo.Filter(c.models, func(m types.Model, _ int) bool { return m.Kind == kind })
}

// IDs returns every model id
func (c *Catalog) IDs() []string {
	return lo.Map(c.models, func(m types.Model, _ int) string { return m.ID })
}

// Lookup returns a model by id
func (c *Catalog) Lookup(id string) (types.Model, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// DefaultModel returns the default model of a kind
func (c *Catalog) DefaultModel(kind types.Kind) types.Model {
	if m, ok := c.defaults[kind]; ok {
		return m
	}
	return c.defaults[types.KindText]
}

// Resolve returns the named model when it exists and produces the
// requested kind. Otherwise the kind's default is used. An empty kind
// accepts any known model.
func (c *Catalog) Resolve(id string, kind types.Kind) types.Model {
	if m, ok := c.byID[id]; ok && (kind == "" || m.Kind == kind) {
		return m
	}
	if kind == "" {
		kind = types.KindText
	}
	return c.DefaultModel(kind)
}

// Video returns the allowed video options
func (c *Catalog) Video() VideoChoices {
	return c.video
}

// Input is everything a job request can be built from
type Input struct {
	Prompt       string
	SystemPrompt string
	History      []types.Message
	Video        VideoOptions
}

// Request builds the job request for a model
func (c *Catalog) Request(m types.Model, in Input) types.JobRequest {
	args := map[string]interface{}{"prompt": in.Prompt}

	switch m.Kind {
	case types.KindText:
		if in.SystemPrompt != "" {
			args["system_prompt"] = in.SystemPrompt
		}
		args["history"] = History(in.History)
		args["temperature"] = c.text.Temperature
		args["max_output_tokens"] = c.text.MaxOutputTokens
	case types.KindVideo:
		v := c.NormalizeVideo(in.Video)
		args["duration"] = v.Duration
		args["resolution"] = v.Resolution
		args["aspect_ratio"] = v.AspectRatio
		args["style"] = v.Style
	}

	return types.JobRequest{
		Provider:    m.Provider,
		ModelID:     m.ID,
		Arguments:   args,
		StoreResult: m.Kind != types.KindText,
	}
}

// NormalizeVideo replaces unsupported option values with defaults
func (c *Catalog) NormalizeVideo(v VideoOptions) VideoOptions {
	pick := func(value string, allowed []string) string {
		value = strings.TrimSpace(value)
		if lo.Contains(allowed, value) {
			return value
		}
		if len(allowed) == 0 {
			return value
		}
		return allowed[0]
	}
	return VideoOptions{
		Duration:    pick(v.Duration, c.video.Durations),
		Resolution:  pick(v.Resolution, c.video.Resolutions),
		AspectRatio: pick(v.AspectRatio, c.video.AspectRatios),
		Style:       pick(v.Style, c.video.Styles),
	}
}

// HistoryTurn is one prior exchange sent with a text job
type HistoryTurn struct {
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
}

// History keeps finished, non-empty text messages as prior turns
func History(msgs []types.Message) []HistoryTurn {
	finished := lo.Filter(msgs, func(m types.Message, _ int) bool {
		return (m.Kind == types.KindText || m.Kind == "") && !m.IsStreaming && strings.TrimSpace(m.Content) != ""
	})
	return lo.Map(finished, func(m types.Message, _ int) HistoryTurn {
		return HistoryTurn{Role: m.Role, Content: m.Content}
	})
}
