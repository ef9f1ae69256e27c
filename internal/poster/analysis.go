// Package poster turns post text into an image prompt: it asks the chat model
// for a structured visual analysis of the job and renders it into a fixed
// style template.
package poster

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	DefaultJobType          = "Professional Opportunity"
	DefaultJobTitleSentence = "Exciting job opportunity available"
	DefaultSceneDescription = "professional workspace with modern equipment"
	DefaultColorScheme      = "deep blacks with subtle blue accents"
)

// DefaultVisualElements is used when the analysis lists no elements.
var DefaultVisualElements = []string{"modern workstation", "glowing monitors", "focused task lighting"}

// VisualAnalysis is the model's description of what the job looks like.
type VisualAnalysis struct {
	JobType          string     `json:"job_type" jsonschema_description:"What kind of job or work this is, specific."`
	JobTitleSentence string     `json:"job_title_sentence" jsonschema_description:"A clear 8-12 word sentence stating what the job is."`
	SceneDescription string     `json:"scene_description" jsonschema_description:"A realistic, detailed scene of the work environment."`
	VisualElements   StringList `json:"visual_elements" jsonschema_description:"5-7 concrete elements that make the job instantly recognizable."`
	ColorScheme      string     `json:"color_scheme" jsonschema_description:"Specific dark colors to use."`
}

// StringList is the element list; replies may carry a single string instead.
type StringList []string

// WithDefaults fills every blank field with its documented default.
func (a VisualAnalysis) WithDefaults() VisualAnalysis {
	a.JobType = orDefault(a.JobType, DefaultJobType)
	a.JobTitleSentence = orDefault(a.JobTitleSentence, DefaultJobTitleSentence)
	a.SceneDescription = orDefault(a.SceneDescription, DefaultSceneDescription)
	a.ColorScheme = orDefault(a.ColorScheme, DefaultColorScheme)

	elements := make(StringList, 0, len(a.VisualElements))
	for _, e := range a.VisualElements {
		if e = strings.TrimSpace(e); e != "" {
			elements = append(elements, e)
		}
	}
	if len(elements) == 0 {
		elements = append(elements, DefaultVisualElements...)
	}
	a.VisualElements = elements
	return a
}

// DefaultAnalysis is used when no analysis could be obtained at all.
func DefaultAnalysis() VisualAnalysis {
	return VisualAnalysis{
		JobType:          "technology job",
		SceneDescription: "Modern technology workspace with code, digital elements, and innovation symbols",
		VisualElements:   StringList{"code symbols", "digital interface", "tech icons"},
	}.WithDefaults()
}

var errNotObject = errors.New("analysis reply is not a JSON object")

// ParseAnalysis decodes a model reply. The reply must be a JSON object. Each
// key is read on its own: a missing or mistyped value falls back to that
// key's default without discarding the others.
func ParseAnalysis(reply string) (VisualAnalysis, error) {
	reply = strings.TrimSpace(reply)
	if !strings.HasPrefix(reply, "{") || !gjson.Valid(reply) {
		return VisualAnalysis{}, errNotObject
	}
	doc := gjson.Parse(reply)
	a := VisualAnalysis{
		JobType:          stringField(doc, "job_type"),
		JobTitleSentence: stringField(doc, "job_title_sentence"),
		SceneDescription: stringField(doc, "scene_description"),
		VisualElements:   listField(doc, "visual_elements"),
		ColorScheme:      stringField(doc, "color_scheme"),
	}
	return a.WithDefaults(), nil
}

func stringField(doc gjson.Result, key string) string {
	v := doc.Get(key)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

func listField(doc gjson.Result, key string) StringList {
	v := doc.Get(key)
	if v.Type == gjson.String {
		return StringList{v.Str}
	}
	if !v.IsArray() {
		return nil
	}
	var out StringList
	for _, item := range v.Array() {
		if item.Type == gjson.String {
			out = append(out, item.Str)
		}
	}
	return out
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
