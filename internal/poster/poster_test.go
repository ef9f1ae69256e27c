package poster

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"jobposters/poster-go/internal/utils"
)

func init() {
	utils.SetLogOutput(io.Discard)
}

type fakeChat struct {
	reply string
	err   error
	calls int
	last  string
}

func (f *fakeChat) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.last = prompt
	return f.reply, f.err
}

const minecraftJSON = `{
  "job_type": "Minecraft Server Developer",
  "job_title_sentence": "Build a high-performance Minecraft server for 100 players",
  "scene_description": "Gaming setup with server console on ultra-wide monitors",
  "visual_elements": ["server dashboard", "command line interface"],
  "color_scheme": "deep blacks with cyan terminal glow"
}`

func TestComposeFillsDefaultsForEveryMissingSubset(t *testing.T) {
	full := VisualAnalysis{
		JobType:          "Physics Tutor",
		JobTitleSentence: "Teach A level physics to motivated students",
		SceneDescription: "A dim study with a chalkboard full of equations",
		VisualElements:   StringList{"chalkboard", "pendulum"},
		ColorScheme:      "black with amber lamp light",
	}
	defaults := []string{
		DefaultJobType,
		DefaultJobTitleSentence,
		DefaultSceneDescription,
		"- " + DefaultVisualElements[0],
		DefaultColorScheme,
	}

	for mask := 0; mask < 1<<5; mask++ {
		a := full
		if mask&1 != 0 {
			a.JobType = ""
		}
		if mask&2 != 0 {
			a.JobTitleSentence = ""
		}
		if mask&4 != 0 {
			a.SceneDescription = ""
		}
		if mask&8 != 0 {
			a.VisualElements = nil
		}
		if mask&16 != 0 {
			a.ColorScheme = "  "
		}

		prompt := Compose(a, TemplateTextOverlay)
		if strings.Contains(prompt, "{") {
			t.Errorf("mask %05b: unreplaced placeholder in prompt", mask)
		}
		for bit, want := range defaults {
			missing := mask&(1<<bit) != 0
			if missing && !strings.Contains(prompt, want) {
				t.Errorf("mask %05b: prompt missing default %q", mask, want)
			}
		}
	}
}

func TestComposeVisualOnlyHasNoSentence(t *testing.T) {
	a := VisualAnalysis{JobTitleSentence: "Hire me a plumber today"}
	prompt := Compose(a, TemplateVisualOnly)
	if strings.Contains(prompt, "Hire me a plumber today") {
		t.Errorf("visual-only prompt should not carry the sentence")
	}
	for _, want := range []string{DefaultJobType, DefaultSceneDescription, DefaultColorScheme, "- glowing monitors", "NO TEXT"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("visual-only prompt missing %q", want)
		}
	}
}

func TestComposeTextOverlayCentersSentence(t *testing.T) {
	a, err := ParseAnalysis(minecraftJSON)
	if err != nil {
		t.Fatalf("ParseAnalysis: %v", err)
	}
	prompt := Compose(a, TemplateTextOverlay)
	if !strings.Contains(prompt, "\"Build a high-performance Minecraft server for 100 players\"") {
		t.Errorf("sentence not quoted in prompt")
	}
	if !strings.Contains(prompt, "- server dashboard\n- command line interface") {
		t.Errorf("visual elements not rendered as list")
	}
	if !strings.HasPrefix(prompt, "Create a photorealistic") {
		t.Errorf("prompt should be trimmed, got %q", utils.Preview(prompt, 40))
	}
}

func TestParseAnalysisAcceptsSingleStringElements(t *testing.T) {
	a, err := ParseAnalysis(`{"job_type":"Chef","visual_elements":"copper pans"}`)
	if err != nil {
		t.Fatalf("ParseAnalysis: %v", err)
	}
	if !reflect.DeepEqual([]string(a.VisualElements), []string{"copper pans"}) {
		t.Errorf("VisualElements = %v", a.VisualElements)
	}
	if a.ColorScheme != DefaultColorScheme {
		t.Errorf("ColorScheme = %q, want default", a.ColorScheme)
	}
}

func TestParseAnalysisKeepsValidKeysNextToMistypedOnes(t *testing.T) {
	a, err := ParseAnalysis(`{"job_type":"Welder","scene_description":{"where":"shipyard"},"visual_elements":["torch",3,"sparks"],"color_scheme":7}`)
	if err != nil {
		t.Fatalf("ParseAnalysis: %v", err)
	}
	if a.JobType != "Welder" {
		t.Errorf("JobType = %q, want %q", a.JobType, "Welder")
	}
	if a.SceneDescription != DefaultSceneDescription {
		t.Errorf("SceneDescription = %q, want default", a.SceneDescription)
	}
	if !reflect.DeepEqual([]string(a.VisualElements), []string{"torch", "sparks"}) {
		t.Errorf("VisualElements = %v", a.VisualElements)
	}
	if a.ColorScheme != DefaultColorScheme {
		t.Errorf("ColorScheme = %q, want default", a.ColorScheme)
	}
}

func TestAnalyzeMistypedPrimaryReplySkipsFallback(t *testing.T) {
	primary := &fakeChat{reply: `{"job_type":"Welder","visual_elements":["torch",3]}`}
	fallback := &fakeChat{err: errors.New("unused")}
	res := NewComposer(primary, fallback).Analyze(context.Background(), "Need a welder", TemplateTextOverlay)
	if !res.OK() || res.Value.JobType != "Welder" {
		t.Fatalf("got %v %q (%v)", res.Status, res.Value.JobType, res.Reason)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback calls = %d, want 0", fallback.calls)
	}
}

func TestParseAnalysisRejectsNonObjects(t *testing.T) {
	for _, reply := range []string{"", "Sure! Here you go", "[1,2]", "```json\n{}\n```", `{"job_type":`} {
		if _, err := ParseAnalysis(reply); err == nil {
			t.Errorf("ParseAnalysis(%q) should fail", reply)
		}
	}
}

func TestAnalyzePrimarySuccess(t *testing.T) {
	primary := &fakeChat{reply: minecraftJSON}
	fallback := &fakeChat{err: errors.New("unused")}
	res := NewComposer(primary, fallback).Analyze(context.Background(), "Build a Minecraft server", TemplateTextOverlay)
	if !res.OK() {
		t.Fatalf("expected ok, got %v (%v)", res.Status, res.Reason)
	}
	if res.Value.JobType != "Minecraft Server Developer" {
		t.Errorf("JobType = %q", res.Value.JobType)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times", fallback.calls)
	}
	if !strings.Contains(primary.last, `Post: "Build a Minecraft server"`) {
		t.Errorf("instruction does not carry the post text")
	}
}

func TestAnalyzeFencedReplyMatchesBare(t *testing.T) {
	bare := NewComposer(&fakeChat{reply: minecraftJSON}, nil).
		Analyze(context.Background(), "x", TemplateTextOverlay)

	fencedFallback := &fakeChat{reply: "```json\n" + minecraftJSON + "\n```"}
	primary := &fakeChat{reply: "```json\n" + minecraftJSON + "\n```"}
	fenced := NewComposer(primary, fencedFallback).
		Analyze(context.Background(), "x", TemplateTextOverlay)

	if !bare.OK() || !fenced.OK() {
		t.Fatalf("expected both ok: bare=%v fenced=%v (%v)", bare.Status, fenced.Status, fenced.Reason)
	}
	if fencedFallback.calls != 1 {
		t.Errorf("fenced primary reply should go through the fallback, calls = %d", fencedFallback.calls)
	}
	if fencedFallback.last != primary.last {
		t.Errorf("fallback should receive the same instruction")
	}
	if !reflect.DeepEqual(bare.Value, fenced.Value) {
		t.Errorf("fenced analysis = %+v, want %+v", fenced.Value, bare.Value)
	}
}

func TestAnalyzeTotalFailureDegrades(t *testing.T) {
	primary := &fakeChat{err: errors.New("connection refused")}
	fallback := &fakeChat{reply: "I cannot help with that."}
	res := NewComposer(primary, fallback).Analyze(context.Background(), "x", TemplateVisualOnly)
	if !res.Degraded() {
		t.Fatalf("expected degraded, got %v", res.Status)
	}
	if !reflect.DeepEqual(res.Value, DefaultAnalysis()) {
		t.Errorf("Value = %+v, want default analysis", res.Value)
	}
	if res.Value.JobType != "technology job" {
		t.Errorf("JobType = %q", res.Value.JobType)
	}
	if !strings.Contains(res.Reason.Error(), "connection refused") {
		t.Errorf("Reason = %v", res.Reason)
	}
}

func TestInstructionVariants(t *testing.T) {
	overlay := TemplateTextOverlay.Instruction("teach physics 100% remote")
	visual := TemplateVisualOnly.Instruction("teach physics 100% remote")
	if !strings.Contains(overlay, "teach physics 100% remote") {
		t.Errorf("instruction lost the post text")
	}
	if !strings.Contains(overlay, "centered on the image") {
		t.Errorf("overlay instruction should mention centered sentence")
	}
	if !strings.Contains(visual, "no text at all") {
		t.Errorf("visual-only instruction should forbid text")
	}
}

func TestParseTemplate(t *testing.T) {
	cases := map[string]Template{
		"":             TemplateTextOverlay,
		"text-overlay": TemplateTextOverlay,
		"Visual-Only":  TemplateVisualOnly,
		"no-text":      TemplateVisualOnly,
	}
	for in, want := range cases {
		got, err := ParseTemplate(in)
		if err != nil || got != want {
			t.Errorf("ParseTemplate(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseTemplate("poster"); err == nil {
		t.Errorf("expected error for unknown template")
	}
	if TemplateVisualOnly.String() != "visual-only" {
		t.Errorf("String = %q", TemplateVisualOnly.String())
	}
}

func TestAnalysisSchema(t *testing.T) {
	raw, err := json.Marshal(AnalysisSchema())
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	var schema struct {
		Type                 string         `json:"type"`
		Properties           map[string]any `json:"properties"`
		Required             []string       `json:"required"`
		AdditionalProperties *bool          `json:"additionalProperties"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if schema.Type != "object" {
		t.Errorf("type = %q", schema.Type)
	}
	for _, key := range []string{"job_type", "job_title_sentence", "scene_description", "visual_elements", "color_scheme"} {
		if _, ok := schema.Properties[key]; !ok {
			t.Errorf("schema missing property %q", key)
		}
	}
	if len(schema.Required) != 5 {
		t.Errorf("required = %v", schema.Required)
	}
	if schema.AdditionalProperties == nil || *schema.AdditionalProperties {
		t.Errorf("additionalProperties should be false")
	}
}
