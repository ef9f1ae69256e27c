package poster

import (
	"fmt"
	"strings"
)

// Template selects the poster style.
type Template int

const (
	// TemplateTextOverlay renders a photorealistic, ultra-dark scene with the
	// job sentence centered on the image.
	TemplateTextOverlay Template = iota
	// TemplateVisualOnly renders the same kind of scene with no text at all.
	TemplateVisualOnly
)

func (t Template) String() string {
	switch t {
	case TemplateTextOverlay:
		return "text-overlay"
	case TemplateVisualOnly:
		return "visual-only"
	default:
		return fmt.Sprintf("template(%d)", int(t))
	}
}

// ParseTemplate accepts the names printed by String. An empty name selects
// TemplateTextOverlay.
func ParseTemplate(name string) (Template, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text-overlay", "text", "overlay":
		return TemplateTextOverlay, nil
	case "visual-only", "visual", "no-text":
		return TemplateVisualOnly, nil
	default:
		return 0, fmt.Errorf("unknown template %q (want text-overlay or visual-only)", name)
	}
}

func (t Template) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Template) UnmarshalText(b []byte) error {
	parsed, err := ParseTemplate(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

const textOverlayStyle = `
Create a photorealistic 16:9 landscape poster (1792x1008 pixels) showing exactly what this job entails.

Job Type: {job_type}

CENTERED TEXT (place prominently in center of image):
"{job_title_sentence}"

Scene Description:
{scene_description}

Visual Elements (make these prominent and clear):
{visual_elements}

Color Scheme:
{color_scheme}

COMPOSITION REQUIREMENTS:
- The job description text MUST be centered vertically and horizontally with equal spacing and highly visible
- Use clean, bold, professional sans-serif font for the text
- Text should have subtle glow or shadow for readability against dark background
- Text size should be large enough to read clearly (main focal point)
- Text should have a heavy black drop shadow that darkens the background behind it

STYLE REQUIREMENTS:
- PHOTOREALISTIC: Looks like a real photograph or cinema-quality 3D render
- Show actual workspace, tools, equipment that make the job immediately recognizable
- ULTRA DARK THEME: Background must be extremely dark, almost pure black (#000000 to #0a0a0a)
- Only light sources should be screens, LEDs, or small desk lamps creating minimal illumination
- 90% of the image should be in deep shadow with only key elements subtly lit
- Dramatic cinematic lighting with practical sources (screens, LEDs, desk lamps) kept dim
- Very high contrast between the few lit areas and the dominant dark shadows
- Background areas not lit by screens/lights should be pure black or near-black
- Color palette: {color_scheme} but keep overall brightness very low
- Professional and polished aesthetic with moody, nighttime atmosphere
- 8K quality, sharp details, realistic textures
- The scene should clearly communicate what the job is, even without text
- Atmospheric effects: very subtle light rays, minimal screen glow, dark ambient lighting
- Composition should be balanced with text centered as the hero element
- Overall image luminosity should be very low, like a dimly lit room at night
`

const visualOnlyStyle = `
Create a 16:9 landscape image (1792x1008 pixels) that shows exactly what this job entails, using visuals only.

Job Type: {job_type}

Scene Description:
{scene_description}

Visual Elements (make these prominent and clear):
{visual_elements}

Color Scheme:
{color_scheme}

STRICT RULES:
- NO TEXT of any kind: no words, letters, numbers, logos, captions, signs or watermarks
- Screens may glow but must not show readable characters
- The job must be recognizable from the tools, equipment and setting alone

STYLE REQUIREMENTS:
- Dark aesthetic: near-black background with deep shadows covering most of the frame
- Lighting comes only from practical sources such as monitors, LEDs and small lamps, kept dim
- Color palette: {color_scheme}, low overall brightness, high contrast on the few lit areas
- Cinematic depth of field with the main workspace as the focal point
- Realistic textures and materials, sharp details
- Moody, quiet, nighttime atmosphere
`

const instructionHead = `
Analyze this job posting and create a clear, explicit description for a job poster image.
Even if the post is vague, you should make the job clear and specific in your description.

Post: "%s"

Provide a JSON response with:
1. "job_type": What kind of job/work is this? (be specific)
2. "job_title_sentence": A clear sentence that explicitly states what the job is (8-12 words)
   Example: "Looking for an experienced developer to build a Minecraft server"
   Example: "Seeking a graphic designer to create hackathon promotional materials"
3. "scene_description": A realistic, detailed scene showing what this job work environment looks like
4. "visual_elements": List of 5-7 specific realistic elements that make the job instantly recognizable
5. "color_scheme": Specific dark colors to use (e.g., "deep blue and purple with cyan accents")

Example for a Minecraft server job:
{
  "job_type": "Minecraft Server Developer",
  "job_title_sentence": "Build a high-performance Minecraft server for 100 players",
  "scene_description": "Professional gaming setup with ultra-wide monitors displaying Minecraft server console, command terminals with server stats, glowing mechanical keyboard, server rack visible in background with blue LED indicators, dark room with RGB ambient lighting",
  "visual_elements": ["Minecraft server dashboard", "command line interface", "performance graphs", "server rack with lights", "gaming peripherals", "multiple monitors"],
  "color_scheme": "deep blacks with cyan and green terminal glow"
}
`

const textOverlayNote = `
IMPORTANT: The job_title_sentence will be centered on the image. Make it very clear and specific. If the post is vague, infer the most likely job description.

Respond only with valid JSON.
`

const visualOnlyNote = `
IMPORTANT: The image will contain no text at all, so the scene_description and visual_elements must carry the whole message. Do not describe signs, captions or on-screen words.

Respond only with valid JSON.
`

// Instruction is the analysis request sent to the chat model for text.
func (t Template) Instruction(text string) string {
	// Not fmt: the post text may itself contain verbs.
	head := strings.Replace(instructionHead, "%s", text, 1)
	note := textOverlayNote
	if t == TemplateVisualOnly {
		note = visualOnlyNote
	}
	return strings.TrimSpace(head + note)
}

func (t Template) style() string {
	if t == TemplateVisualOnly {
		return visualOnlyStyle
	}
	return textOverlayStyle
}

// Compose renders analysis into the template. Blank fields are replaced by
// their defaults first, so every placeholder is always filled.
func Compose(analysis VisualAnalysis, t Template) string {
	a := analysis.WithDefaults()

	lines := make([]string, 0, len(a.VisualElements))
	for _, e := range a.VisualElements {
		lines = append(lines, "- "+e)
	}

	r := strings.NewReplacer(
		"{job_type}", a.JobType,
		"{job_title_sentence}", a.JobTitleSentence,
		"{scene_description}", a.SceneDescription,
		"{visual_elements}", strings.Join(lines, "\n"),
		"{color_scheme}", a.ColorScheme,
	)
	return strings.TrimSpace(r.Replace(t.style()))
}
