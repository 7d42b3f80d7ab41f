// Package prompt builds the exact instruction text sent with each remote
// call. Everything here is pure: structured state in, one string out.
//
// Composition order matters. Identity/integration instructions come first,
// then the mandatory cast directive, then the character list and continuity
// blocks, then the scene text itself — later blocks are refinements of the
// earlier absolute constraints, never overrides.
package prompt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/reelsmith/storyboard/internal/models"
)

// The two house styles with bespoke hand-written descriptions. Every other
// style label is wrapped as "In the style of X".
const (
	StyleVectorToon      = "Vector Toon"
	StyleNaijaCaricature = "Naija Caricature"
)

const vectorToonStyle = "Clean flat vector illustration with bold black outlines, exaggerated caricature proportions, oversized expressive heads, simple geometric shapes, saturated solid colors and minimal shading. The look of a premium editorial cartoon, crisp and print-ready."

const naijaCaricatureStyle = "Vibrant Nigerian street-caricature painting: exaggerated joyful features, rich warm skin tones, bold Ankara fabric patterns, bustling Lagos energy, hand-painted signboard color palette, thick confident brushwork and playful humor in every face."

// mandatoryCastBlock is appended to every image-producing prompt. It is an
// absolute constraint and explicitly overrides conflicting descriptions.
const mandatoryCastBlock = "MANDATORY CASTING: Every human subject in this image must be depicted as Black African. This directive is absolute and overrides any conflicting character description or style cue. Non-human subjects are unaffected."

// StyleBlock maps a style label to its instruction paragraph.
func StyleBlock(style string) string {
	switch style {
	case StyleVectorToon:
		return "ART STYLE: " + vectorToonStyle
	case StyleNaijaCaricature:
		return "ART STYLE: " + naijaCaricatureStyle
	case "":
		return ""
	default:
		return fmt.Sprintf("ART STYLE: In the style of %s.", style)
	}
}

// CharacterFidelityBlock lists every named-and-described character with a
// strict reproduction requirement. Gender mismatch is called out as total
// failure because it is the most common drift the backend produces.
func CharacterFidelityBlock(characters []models.Character) string {
	var described []models.Character
	for _, c := range characters {
		if c.Described() {
			described = append(described, c)
		}
	}
	if len(described) == 0 {
		return ""
	}

	var b bytes.Buffer
	b.WriteString("CHARACTER FIDELITY: The following recurring characters appear in this scene. Reproduce each one's gender, age, ethnicity and listed features EXACTLY as described. Getting a character's gender wrong is a total failure of the task.\n")
	for _, c := range described {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ReferenceIntegrationBlock activates only when a character carries a bound
// reference image: that image is ground truth for the character's identity.
func ReferenceIntegrationBlock(c *models.Character) string {
	if c == nil || !c.HasReferenceImage() {
		return ""
	}
	name := c.Name
	if name == "" {
		name = "the person"
	}
	return fmt.Sprintf("REFERENCE IMAGE: The attached photo is the definitive visual identity of %s. Treat it as ground truth — preserve the face, build, skin tone and distinguishing features exactly while placing %s into the new scene. Only pose, lighting and camera may change.", name, name)
}

// ContinuityBlock embeds a compact tag-list description of a prior scene and
// pins the new scene to it, camera changes excepted.
func ContinuityBlock(sceneTags string) string {
	if sceneTags == "" {
		return ""
	}
	return fmt.Sprintf("CONTINUITY: The previous scene contained: %s. Keep the new scene visually consistent with it — same characters, wardrobe, environment, palette and lighting — changing only what the requested camera instruction demands.", sceneTags)
}

// MandatoryCastBlock exposes the unconditional casting directive.
func MandatoryCastBlock() string {
	return mandatoryCastBlock
}

// AspectRatioFooter embeds the target ratio in text. Only the generation path
// that honors textual ratio instructions uses this; the text-to-image path
// passes the ratio as a structured parameter instead.
func AspectRatioFooter(aspectRatio string) string {
	if aspectRatio == "" {
		return ""
	}
	return fmt.Sprintf("Compose the image for a strict %s aspect ratio.", aspectRatio)
}

// GenreFooter nudges the mood toward the selected genre.
func GenreFooter(genre string) string {
	if genre == "" {
		return ""
	}
	return fmt.Sprintf("Genre mood: %s. Let the lighting, color and staging carry that mood.", genre)
}

// ImageOptions carries the conditional inputs for one image-producing prompt.
type ImageOptions struct {
	Settings models.Settings

	// ReferenceCharacter is the character whose bound reference image rides
	// along with the call, nil when none.
	ReferenceCharacter *models.Character

	// ContinuityTags is the pre-computed compact description of a prior
	// scene used as a visual reference, empty when none.
	ContinuityTags string

	// EmbedAspectRatio marks the generation path that takes the ratio as
	// prompt text rather than a structured parameter.
	EmbedAspectRatio bool
}

// ComposeImagePrompt assembles the full instruction for one image generation.
func ComposeImagePrompt(sceneText string, opts ImageOptions) string {
	var blocks []string

	if b := ReferenceIntegrationBlock(opts.ReferenceCharacter); b != "" {
		blocks = append(blocks, b)
	}
	blocks = append(blocks, mandatoryCastBlock)
	if b := CharacterFidelityBlock(opts.Settings.Characters); b != "" {
		blocks = append(blocks, b)
	}
	if b := ContinuityBlock(opts.ContinuityTags); b != "" {
		blocks = append(blocks, b)
	}
	if b := StyleBlock(opts.Settings.ImageStyle); b != "" {
		blocks = append(blocks, b)
	}

	blocks = append(blocks, "SCENE TO DEPICT:\n"+sceneText)

	if opts.EmbedAspectRatio {
		if b := AspectRatioFooter(opts.Settings.AspectRatio); b != "" {
			blocks = append(blocks, b)
		}
		if b := GenreFooter(opts.Settings.Genre); b != "" {
			blocks = append(blocks, b)
		}
	}

	return strings.Join(blocks, "\n\n")
}

// ---------------------------------------------------------------------------
// Pipeline-step instructions
// ---------------------------------------------------------------------------

// SceneBreakdown asks the model to split an idea into exactly n sequential,
// safety-filtered scene descriptions, as structured JSON.
func SceneBreakdown(idea string, n int, genre string, characters []models.Character) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Break the following story idea into EXACTLY %d sequential scenes for a storyboard.\n\n", n)
	fmt.Fprintf(&b, "IDEA: %s\n\n", idea)
	if genre != "" {
		fmt.Fprintf(&b, "GENRE: %s — every scene must read as this genre.\n\n", genre)
	}
	if block := CharacterFidelityBlock(characters); block != "" {
		b.WriteString(block)
		b.WriteString("\nWeave these characters into the scenes by name where they fit the story.\n\n")
	}
	b.WriteString(`Each scene is one vivid, self-contained visual description of a single moment — concrete subjects, setting, lighting and mood, no camera jargon. Keep every scene family-friendly: no violence, gore, or suggestive content; soften anything in the idea that would breach that.

`)
	fmt.Fprintf(&b, `Respond with a JSON object of this exact shape: {"scenes": ["...", "..."]} containing exactly %d strings, in story order.`, n)
	return b.String()
}

// Outpaint asks for the source image's environment to be extended on all
// sides without touching the original pixels.
func Outpaint() string {
	return "Extend this image outward on all four sides, continuing the visible environment naturally — more of the same room, street, landscape or sky. Do NOT alter, repaint or move any pixel of the original image; it must sit untouched at the center of the wider frame. Match lighting, perspective and style seamlessly."
}

// FrontAngleInstruction is the canned edit prompt for the "front" angle; it
// needs no spatial placement reasoning.
const FrontAngleInstruction = "Re-render this exact scene from a straight-on front camera position at subject eye level. Move ONLY the camera: every person, prop, light and background element stays exactly where it is."

// AnglePlacement asks the model to reason about camera placement inside the
// outpainted scene and answer with one "{angle}_view_prompt" key per angle.
func AnglePlacement(angles []string) string {
	keys := make([]string, len(angles))
	for i, a := range angles {
		keys[i] = fmt.Sprintf(`"%s_view_prompt"`, a)
	}
	var b bytes.Buffer
	b.WriteString("Study the attached wide scene image. For each requested camera angle, work out where a physical camera would stand inside this environment and describe the resulting shot.\n\n")
	fmt.Fprintf(&b, "Requested angles: %s.\n\n", strings.Join(angles, ", "))
	b.WriteString("Each instruction must be a concrete, self-contained image-edit prompt for re-rendering the scene from that camera position, and must explicitly forbid moving anything except the camera — subjects, props, lighting and environment stay fixed.\n\n")
	fmt.Fprintf(&b, "Respond with a JSON object with exactly these keys: %s. Each value is the instruction string for that angle.", strings.Join(keys, ", "))
	return b.String()
}

// ComposeEditPrompt builds the instruction for an in-place image edit. When a
// reference character is supplied, its identity is enforced from the second
// input image; either way the mandatory cast directive and the list of other
// described characters ride along, and identity/style/ratio are preserved.
func ComposeEditPrompt(instruction string, opts ImageOptions) string {
	var blocks []string

	if opts.ReferenceCharacter != nil && opts.ReferenceCharacter.HasReferenceImage() {
		name := opts.ReferenceCharacter.Name
		if name == "" {
			name = "the person"
		}
		blocks = append(blocks, fmt.Sprintf("Apply this edit to the FIRST image: %s\n\nThe SECOND image is the definitive reference for %s's appearance — enforce that identity exactly in the result. Preserve the first image's art style, composition and aspect ratio in everything the edit does not explicitly change.", instruction, name))
	} else {
		blocks = append(blocks, fmt.Sprintf("Apply this edit to the image: %s\n\nPreserve everyone's identity, the art style and the aspect ratio in everything the edit does not explicitly change.", instruction))
	}

	blocks = append(blocks, mandatoryCastBlock)

	others := opts.Settings.Characters
	if opts.ReferenceCharacter != nil {
		filtered := make([]models.Character, 0, len(others))
		for _, c := range others {
			if c.ID != opts.ReferenceCharacter.ID {
				filtered = append(filtered, c)
			}
		}
		others = filtered
	}
	if b := CharacterFidelityBlock(others); b != "" {
		blocks = append(blocks, b)
	}

	return strings.Join(blocks, "\n\n")
}

// ContinuityTagging asks for a compact tag-list description of a scene image,
// used later by ContinuityBlock.
func ContinuityTagging() string {
	return `Describe this image as a compact comma-separated tag list covering: each person (appearance, wardrobe), the setting, key props, lighting and color palette. Respond with a JSON object: {"tags": "..."}.`
}

// DescribeCharacter asks for a character token from a reference photo.
func DescribeCharacter(name string) string {
	var b bytes.Buffer
	b.WriteString("Study the person in this photo")
	if name != "" {
		fmt.Fprintf(&b, " (their name is %s)", name)
	}
	b.WriteString(`. Produce a precise casting description covering gender, approximate age, ethnicity, build, face shape, hair, and any distinctive features or accessories — everything an illustrator needs to redraw this exact person. Also classify the photo's visual style.

Respond with a JSON object: {"description": "...", "style": "..."}.`)
	return b.String()
}

// ---------------------------------------------------------------------------
// Video assembly
// ---------------------------------------------------------------------------

// DefaultAction is what a clip animates when the user gives no script.
const DefaultAction = "subtle natural motion"

// cameraMovements maps the eleven fixed presets to hand-written cinematic
// expansions.
var cameraMovements = map[string]string{
	"static":    "the camera is locked off, perfectly still",
	"zoom in":   "the camera slowly zooms in on the main subject",
	"zoom out":  "the camera slowly zooms out to reveal the surroundings",
	"pan left":  "the camera pans smoothly to the left across the scene",
	"pan right": "the camera pans smoothly to the right across the scene",
	"tilt up":   "the camera tilts upward from the subject toward the sky",
	"tilt down": "the camera tilts downward from above onto the subject",
	"dolly in":  "the camera physically pushes in toward the subject on a dolly",
	"crane up":  "the camera rises on a crane, looking down as it climbs",
	"orbit":     "the camera smoothly circles around the main subject",
	"handheld":  "the camera has a gentle handheld sway, documentary style",
}

// CameraMovement expands a preset name into its cinematic description.
// Unknown or empty names fall back to a static camera.
func CameraMovement(name string) string {
	if d, ok := cameraMovements[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d
	}
	return cameraMovements["static"]
}

// CameraMovementNames lists the supported presets.
func CameraMovementNames() []string {
	names := make([]string, 0, len(cameraMovements))
	for n := range cameraMovements {
		names = append(names, n)
	}
	return names
}

// VideoOptions carries the inputs for one video-generation instruction.
type VideoOptions struct {
	SceneDescription string
	Style            string
	Action           string
	Characters       []models.Character
	CameraMovement   string
	AudioAssignment  models.AudioAssignment
	LipSyncCharacter string
}

// ComposeVideoPrompt builds the single instruction for an async video job.
func ComposeVideoPrompt(opts VideoOptions) string {
	action := opts.Action
	if strings.TrimSpace(action) == "" {
		action = DefaultAction
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "Animate this scene: %s\n\n", opts.SceneDescription)
	if s := StyleBlock(opts.Style); s != "" {
		b.WriteString(s)
		b.WriteString(" Keep the art style identical to the input image in every frame.\n\n")
	}
	fmt.Fprintf(&b, "ACTION: %s\n\n", action)

	var described []models.Character
	for _, c := range opts.Characters {
		if c.Described() {
			described = append(described, c)
		}
	}
	if len(described) > 0 {
		b.WriteString("CHARACTER ANIMATION FIDELITY: These characters must stay on-model through every frame of motion:\n")
		for _, c := range described {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "CAMERA: %s.\n", CameraMovement(opts.CameraMovement))

	switch opts.AudioAssignment {
	case models.AudioAssignmentAmbient:
		b.WriteString("\nAUDIO: The supplied audio track is ambient background — no character mouths the words.")
	case models.AudioAssignmentNone, "":
		// no audio clause
	default:
		name := opts.LipSyncCharacter
		if name == "" {
			name = string(opts.AudioAssignment)
		}
		fmt.Fprintf(&b, "\nAUDIO: %s speaks the supplied audio track — animate accurate lip-sync for %s and natural listening reactions from everyone else.", name, name)
	}

	return b.String()
}

// ---------------------------------------------------------------------------
// Speech delivery
// ---------------------------------------------------------------------------

// neutralDelivery and accentedDelivery wrap a single-speaker script in a
// style-appropriate performance instruction.
const (
	neutralDelivery  = "Read the following in a clear, warm, well-paced narration voice: "
	accentedDelivery = "Perform the following with a lively, warm Nigerian accent and expressive comic timing, like a Nollywood narrator: "
)

// SingleSpeakerDelivery wraps a script for single-speaker synthesis.
func SingleSpeakerDelivery(script, style string) string {
	if style == StyleNaijaCaricature {
		return accentedDelivery + script
	}
	return neutralDelivery + script
}
