package prompt

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/models"
)

func describedCharacter(name, desc string) models.Character {
	return models.Character{ID: uuid.New(), Name: name, Description: desc}
}

func referenceCharacter(name string) *models.Character {
	return &models.Character{
		ID:          uuid.New(),
		Name:        name,
		RefImage:    []byte{0x89, 0x50},
		RefMimeType: "image/png",
	}
}

func TestComposeImagePromptBlockOrder(t *testing.T) {
	ref := referenceCharacter("Ada")
	opts := ImageOptions{
		Settings: models.Settings{
			AspectRatio: "16:9",
			ImageStyle:  StyleVectorToon,
			Genre:       "comedy",
			Characters:  []models.Character{describedCharacter("Chidi", "tall, glasses")},
		},
		ReferenceCharacter: ref,
		ContinuityTags:     "market stall, rain",
		EmbedAspectRatio:   true,
	}
	p := ComposeImagePrompt("Chidi haggles over yams", opts)

	order := []string{
		"REFERENCE IMAGE:",
		"MANDATORY CASTING:",
		"CHARACTER FIDELITY:",
		"CONTINUITY:",
		"ART STYLE:",
		"SCENE TO DEPICT:\nChidi haggles over yams",
		"strict 16:9 aspect ratio",
		"Genre mood: comedy",
	}
	pos := -1
	for _, marker := range order {
		i := strings.Index(p, marker)
		if i < 0 {
			t.Fatalf("prompt missing %q:\n%s", marker, p)
		}
		if i < pos {
			t.Fatalf("%q appears out of order", marker)
		}
		pos = i
	}
}

func TestComposeImagePromptMinimal(t *testing.T) {
	p := ComposeImagePrompt("a quiet beach", ImageOptions{})

	if !strings.Contains(p, "MANDATORY CASTING:") {
		t.Fatal("mandatory cast directive must always be present")
	}
	if !strings.Contains(p, "SCENE TO DEPICT:\na quiet beach") {
		t.Fatal("scene text missing")
	}
	for _, absent := range []string{"REFERENCE IMAGE:", "CHARACTER FIDELITY:", "CONTINUITY:", "ART STYLE:", "aspect ratio", "Genre mood:"} {
		if strings.Contains(p, absent) {
			t.Fatalf("unexpected block %q in minimal prompt", absent)
		}
	}
}

func TestComposeImagePromptFootersGatedByEmbedFlag(t *testing.T) {
	opts := ImageOptions{
		Settings: models.Settings{AspectRatio: "9:16", Genre: "thriller"},
	}
	p := ComposeImagePrompt("scene", opts)
	if strings.Contains(p, "9:16") || strings.Contains(p, "Genre mood:") {
		t.Fatal("ratio and genre footers must only appear when embedding is requested")
	}
}

func TestComposeEditPromptWithReference(t *testing.T) {
	ref := referenceCharacter("Ada")
	ref.Description = "short hair, gold earrings"
	other := describedCharacter("Chidi", "tall, glasses")
	opts := ImageOptions{
		Settings:           models.Settings{Characters: []models.Character{*ref, other}},
		ReferenceCharacter: ref,
	}
	p := ComposeEditPrompt("make it night", opts)

	if !strings.Contains(p, "Apply this edit to the FIRST image: make it night") {
		t.Fatalf("missing two-image edit header:\n%s", p)
	}
	if !strings.Contains(p, "The SECOND image is the definitive reference for Ada's appearance") {
		t.Fatal("reference enforcement clause missing")
	}
	if !strings.Contains(p, "MANDATORY CASTING:") {
		t.Fatal("mandatory cast directive missing")
	}
	// The reference character is enforced via the second image, not the
	// fidelity list; only the others belong there.
	if !strings.Contains(p, "- Chidi: tall, glasses") {
		t.Fatal("other characters must remain in the fidelity list")
	}
	if strings.Contains(p, "- Ada: short hair, gold earrings") {
		t.Fatal("reference character must be excluded from the fidelity list")
	}
}

func TestComposeEditPromptWithoutReference(t *testing.T) {
	p := ComposeEditPrompt("remove the car", ImageOptions{})
	if !strings.Contains(p, "Apply this edit to the image: remove the car") {
		t.Fatalf("missing single-image edit header:\n%s", p)
	}
	if strings.Contains(p, "SECOND image") {
		t.Fatal("no second-image clause expected without a reference character")
	}
	if !strings.Contains(p, "Preserve everyone's identity") {
		t.Fatal("identity preservation clause missing")
	}
}

func TestCharacterFidelityBlockSkipsUndescribed(t *testing.T) {
	chars := []models.Character{
		describedCharacter("Ada", "short hair"),
		{ID: uuid.New(), Name: "NoDesc"},
	}
	b := CharacterFidelityBlock(chars)
	if !strings.Contains(b, "- Ada: short hair") {
		t.Fatal("described character missing")
	}
	if strings.Contains(b, "NoDesc") {
		t.Fatal("undescribed character must be skipped")
	}
	if CharacterFidelityBlock(nil) != "" {
		t.Fatal("empty roster should produce no block")
	}
}

func TestSceneBreakdownDemandsExactCount(t *testing.T) {
	p := SceneBreakdown("a goat wins the lottery", 5, "comedy", nil)
	if !strings.Contains(p, "EXACTLY 5 sequential scenes") {
		t.Fatal("scene count not pinned")
	}
	if !strings.Contains(p, `{"scenes": ["...", "..."]}`) {
		t.Fatal("response shape not specified")
	}
	if !strings.Contains(p, "GENRE: comedy") {
		t.Fatal("genre missing")
	}
}

func TestAnglePlacementKeys(t *testing.T) {
	p := AnglePlacement([]string{"side", "back"})
	if !strings.Contains(p, `"side_view_prompt"`) || !strings.Contains(p, `"back_view_prompt"`) {
		t.Fatalf("expected per-angle keys in:\n%s", p)
	}
	if !strings.Contains(p, "Requested angles: side, back.") {
		t.Fatal("angle list missing")
	}
}

func TestCameraMovement(t *testing.T) {
	if got := CameraMovement("orbit"); !strings.Contains(got, "smoothly circles") {
		t.Fatalf("orbit expansion wrong: %q", got)
	}
	if got := CameraMovement("  Zoom In "); !strings.Contains(got, "zooms in") {
		t.Fatalf("lookup should normalize case and whitespace, got %q", got)
	}
	static := CameraMovement("static")
	if CameraMovement("barrel roll") != static {
		t.Fatal("unknown movement must fall back to static")
	}
	if CameraMovement("") != static {
		t.Fatal("empty movement must fall back to static")
	}
	if len(CameraMovementNames()) != 11 {
		t.Fatalf("expected 11 presets, got %d", len(CameraMovementNames()))
	}
}

func TestComposeVideoPromptDefaults(t *testing.T) {
	p := ComposeVideoPrompt(VideoOptions{SceneDescription: "a busy market"})
	if !strings.Contains(p, "ACTION: "+DefaultAction) {
		t.Fatal("empty action must fall back to the default")
	}
	if !strings.Contains(p, "CAMERA: the camera is locked off") {
		t.Fatal("missing static camera fallback")
	}
	if strings.Contains(p, "AUDIO:") {
		t.Fatal("no audio clause expected without an assignment")
	}
}

func TestComposeVideoPromptAudioAssignment(t *testing.T) {
	p := ComposeVideoPrompt(VideoOptions{
		SceneDescription: "a busy market",
		AudioAssignment:  models.AudioAssignmentAmbient,
	})
	if !strings.Contains(p, "ambient background") {
		t.Fatal("ambient audio clause missing")
	}

	p = ComposeVideoPrompt(VideoOptions{
		SceneDescription: "a busy market",
		AudioAssignment:  models.AudioAssignment("Ada"),
		LipSyncCharacter: "Ada",
	})
	if !strings.Contains(p, "Ada speaks the supplied audio track") {
		t.Fatal("lip-sync clause missing")
	}
}

func TestSingleSpeakerDelivery(t *testing.T) {
	neutral := SingleSpeakerDelivery("Once upon a time.", StyleVectorToon)
	if strings.Contains(neutral, "Nigerian accent") {
		t.Fatal("neutral styles must not get the accented delivery")
	}
	if !strings.HasSuffix(neutral, "Once upon a time.") {
		t.Fatal("script must follow the delivery instruction")
	}

	accented := SingleSpeakerDelivery("Once upon a time.", StyleNaijaCaricature)
	if !strings.Contains(accented, "Nigerian accent") {
		t.Fatal("caricature style must get the accented delivery")
	}
}

func TestStyleBlock(t *testing.T) {
	if StyleBlock("") != "" {
		t.Fatal("empty style produces no block")
	}
	if got := StyleBlock("watercolor"); got != "ART STYLE: In the style of watercolor." {
		t.Fatalf("generic style wrapping wrong: %q", got)
	}
	if !strings.Contains(StyleBlock(StyleNaijaCaricature), "Ankara") {
		t.Fatal("house style must use its bespoke description")
	}
}
