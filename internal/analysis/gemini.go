package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/hashicorp/go-hclog"
	"google.golang.org/api/option"

	"github.com/patchwatch/patchwatch/internal/model"
	"github.com/patchwatch/patchwatch/pkg/shared/errors"
)

// GeminiBackend runs the analysis stages against a Gemini model. Every call
// asks for a strict JSON answer so the confidence score can be parsed rather
// than guessed from prose.
type GeminiBackend struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger hclog.Logger
}

// NewGeminiBackend creates the inference backend. The model name defaults to
// gemini-pro when empty.
func NewGeminiBackend(ctx context.Context, apiKey, modelName string, logger hclog.Logger) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	if modelName == "" {
		modelName = "gemini-pro"
	}
	m := client.GenerativeModel(modelName)
	m.SetTemperature(0)

	return &GeminiBackend{client: client, model: m, logger: logger}, nil
}

// Close releases the underlying client.
func (g *GeminiBackend) Close() {
	g.client.Close()
}

type presenceAnswer struct {
	Confidence    float64  `json:"confidence"`
	Evidence      string   `json:"evidence"`
	AffectedFiles []string `json:"affected_files"`
}

type fixAnswer struct {
	Patch string `json:"patch"`
	Notes string `json:"notes"`
}

// DetectPresence asks the model whether the vulnerability is present in the
// commit.
func (g *GeminiBackend) DetectPresence(ctx context.Context, in DetectInput) (Assessment, error) {
	prompt := fmt.Sprintf(`You are reviewing a commit for a known vulnerability.

Vulnerability %s: %s
Known vulnerable pattern: %q

Commit %s in %s touches: %s
Diff:
%s

Answer with strict JSON only: {"confidence": <0..1>, "evidence": "<one sentence>", "affected_files": ["..."]}`,
		in.Vulnerability.ID, in.Vulnerability.Summary, in.Vulnerability.VulnerablePattern,
		in.CommitID, in.Repository.URL, strings.Join(in.Files, ", "), in.Diff)

	var answer presenceAnswer
	if err := g.ask(ctx, "presence", prompt, &answer); err != nil {
		return Assessment{}, err
	}
	return Assessment{
		Confidence:    model.ClampConfidence(answer.Confidence),
		Evidence:      answer.Evidence,
		AffectedFiles: answer.AffectedFiles,
	}, nil
}

// GenerateFix asks the model for a patch. The previous rejected patch, if
// any, is included so a regeneration attempt does not repeat it.
func (g *GeminiBackend) GenerateFix(ctx context.Context, in DetectInput, previous Patch) (Patch, error) {
	var retry string
	if previous.Diff != "" {
		retry = fmt.Sprintf("\nA previous attempt was rejected by verification, propose a different fix:\n%s\n", previous.Diff)
	}

	prompt := fmt.Sprintf(`Propose a minimal patch removing vulnerability %s (%s) from this commit.
Preferred safe pattern: %q
%s
Diff introducing the problem:
%s

Answer with strict JSON only: {"patch": "<unified diff>", "notes": "<one sentence>"}`,
		in.Vulnerability.ID, in.Vulnerability.Summary, in.Vulnerability.FixedPattern, retry, in.Diff)

	var answer fixAnswer
	if err := g.ask(ctx, "fix", prompt, &answer); err != nil {
		return Patch{}, err
	}
	return Patch{Diff: answer.Patch, Notes: answer.Notes}, nil
}

// VerifyFix asks the model to score the patch as if presence detection ran
// on the patched code.
func (g *GeminiBackend) VerifyFix(ctx context.Context, in DetectInput, patch Patch) (Assessment, error) {
	prompt := fmt.Sprintf(`Does this patch remove vulnerability %s (%s)?
Known vulnerable pattern: %q

Original diff:
%s

Proposed patch:
%s

Answer with strict JSON only: {"confidence": <0..1 that the patched code is clean>, "evidence": "<one sentence>"}`,
		in.Vulnerability.ID, in.Vulnerability.Summary, in.Vulnerability.VulnerablePattern, in.Diff, patch.Diff)

	var answer presenceAnswer
	if err := g.ask(ctx, "verify", prompt, &answer); err != nil {
		return Assessment{}, err
	}
	return Assessment{
		Confidence: model.ClampConfidence(answer.Confidence),
		Evidence:   answer.Evidence,
	}, nil
}

func (g *GeminiBackend) ask(ctx context.Context, stage, prompt string, out interface{}) error {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return errors.NewAnalysisFailure(stage, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return errors.NewAnalysisFailure(stage, fmt.Errorf("no response candidates"))
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	payload := extractJSON(text)
	if payload == "" {
		g.logger.Debug("unparseable model answer", "stage", stage, "answer", text)
		return errors.NewAnalysisFailure(stage, fmt.Errorf("model answer carries no JSON object"))
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return errors.NewAnalysisFailure(stage, fmt.Errorf("decoding model answer: %w", err))
	}
	return nil
}

// extractJSON pulls the outermost JSON object out of a model answer, which
// may wrap it in markdown fences or prose.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
