package ai

import (
	"context"

	"github.com/cockroachdb/errors"
	"google.golang.org/genai"
)

const jsonMIMEType = "application/json"

// GeminiModels names the model used per stage.
type GeminiModels struct {
	Text   string
	Speech string
	Image  string
}

// GeminiProvider implements TextProvider and MediaProvider on the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	models GeminiModels
}

// NewGeminiProvider creates a Gemini API client.
func NewGeminiProvider(ctx context.Context, apiKey string, models GeminiModels) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &GeminiProvider{client: client, models: models}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

// Generate runs a text completion.
func (g *GeminiProvider) Generate(ctx context.Context, req TextRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = g.models.Text
	}

	cfg := &genai.GenerateContentConfig{Temperature: req.Temperature}
	// The search tool cannot be combined with a JSON response type.
	switch {
	case req.Search:
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	case req.JSON:
		cfg.ResponseMIMEType = jsonMIMEType
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", errors.Wrapf(err, "gemini %s", req.Stage)
	}
	return resp.Text(), nil
}

// Speech synthesizes text. Returned audio is raw PCM.
func (g *GeminiProvider) Speech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig:       speechConfig(req.Speakers),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.models.Speech, genai.Text(speechText(req.Text, req.Speakers)), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "gemini speech")
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, errors.Mark(errors.New("gemini speech returned no audio"), ErrEmpty)
}

func speechConfig(speakers []Speaker) *genai.SpeechConfig {
	voice := func(name string) *genai.VoiceConfig {
		return &genai.VoiceConfig{PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: name}}
	}

	if len(speakers) > 1 {
		cfgs := make([]*genai.SpeakerVoiceConfig, len(speakers))
		for i, s := range speakers {
			cfgs[i] = &genai.SpeakerVoiceConfig{Speaker: s.Name, VoiceConfig: voice(s.Voice)}
		}
		return &genai.SpeechConfig{
			MultiSpeakerVoiceConfig: &genai.MultiSpeakerVoiceConfig{SpeakerVoiceConfigs: cfgs},
		}
	}

	name := "Kore"
	if len(speakers) == 1 && speakers[0].Voice != "" {
		name = speakers[0].Voice
	}
	return &genai.SpeechConfig{VoiceConfig: voice(name)}
}

// Image renders a single PNG.
func (g *GeminiProvider) Image(ctx context.Context, req ImageRequest) (*Image, error) {
	resp, err := g.client.Models.GenerateImages(ctx, g.models.Image, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    req.AspectRatio,
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return nil, errors.Wrap(err, "gemini image")
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, errors.Mark(errors.New("gemini image returned no images"), ErrEmpty)
	}

	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &Image{Data: img.ImageBytes, MIMEType: mime}, nil
}
