// Package azure talks to an Azure OpenAI deployment for chat completions
// and embeddings.
package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/covid-rag/reinfection-advisor/internal/domain"
)

// DefaultTemperature matches the sampling temperature the explanations were
// tuned against.
const DefaultTemperature float32 = 0.3

// Credentials identify an Azure OpenAI deployment.
type Credentials struct {
	APIKey     string
	Endpoint   string
	APIVersion string
	Deployment string
}

// Missing returns the names of empty credential fields.
func (c Credentials) Missing() []string {
	var missing []string
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "api_key")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if strings.TrimSpace(c.APIVersion) == "" {
		missing = append(missing, "api_version")
	}
	if strings.TrimSpace(c.Deployment) == "" {
		missing = append(missing, "deployment")
	}
	return missing
}

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float32) ProviderOption {
	return func(p *Provider) {
		p.temperature = t
	}
}

// WithEmbeddingDeployment sets the deployment used by Embed. Without it the
// provider cannot embed.
func WithEmbeddingDeployment(name string) ProviderOption {
	return func(p *Provider) {
		p.embeddingDeployment = name
	}
}

// Provider implements domain.Completer and domain.Embedder against one
// Azure OpenAI resource.
type Provider struct {
	client              *openai.Client
	creds               Credentials
	temperature         float32
	embeddingDeployment string
	httpClient          *http.Client
}

var (
	_ domain.Completer = (*Provider)(nil)
	_ domain.Embedder  = (*Provider)(nil)
)

// New validates creds and builds a client. Deployment names are used
// verbatim in request URLs.
func New(creds Credentials, opts ...ProviderOption) (*Provider, error) {
	if missing := creds.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("azure credentials missing: %s", strings.Join(missing, ", "))
	}

	p := &Provider{
		creds:       creds,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg := openai.DefaultAzureConfig(creds.APIKey, strings.TrimRight(creds.Endpoint, "/"))
	cfg.APIVersion = creds.APIVersion
	cfg.AzureModelMapperFunc = func(model string) string { return model }
	if p.httpClient != nil {
		cfg.HTTPClient = p.httpClient
	}

	p.client = openai.NewClientWithConfig(cfg)
	return p, nil
}

func (p *Provider) Name() string {
	return "azure"
}

// Complete sends prompt as a single user message and returns the first choice.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.creds.Deployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: p.temperature,
	})
	if err != nil {
		return "", describe(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("azure returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding of text from the embedding deployment.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.embeddingDeployment == "" {
		return nil, errors.New("azure embedding deployment not configured")
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.embeddingDeployment),
	})
	if err != nil {
		return nil, describe(err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("azure returned no embeddings")
	}
	return resp.Data[0].Embedding, nil
}

// describe flattens API errors into a message carrying the HTTP status.
func describe(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("azure api error (status %d): %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("azure request error (status %d): %w", reqErr.HTTPStatusCode, err)
	}
	return err
}
