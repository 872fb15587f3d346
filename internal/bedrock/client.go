// Package bedrock implements a client for the AWS Bedrock Converse API.
// Each client is pinned to one region; multi-region failover is layered
// on top by the dispatcher.
package bedrock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/goccy/go-json"

	"github.com/densefog/parley/internal/httputil"
	"github.com/densefog/parley/internal/observability"
	"github.com/densefog/parley/pkg/errors"
)

// Inference parameters sent with every Converse call.
const (
	maxTokens   = 2000
	temperature = 0.7
	topP        = 0.9
)

// Client calls the Bedrock Converse API in a single region.
type Client struct {
	// Endpoint is the Bedrock runtime endpoint. It defaults to the public
	// regional endpoint and may be overridden before first use.
	Endpoint string

	region  string
	modelID string
	creds   aws.CredentialsProvider
	http    *http.Client
}

// New creates a client for one region.
func New(region, modelID string, creds aws.CredentialsProvider, httpClient *http.Client) *Client {
	return &Client{
		Endpoint: fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region),
		region:   region,
		modelID:  modelID,
		creds:    creds,
		http:     httpClient,
	}
}

// NewClients builds one client per region, sharing the default AWS
// credential chain and a single HTTP client.
func NewClients(ctx context.Context, regions []string, modelID string, timeout time.Duration) ([]*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	httpClient := &http.Client{Timeout: timeout}

	clients := make([]*Client, 0, len(regions))
	for _, region := range regions {
		clients = append(clients, New(region, modelID, awsCfg.Credentials, httpClient))
	}
	return clients, nil
}

// Region returns the AWS region this client calls.
func (c *Client) Region() string {
	return c.region
}

// ModelID returns the model this client invokes.
func (c *Client) ModelID() string {
	return c.modelID
}

// Result is one successful model turn.
type Result struct {
	Text         string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Converse sends the message sequence to the model and returns the
// assistant turn. Failures come back as *errors.ChatError classified
// from the AWS error code.
func (c *Client) Converse(ctx context.Context, messages []Message) (*Result, error) {
	ctx, span := observability.StartConverseSpan(ctx, c.region, c.modelID)
	defer span.End()

	result, err := c.converse(ctx, messages)
	if err != nil {
		observability.RecordError(span, err)
	}
	return result, err
}

func (c *Client) converse(ctx context.Context, messages []Message) (*Result, error) {
	body, err := json.Marshal(converseRequest{
		Messages: messages,
		InferenceConfig: inferenceConfig{
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
		},
	})
	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("marshal converse payload: %v", err))
	}

	url := fmt.Sprintf("%s/model/%s/converse", c.Endpoint, c.modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewInternalError(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.sign(ctx, req, body); err != nil {
		return nil, errors.NewInternalError(err.Error())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewBackendError(c.region, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := httputil.ReadLimitedBody(resp.Body, httputil.DefaultMaxResponseBodyBytes)
	if err != nil {
		return nil, errors.NewBackendError(c.region, fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyError(resp.StatusCode, resp.Header, respBody)
	}

	var parsed converseResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.NewBackendError(c.region, fmt.Sprintf("decode response: %v", err))
	}
	if len(parsed.Output.Message.Content) == 0 {
		return nil, errors.NewBackendError(c.region, "model returned no content")
	}

	return &Result{
		Text:         parsed.Output.Message.Content[0].Text,
		StopReason:   parsed.StopReason,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

// sign applies SigV4 over the payload hash, the way Bedrock requires.
func (c *Client) sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve credentials: %w", err)
	}

	payloadHash := sha256.Sum256(body)
	hexHash := hex.EncodeToString(payloadHash[:])

	signer := v4.NewSigner()
	if err := signer.SignHTTP(ctx, creds, req, hexHash, "bedrock", c.region, time.Now()); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	return nil
}

// classifyError maps an AWS error response onto the chat error taxonomy.
// Throttling and access denial are retryable in the next region; a
// validation error means the request itself is bad and retrying cannot
// help.
func (c *Client) classifyError(statusCode int, header http.Header, body []byte) *errors.ChatError {
	code := awsErrorCode(header, body)
	message := awsErrorMessage(body)
	if message == "" {
		message = fmt.Sprintf("bedrock error %d: %s", statusCode, truncate(string(body), 200))
	}

	switch code {
	case "ThrottlingException":
		return errors.NewThrottledError(c.region, message)
	case "AccessDeniedException":
		return errors.NewAccessDeniedError(c.region, message)
	case "ValidationException":
		return errors.NewInvalidRequestError(c.region, message)
	}

	// No recognizable code; fall back to the HTTP status.
	switch statusCode {
	case http.StatusTooManyRequests:
		return errors.NewThrottledError(c.region, message)
	case http.StatusForbidden:
		return errors.NewAccessDeniedError(c.region, message)
	case http.StatusBadRequest:
		return errors.NewInvalidRequestError(c.region, message)
	}
	return errors.NewBackendError(c.region, message)
}

// awsErrorCode extracts the exception name from the X-Amzn-Errortype
// header or the __type body field. Both may carry namespace or URI
// decoration around the bare name.
func awsErrorCode(header http.Header, body []byte) string {
	code := header.Get("X-Amzn-Errortype")
	if code == "" {
		var payload struct {
			Type string `json:"__type"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			code = payload.Type
		}
	}

	if i := strings.IndexByte(code, ':'); i >= 0 {
		code = code[:i]
	}
	if i := strings.LastIndexByte(code, '#'); i >= 0 {
		code = code[i+1:]
	}
	return code
}

func awsErrorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
