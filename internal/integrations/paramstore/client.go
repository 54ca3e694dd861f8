// Package paramstore reads the upstream API key from AWS SSM Parameter Store
// when it is not supplied through the environment.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// APIKeyParameter is the name of the key parameter under the configured prefix.
const APIKeyParameter = "upstream-api-key"

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter returns the decrypted value of a single parameter.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// KeyName joins prefix and APIKeyParameter.
func KeyName(prefix string) string {
	return strings.TrimRight(strings.TrimSpace(prefix), "/") + "/" + APIKeyParameter
}

// tokenPayload is the JSON shape accepted for the stored key.
type tokenPayload struct {
	Token string `json:"token"`
}

// FetchAPIKey reads <prefix>/upstream-api-key. The value may be a JSON object
// {"token": "..."} or the raw key.
func FetchAPIKey(ctx context.Context, g Getter, prefix string) (string, error) {
	if g == nil {
		return "", errors.New("paramstore: getter is nil")
	}
	if strings.Trim(strings.TrimSpace(prefix), "/") == "" {
		return "", errors.New("paramstore: parameter prefix is empty")
	}

	raw, err := g.GetParameter(ctx, KeyName(prefix))
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch api key: %w", err)
	}
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("paramstore: unmarshal api key value as JSON: %w", err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", errors.New("paramstore: api key is empty")
	}
	return raw, nil
}
