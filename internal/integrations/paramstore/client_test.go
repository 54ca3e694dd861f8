package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
}

func (f *fakeAPI) GetParameter(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr(`{"token":"gsk-123"}`),
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, `{"token":"gsk-123"}`, v)
}

func TestGetParameter_HappyPath_SecureString(t *testing.T) {
	typeStr := "SecureString"
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr(`{"token":"gsk-123"}`), Type: types.ParameterType(typeStr),
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, `{"token":"gsk-123"}`, v)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

// fakeGetter is a minimal Getter stub.
type fakeGetter struct {
	val  string
	err  error
	name string
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.name = name
	return f.val, f.err
}

func TestKeyName(t *testing.T) {
	require.Equal(t, "/heritage-guide/upstream-api-key", KeyName("/heritage-guide"))
	require.Equal(t, "/heritage-guide/upstream-api-key", KeyName(" /heritage-guide/ "))
}

func TestFetchAPIKey_JSONToken(t *testing.T) {
	g := &fakeGetter{val: `{"token":"gsk-from-json"}`}
	key, err := FetchAPIKey(context.Background(), g, "/heritage-guide")
	require.NoError(t, err)
	require.Equal(t, "gsk-from-json", key)
	require.Equal(t, "/heritage-guide/upstream-api-key", g.name)
}

func TestFetchAPIKey_RawValue(t *testing.T) {
	g := &fakeGetter{val: " gsk-raw \n"}
	key, err := FetchAPIKey(context.Background(), g, "/heritage-guide")
	require.NoError(t, err)
	require.Equal(t, "gsk-raw", key)
}

func TestFetchAPIKey_Errors(t *testing.T) {
	cases := []struct {
		name   string
		getter Getter
		prefix string
		want   string
	}{
		{"nil getter", nil, "/p", "nil"},
		{"empty prefix", &fakeGetter{val: "k"}, " / ", "prefix"},
		{"getter error", &fakeGetter{err: errors.New("ssm unavailable")}, "/p", "ssm unavailable"},
		{"malformed json", &fakeGetter{val: `{"broken`}, "/p", "unmarshal"},
		{"missing token field", &fakeGetter{val: `{"other":"value"}`}, "/p", "api key is empty"},
		{"blank value", &fakeGetter{val: "  "}, "/p", "api key is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FetchAPIKey(context.Background(), tc.getter, tc.prefix)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}
