package core

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLambdaAdapter_RequestConversion(t *testing.T) {
	var got *http.Request
	var gotBody string
	adapter := NewLambdaAdapter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"hv_1"}}`))
	}))

	event := events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/harvest",
		Headers:    map[string]string{"Content-Type": "application/json", "Host": "api.example.com"},
		MultiValueQueryStringParameters: map[string][]string{
			"tag": {"a", "b"},
		},
		QueryStringParameters: map[string]string{"page": "2"},
		Body:                  `{"area":10}`,
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID: "apigw-req-1",
			Identity:  events.APIGatewayRequestIdentity{SourceIP: "203.0.113.9"},
		},
	}

	resp, err := adapter.Handle(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/harvest", got.URL.Path)
	assert.Equal(t, "2", got.URL.Query().Get("page"))
	assert.Equal(t, []string{"a", "b"}, got.URL.Query()["tag"])
	assert.Equal(t, "apigw-req-1", got.Header.Get("X-Request-Id"))
	assert.Equal(t, "203.0.113.9", got.RemoteAddr)
	assert.Equal(t, "api.example.com", got.Host)
	assert.Equal(t, `{"area":10}`, gotBody)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.False(t, resp.IsBase64Encoded)
	assert.Equal(t, `{"data":{"id":"hv_1"}}`, resp.Body)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestLambdaAdapter_Base64RequestBody(t *testing.T) {
	var gotBody string
	adapter := NewLambdaAdapter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))

	_, err := adapter.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/harvest",
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"area":1}`)),
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"area":1}`, gotBody)
}

func TestLambdaAdapter_InvalidBase64(t *testing.T) {
	adapter := NewLambdaAdapter(http.NotFoundHandler())

	_, err := adapter.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/harvest",
		Body:            "%%%not-base64",
		IsBase64Encoded: true,
	})
	assert.Error(t, err)
}

func TestLambdaAdapter_EncodedResponse(t *testing.T) {
	adapter := NewLambdaAdapter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte{0x1f, 0x8b, 0x08})
	}))

	resp, err := adapter.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, resp.IsBase64Encoded)
	raw, err := base64.StdEncoding.DecodeString(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b, 0x08}, raw)
}

func TestLambdaAdapter_FullServer(t *testing.T) {
	srv, _ := newTestServerForRoutes(t, nil)
	adapter := NewLambdaAdapter(srv.Handler())

	resp, err := adapter.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:     http.MethodGet,
		Path:           "/echo-id",
		RequestContext: events.APIGatewayProxyRequestContext{RequestID: "apigw-42"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "apigw-42", resp.Headers["X-Request-Id"])
	assert.JSONEq(t, `{"data":"apigw-42"}`, resp.Body)
}
