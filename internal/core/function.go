package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"stash/internal/ingest"
)

// RequestFromEvent adapts an API Gateway proxy event. Headers are
// canonicalised and base64 encoded bodies are decoded.
func RequestFromEvent(ev events.APIGatewayProxyRequest) (UploadRequest, error) {
	header := make(http.Header)
	if len(ev.MultiValueHeaders) > 0 {
		for key, values := range ev.MultiValueHeaders {
			for _, v := range values {
				header.Add(key, v)
			}
		}
	} else {
		for key, v := range ev.Headers {
			header.Set(key, v)
		}
	}

	body := []byte(ev.Body)
	if ev.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			return UploadRequest{}, err
		}
		body = decoded
	}

	return UploadRequest{
		Method:        strings.ToUpper(ev.HTTPMethod),
		Header:        header,
		Body:          bytes.NewReader(body),
		ContentLength: int64(len(body)),
	}, nil
}

// EventResponse converts a composed response into the proxy response shape.
func EventResponse(resp Response) events.APIGatewayProxyResponse {
	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		headers[key] = strings.Join(values, ", ")
	}

	return events.APIGatewayProxyResponse{
		StatusCode: resp.Status,
		Headers:    headers,
		Body:       string(resp.Body),
	}
}

// HandleEvent is the serverless entry point. Paths ending in upload-image
// take JSON image bodies; everything else is a multipart upload.
func (s *Server) HandleEvent(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	image := strings.HasSuffix(strings.TrimSuffix(ev.Path, "/"), "upload-image")

	req, err := RequestFromEvent(ev)
	if err != nil {
		slog.InfoContext(ctx, "Rejected event with undecodable body", "path", ev.Path, "err", err)
		kind := ingest.KindMalformedMultipart
		if image {
			kind = ingest.KindInvalidPayload
		}
		return EventResponse(ComposeError(ingest.NewError(kind, err))), nil
	}

	if image {
		return EventResponse(s.HandleUploadImage(ctx, req)), nil
	}
	return EventResponse(s.HandleUpload(ctx, req)), nil
}
