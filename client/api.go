package client

import (
	"bytes"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/services"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TokenSource hands out a credential for every request and every dial.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// API is a thin client over the REST endpoints.
type API struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

func NewAPI(baseURL string, tokens TokenSource, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), tokens: tokens, http: httpClient}
}

func (a *API) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var body struct {
		Conversations []domain.Conversation `json:"conversations"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/conversations", nil, &body); err != nil {
		return nil, err
	}
	return body.Conversations, nil
}

func (a *API) StartConversation(ctx context.Context, participant domain.Identity) (domain.Conversation, error) {
	var conversation domain.Conversation
	request := map[string]any{"participant_id": participant.ID, "participant_type": participant.Kind}
	err := a.do(ctx, http.MethodPost, "/api/conversations", request, &conversation)
	return conversation, err
}

func (a *API) ListMessages(ctx context.Context, conversationID string, page, limit int) (services.MessagePage, error) {
	var result services.MessagePage
	path := fmt.Sprintf("/api/conversations/%s/messages?%s", url.PathEscape(conversationID), paging(page, limit))
	err := a.do(ctx, http.MethodGet, path, nil, &result)
	return result, err
}

func (a *API) MarkConversationRead(ctx context.Context, conversationID string) error {
	return a.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil)
}

func (a *API) ListNotifications(ctx context.Context, page, limit int) (services.NotificationPage, error) {
	var result services.NotificationPage
	err := a.do(ctx, http.MethodGet, "/api/notifications?"+paging(page, limit), nil, &result)
	return result, err
}

func (a *API) MarkNotificationsRead(ctx context.Context, ids []uuid.UUID) error {
	request := map[string][]string{"ids": lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })}
	return a.do(ctx, http.MethodPost, "/api/notifications/read", request, nil)
}

func (a *API) MarkAllNotificationsRead(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, nil)
}

func paging(page, limit int) string {
	values := url.Values{}
	if page > 0 {
		values.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	return values.Encode()
}

func (a *API) do(ctx context.Context, method, path string, request, response any) error {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("unable to get token: %w", err)
	}
	var body io.Reader
	if request != nil {
		payload, err := json.Marshal(request)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	httpRequest.Header.Set("Authorization", "Bearer "+token)
	if request != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(httpRequest)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp)
	}
	if response == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(response)
}

// responseError rebuilds the sentinel behind a failed call.
func responseError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return errors.ErrAuthRejected
	}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("%w: %s", errors.FromCode(body.Code), body.Message)
}
