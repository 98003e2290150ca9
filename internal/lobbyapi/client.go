// Package lobbyapi is the HTTP client for the lobby REST service.
package lobbyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/bulleador/lobbysync/internal/lobby"
	"github.com/bulleador/lobbysync/internal/model"
	"github.com/bulleador/lobbysync/internal/types"
)

var ErrNotFound = errors.New("lobby not found")

// APIError is a non-2xx response from the lobby service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lobby api: %d %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

type Client struct {
	base string
	http *http.Client
	self model.EntityKey
	log  *zap.Logger
}

var _ lobby.Service = (*Client)(nil)

func New(baseURL string, self model.EntityKey, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: httpClient,
		self: self,
		log:  logger.Named("lobbyapi"),
	}
}

func (c *Client) CreateLobby(ctx context.Context, req types.CreateLobbyRequest) (types.CreateLobbyResponse, error) {
	if req.Owner.IsZero() {
		req.Owner = c.self
	}
	var resp types.CreateLobbyResponse
	err := c.do(ctx, http.MethodPost, "/lobbies", req, &resp)
	return resp, err
}

func (c *Client) JoinLobby(ctx context.Context, connectionString string, memberData map[string]string) (types.JoinLobbyResponse, error) {
	var resp types.JoinLobbyResponse
	err := c.do(ctx, http.MethodPost, "/lobbies/join", types.JoinLobbyRequest{
		ConnectionString: connectionString,
		MemberEntity:     c.self,
		MemberData:       memberData,
	}, &resp)
	return resp, err
}

func (c *Client) GetLobby(ctx context.Context, lobbyID string) (model.Snapshot, error) {
	var l types.Lobby
	if err := c.do(ctx, http.MethodGet, lobbyPath(lobbyID, ""), nil, &l); err != nil {
		return model.Snapshot{}, err
	}
	return l.Snapshot(), nil
}

func (c *Client) UpdateLobby(ctx context.Context, req lobby.UpdateRequest) error {
	return c.do(ctx, http.MethodPost, lobbyPath(req.LobbyID, "update"), types.UpdateLobbyRequest{
		MemberEntity: req.Member,
		MemberData:   req.MemberData,
		LobbyData:    req.LobbyData,
	}, nil)
}

func (c *Client) RemoveMember(ctx context.Context, lobbyID, memberID string, preventRejoin bool) error {
	return c.do(ctx, http.MethodPost, lobbyPath(lobbyID, "remove-member"), types.RemoveMemberRequest{
		MemberEntity:  model.EntityKey{ID: memberID, Type: c.self.Type},
		PreventRejoin: preventRejoin,
	}, nil)
}

func (c *Client) LeaveLobby(ctx context.Context, lobbyID, memberID string) error {
	return c.do(ctx, http.MethodPost, lobbyPath(lobbyID, "leave"), types.LeaveLobbyRequest{
		MemberEntity: model.EntityKey{ID: memberID, Type: c.self.Type},
	}, nil)
}

func (c *Client) DeleteLobby(ctx context.Context, lobbyID string) error {
	return c.do(ctx, http.MethodDelete, lobbyPath(lobbyID, ""), nil, nil)
}

func lobbyPath(lobbyID, action string) string {
	p := "/lobbies/" + url.PathEscape(lobbyID)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("lobby api call", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= 300 {
		var e types.ErrorMessage
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
