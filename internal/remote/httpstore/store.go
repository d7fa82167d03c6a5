// Package httpstore adapts a JSON-over-HTTP cart backend to the
// cart.RemoteCartStore interface. Responses use the data/error envelope;
// retryable failures back off on a fibonacci schedule.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/angelmondragon/cartsync/internal/cart"
	"github.com/angelmondragon/cartsync/pkg/config"
	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/logger"
	"github.com/angelmondragon/cartsync/pkg/types"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// Store is the HTTP RemoteCartStore client.
type Store struct {
	baseURL *url.URL
	client  *http.Client
	cfg     config.RemoteStoreConfig
	logg    *logger.Logger
}

// New builds the client from config. The base URL must be absolute.
func New(cfg config.RemoteStoreConfig, logg *logger.Logger) (*Store, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote store base url required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing remote store base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("remote store base url must be absolute")
	}
	return &Store{
		baseURL: base,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		cfg:     cfg,
		logg:    logg,
	}, nil
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// Fetch implements cart.RemoteCartStore.
func (s *Store) Fetch(ctx context.Context, ownerID uuid.UUID) (*cart.Cart, error) {
	var fetched cart.Cart
	path := fmt.Sprintf("/owners/%s/cart", ownerID)
	if err := s.do(ctx, http.MethodGet, path, nil, &fetched); err != nil {
		return nil, err
	}
	return &fetched, nil
}

// UpdateLineQuantity implements cart.RemoteCartStore.
func (s *Store) UpdateLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, quantity int) (*cart.Cart, error) {
	var updated cart.Cart
	path := fmt.Sprintf("/carts/%s/lines/%s", cartID, lineID)
	if err := s.do(ctx, http.MethodPut, path, updateQuantityRequest{Quantity: quantity}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// RemoveLine implements cart.RemoteCartStore.
func (s *Store) RemoveLine(ctx context.Context, cartID, lineID uuid.UUID) error {
	path := fmt.Sprintf("/carts/%s/lines/%s", cartID, lineID)
	return s.do(ctx, http.MethodDelete, path, nil, nil)
}

// Clear implements cart.RemoteCartStore.
func (s *Store) Clear(ctx context.Context, cartID uuid.UUID) error {
	path := fmt.Sprintf("/carts/%s/lines", cartID)
	return s.do(ctx, http.MethodDelete, path, nil, nil)
}

// do runs one request with retries. Only errors the taxonomy marks retryable
// re-enter the backoff loop; everything else fails fast.
func (s *Store) do(ctx context.Context, method, path string, body, dest any) error {
	backoff := retry.WithMaxRetries(uint64(s.cfg.RetryMax), retry.NewFibonacci(s.cfg.RetryBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.doOnce(ctx, method, path, body, dest)
		if err == nil {
			return nil
		}
		if pkgerrors.Retryable(err) {
			s.logg.Warn(s.logg.WithField(ctx, "path", path), "remote call failed, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Store) doOnce(ctx context.Context, method, path string, body, dest any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding request body")
		}
		payload = bytes.NewReader(encoded)
	}

	endpoint := s.baseURL.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRemote, err, "remote store unreachable")
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if dest == nil {
		return nil
	}

	var envelope types.SuccessEnvelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRemote, err, "reading response")
	}
	envelope.Data = dest
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRemote, err, "decoding response")
	}
	return nil
}

// decodeError maps the wire error back into the taxonomy. A body that does
// not parse falls back to a status-based code.
func decodeError(resp *http.Response) error {
	var envelope types.ErrorEnvelope
	raw, readErr := io.ReadAll(resp.Body)
	if readErr == nil && json.Unmarshal(raw, &envelope) == nil && envelope.Error.Code != "" {
		code := pkgerrors.Code(envelope.Error.Code)
		return pkgerrors.New(code, envelope.Error.Message)
	}
	return pkgerrors.New(codeForStatus(resp.StatusCode), http.StatusText(resp.StatusCode))
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	case status >= http.StatusInternalServerError:
		return pkgerrors.CodeRemote
	case status >= http.StatusBadRequest:
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeInternal
}
