package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gdtech/pairgate/internal/apperrors"
	"github.com/gdtech/pairgate/internal/model"
	"github.com/gdtech/pairgate/internal/session"
)

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) Create(ctx context.Context, phoneNumber string) (*session.CreateResult, error) {
	args := m.Called(ctx, phoneNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.CreateResult), args.Error(1)
}

func (m *mockLifecycle) GetStatus(ctx context.Context, sessionID string) (*session.StatusResult, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.StatusResult), args.Error(1)
}

func (m *mockLifecycle) GetByCode(ctx context.Context, code string) (*session.StatusResult, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.StatusResult), args.Error(1)
}

func (m *mockLifecycle) Cancel(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func newTestServer(m *mockLifecycle) *httptest.Server {
	return httptest.NewServer(NewSessionHandler(m).Routes())
}

func TestCreateSession(t *testing.T) {
	t.Run("creates session from phone number", func(t *testing.T) {
		m := &mockLifecycle{}
		m.On("Create", mock.Anything, "+15551234567").
			Return(&session.CreateResult{SessionID: "abc", Code: "GDT-AAAA-BBBB"}, nil)
		srv := newTestServer(m)
		defer srv.Close()

		body := bytes.NewBufferString(`{"phoneNumber":"+15551234567"}`)
		resp, err := http.Post(srv.URL+"/", "application/json", body)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var result session.CreateResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, "abc", result.SessionID)
		assert.Equal(t, "GDT-AAAA-BBBB", result.Code)
		m.AssertExpectations(t)
	})

	t.Run("empty body starts a QR-initiated session", func(t *testing.T) {
		m := &mockLifecycle{}
		m.On("Create", mock.Anything, "").
			Return(&session.CreateResult{SessionID: "abc", Code: "GDT-AAAA-BBBB"}, nil)
		srv := newTestServer(m)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		m.AssertExpectations(t)
	})

	t.Run("invalid phone number returns 400 with error code", func(t *testing.T) {
		m := &mockLifecycle{}
		m.On("Create", mock.Anything, "bogus").
			Return(nil, apperrors.InvalidPhoneNumber("bad number"))
		srv := newTestServer(m)
		defer srv.Close()

		body := bytes.NewBufferString(`{"phoneNumber":"bogus"}`)
		resp, err := http.Post(srv.URL+"/", "application/json", body)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var errResp struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
		assert.Equal(t, string(apperrors.ErrCodeInvalidPhoneNumber), errResp.Code)
	})

	t.Run("malformed JSON returns 400", func(t *testing.T) {
		m := &mockLifecycle{}
		srv := newTestServer(m)
		defer srv.Close()

		body := bytes.NewBufferString(`{"phoneNumber":`)
		resp, err := http.Post(srv.URL+"/", "application/json", body)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		m.AssertNotCalled(t, "Create")
	})
}

func TestGetStatus(t *testing.T) {
	t.Run("returns the session snapshot", func(t *testing.T) {
		m := &mockLifecycle{}
		m.On("GetStatus", mock.Anything, "abc").
			Return(&session.StatusResult{
				SessionID: "abc",
				Status:    model.StatusOpen,
				Code:      "GDT-AAAA-BBBB",
			}, nil)
		srv := newTestServer(m)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/abc")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result session.StatusResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, model.StatusOpen, result.Status)
	})

	t.Run("unknown session returns 404", func(t *testing.T) {
		m := &mockLifecycle{}
		m.On("GetStatus", mock.Anything, "missing").
			Return(nil, apperrors.NotFound("session"))
		srv := newTestServer(m)
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/missing")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGetByCode(t *testing.T) {
	m := &mockLifecycle{}
	m.On("GetByCode", mock.Anything, "GDT-AAAA-BBBB").
		Return(&session.StatusResult{
			SessionID: "abc",
			Status:    model.StatusPending,
			Code:      "GDT-AAAA-BBBB",
		}, nil)
	srv := newTestServer(m)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/code/GDT-AAAA-BBBB")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result session.StatusResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "abc", result.SessionID)
	m.AssertExpectations(t)
}

func TestCancelSession(t *testing.T) {
	t.Run("cancels a live session", func(t *testing.T) {
		m := &mockLifecycle{}
		m.On("Cancel", mock.Anything, "abc").Return(nil)
		srv := newTestServer(m)
		defer srv.Close()

		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/abc", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		m.AssertExpectations(t)
	})

	t.Run("terminal session returns 409", func(t *testing.T) {
		m := &mockLifecycle{}
		m.On("Cancel", mock.Anything, "abc").Return(apperrors.SessionTerminal())
		srv := newTestServer(m)
		defer srv.Close()

		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/abc", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}
