package roster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"licensewatch/internal/license/models"
)

type ClientSuite struct {
	suite.Suite
	handler http.HandlerFunc
	server  *httptest.Server
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handler(w, r)
	}))
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) client(token string) *Client {
	return New(s.server.URL+"/", token, WithRetryMax(0), WithTimeout(2*time.Second))
}

func (s *ClientSuite) TestListActiveMembers() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/members", r.URL.Path)
		s.Equal("active", r.URL.Query().Get("status"))
		s.Equal("name,recoNumber", r.URL.Query().Get("fields"))
		s.Equal("Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"members":[
			{"name":"Alice","recoNumber":"R1"},
			{"name":"Bob","recoNumber":""},
			{"name":"","recoNumber":""},
			{"name":" Carol ","recoNumber":" R3 "}
		]}`))
	}

	members, err := s.client("tok").ListActiveMembers(context.Background())
	s.Require().NoError(err)
	s.Equal([]models.Member{
		{Name: "Alice", LicenseID: "R1"},
		{Name: "Bob", LicenseID: ""},
		{Name: "Carol", LicenseID: "R3"},
	}, members)
}

func (s *ClientSuite) TestEmptyRosterIsNotAnError() {
	s.handler = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"members":[]}`))
	}
	members, err := s.client("tok").ListActiveMembers(context.Background())
	s.Require().NoError(err)
	s.Empty(members)
}

func (s *ClientSuite) TestErrors() {
	s.Run("missing token", func() {
		_, err := s.client("").ListActiveMembers(context.Background())
		s.ErrorIs(err, ErrNotConfigured)
	})

	s.Run("unauthorized", func() {
		s.handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}
		_, err := s.client("tok").ListActiveMembers(context.Background())
		s.ErrorIs(err, ErrUnexpectedStatus)
	})

	s.Run("bad json", func() {
		s.handler = func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"members":`))
		}
		_, err := s.client("tok").ListActiveMembers(context.Background())
		s.ErrorIs(err, ErrDecode)
	})
}

func (s *ClientSuite) TestHealth() {
	s.Run("healthy", func() {
		s.handler = func(w http.ResponseWriter, r *http.Request) {
			s.Equal("/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}
		h := s.client("tok").Health(context.Background())
		s.True(h.Healthy)
	})

	s.Run("unhealthy status", func() {
		s.handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}
		h := s.client("tok").Health(context.Background())
		s.False(h.Healthy)
		s.Contains(h.Message, "403")
	})

	s.Run("missing token", func() {
		h := s.client("").Health(context.Background())
		s.False(h.Healthy)
		s.Contains(h.Message, "not configured")
	})
}
