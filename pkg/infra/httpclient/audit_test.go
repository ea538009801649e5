package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

func auditAt(location string) domain.ServiceRecord {
	return domain.ServiceRecord{
		Name:     domain.ServiceAudit,
		Location: location,
		Metadata: map[string]string{domain.MetadataRoot: "/operations"},
	}
}

func TestAuditClient_RecentOperations(t *testing.T) {
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/operations", r.URL.Path)
		gotLimit = r.URL.Query().Get("limit")
		_ = json.NewEncoder(w).Encode([]domain.TradeEvent{{ID: "2"}, {ID: "1"}})
	}))
	defer srv.Close()

	client, err := AuditClientFactory(srv.Client())(auditAt(srv.URL))
	require.NoError(t, err)

	events, err := client.RecentOperations(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "2", gotLimit)
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].ID)
}

func TestAuditClient_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewAuditClient(srv.Client(), auditAt(srv.URL))
	require.NoError(t, err)

	_, err = client.RecentOperations(context.Background(), 10)
	assert.ErrorIs(t, err, domain.ErrDownstreamUnavailable)
}
