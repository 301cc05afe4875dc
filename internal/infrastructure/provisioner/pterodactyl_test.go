package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/provisioning"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReservation() provisioning.Reservation {
	return provisioning.NewReservation(provisioning.ResourceConfig{
		Name: "my-bot", Owner: "Alice!", MemoryMB: 1024, DiskMB: 2048, CPUPercent: 60,
	}, 22099)
}

func newTestPanel(t *testing.T, handler http.HandlerFunc) *PterodactylClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPterodactylClient(PterodactylConfig{
		URL: srv.URL, APIKey: "ptla_key", NestID: 5, EggID: 15, LocationID: 1,
		DockerImage: "img", Startup: "npm start",
	}, logger.NewNopLogger())
}

func TestPterodactylClient_Provision(t *testing.T) {
	var serverBody map[string]interface{}
	client := newTestPanel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ptla_key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case usersPath:
			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "alice", body["username"])
			assert.NotEmpty(t, body["password"])
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"object":"user","attributes":{"id":42,"username":"alice"}}`))
		case serversPath:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&serverBody))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"object":"server","attributes":{"id":7,"identifier":"abcd","name":"my-bot"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	creds, err := client.Provision(context.Background(), testReservation())

	require.NoError(t, err)
	assert.Equal(t, "7", creds.ServerID)
	assert.Equal(t, "my-bot", creds.ServerName)
	assert.Equal(t, "alice", creds.Username)
	assert.Len(t, creds.Password, 18)

	assert.Equal(t, float64(42), serverBody["user"])
	limits := serverBody["limits"].(map[string]interface{})
	assert.Equal(t, float64(1024), limits["memory"])
	assert.Equal(t, float64(2048), limits["disk"])
	assert.Equal(t, float64(60), limits["cpu"])
}

func TestPterodactylClient_ReusesExistingUser(t *testing.T) {
	client := newTestPanel(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == usersPath && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"errors":[{"code":"ValidationException"}]}`))
		case r.URL.Path == usersPath && r.Method == http.MethodGet:
			assert.Equal(t, "alice", r.URL.Query().Get("filter[username]"))
			w.Write([]byte(`{"data":[{"attributes":{"id":42,"username":"alice"}}]}`))
		case r.URL.Path == serversPath:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"attributes":{"id":8,"name":"my-bot"}}`))
		}
	})

	creds, err := client.Provision(context.Background(), testReservation())

	require.NoError(t, err)
	assert.Equal(t, "8", creds.ServerID)
	assert.Empty(t, creds.Password)
}

func TestPterodactylClient_ServerFailure(t *testing.T) {
	client := newTestPanel(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == usersPath {
			w.Write([]byte(`{"attributes":{"id":42}}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`no allocations available`))
	})

	_, err := client.Provision(context.Background(), testReservation())

	require.ErrorIs(t, err, ErrProvisionFailed)
	assert.Contains(t, err.Error(), "no allocations available")
}

func TestPterodactylClient_RejectsIncompleteReservation(t *testing.T) {
	client := newTestPanel(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("panel must not be called")
	})

	_, err := client.Provision(context.Background(), provisioning.Reservation{Amount: 1})

	assert.ErrorIs(t, err, ErrProvisionFailed)
}

func TestSimulator_Provision(t *testing.T) {
	sim := NewSimulator("https://panel.example")
	sim.FailNext(errors.New("node offline"))

	_, err := sim.Provision(context.Background(), testReservation())
	assert.ErrorIs(t, err, ErrProvisionFailed)

	creds, err := sim.Provision(context.Background(), testReservation())
	require.NoError(t, err)
	assert.Equal(t, "alice", creds.Username)
	assert.Equal(t, "https://panel.example", creds.PanelURL)
	assert.Len(t, sim.Calls(), 2)
}
