package provisioner

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/provisioning"
)

const (
	usersPath   = "/api/application/users"
	serversPath = "/api/application/servers"
)

var usernameCleaner = regexp.MustCompile(`[^a-z0-9_.-]+`)

// PterodactylConfig configures the application API client.
type PterodactylConfig struct {
	URL         string
	APIKey      string
	NestID      int
	EggID       int
	LocationID  int
	DockerImage string
	Startup     string
	Environment map[string]string
	EmailDomain string
	Timeout     time.Duration
}

// PterodactylClient provisions a panel user and a server owned by that user.
type PterodactylClient struct {
	cfg  PterodactylConfig
	http *http.Client
	log  logger.Logger
}

func NewPterodactylClient(cfg PterodactylConfig, log logger.Logger) *PterodactylClient {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EmailDomain == "" {
		cfg.EmailDomain = "panel.local"
	}
	if cfg.Environment == nil {
		cfg.Environment = map[string]string{
			"INST":        "npm",
			"USER_UPLOAD": "0",
			"AUTO_UPDATE": "0",
			"CMD_RUN":     cfg.Startup,
		}
	}
	return &PterodactylClient{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: log}
}

type object struct {
	Attributes struct {
		ID         int    `json:"id"`
		Identifier string `json:"identifier"`
		Username   string `json:"username"`
		Name       string `json:"name"`
	} `json:"attributes"`
}

type list struct {
	Data []object `json:"data"`
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("panel responded %d: %s", e.Status, e.Body)
}

// Provision creates (or reuses) the owner's panel account, then the server. An existing account keeps
// its password, so the returned Password is empty in that case.
func (p *PterodactylClient) Provision(ctx context.Context, r provisioning.Reservation) (provisioning.Credentials, error) {
	if err := r.ResourceConfig.Validate(); err != nil {
		return provisioning.Credentials{}, fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}

	username := sanitizeUsername(r.Owner)
	userID, password, err := p.ensureUser(ctx, username)
	if err != nil {
		return provisioning.Credentials{}, fmt.Errorf("%w: user %s: %v", ErrProvisionFailed, username, err)
	}

	server, err := p.createServer(ctx, r, userID)
	if err != nil {
		return provisioning.Credentials{}, fmt.Errorf("%w: server %s: %v", ErrProvisionFailed, r.Name, err)
	}

	p.log.Info("Panel server created",
		logger.String("server_id", strconv.Itoa(server.Attributes.ID)),
		logger.String("username", username))

	return provisioning.Credentials{
		ServerID:   strconv.Itoa(server.Attributes.ID),
		ServerName: server.Attributes.Name,
		Username:   username,
		Password:   password,
		PanelURL:   p.cfg.URL,
	}, nil
}

func (p *PterodactylClient) ensureUser(ctx context.Context, username string) (int, string, error) {
	password, err := generatePassword()
	if err != nil {
		return 0, "", err
	}

	body := map[string]interface{}{
		"email":      username + "@" + p.cfg.EmailDomain,
		"username":   username,
		"first_name": username,
		"last_name":  "User",
		"password":   password,
	}

	var created object
	err = p.do(ctx, http.MethodPost, usersPath, body, &created)
	if err == nil {
		return created.Attributes.ID, password, nil
	}

	var ae *apiError
	if !errors.As(err, &ae) || ae.Status != http.StatusUnprocessableEntity {
		return 0, "", err
	}

	// 422: the username or email is taken, reuse the account.
	var found list
	q := url.Values{"filter[username]": {username}}
	if err := p.do(ctx, http.MethodGet, usersPath+"?"+q.Encode(), nil, &found); err != nil {
		return 0, "", err
	}
	for _, u := range found.Data {
		if strings.EqualFold(u.Attributes.Username, username) {
			return u.Attributes.ID, "", nil
		}
	}
	return 0, "", fmt.Errorf("user %s rejected but not found", username)
}

func (p *PterodactylClient) createServer(ctx context.Context, r provisioning.Reservation, userID int) (object, error) {
	body := map[string]interface{}{
		"name":         r.Name,
		"user":         userID,
		"egg":          p.cfg.EggID,
		"nest":         p.cfg.NestID,
		"docker_image": p.cfg.DockerImage,
		"startup":      p.cfg.Startup,
		"environment":  p.cfg.Environment,
		"limits": map[string]int{
			"memory": r.MemoryMB,
			"swap":   0,
			"disk":   r.DiskMB,
			"io":     500,
			"cpu":    r.CPUPercent,
		},
		"feature_limits": map[string]int{
			"databases":   5,
			"backups":     5,
			"allocations": 5,
		},
		"deploy": map[string]interface{}{
			"locations":    []int{p.cfg.LocationID},
			"dedicated_ip": false,
			"port_range":   []string{},
		},
	}

	var server object
	if err := p.do(ctx, http.MethodPost, serversPath, body, &server); err != nil {
		return object{}, err
	}
	return server, nil
}

func (p *PterodactylClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Accept", "Application/vnd.pterodactyl.v1+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		msg := string(raw)
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return &apiError{Status: resp.StatusCode, Body: msg}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func sanitizeUsername(owner string) string {
	name := usernameCleaner.ReplaceAllString(strings.ToLower(strings.TrimSpace(owner)), "")
	if name == "" {
		name = "user"
	}
	return name
}

func generatePassword() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
