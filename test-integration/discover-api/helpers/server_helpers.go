package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onsi/gomega"

	discoverapp "github.com/stacklok/site-discovery-server/internal/app"
	"github.com/stacklok/site-discovery-server/internal/auth"
	"github.com/stacklok/site-discovery-server/internal/config"
)

// ServerTestHelper manages the discovery server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	httpClient *http.Client
	app        *discoverapp.DiscoverApp
	cfg        *config.Config
	port       int
}

// NewServerTestHelper creates a new server test helper
func NewServerTestHelper(ctx context.Context, configPath string, port int) *ServerTestHelper {
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		port: port,
	}
}

// StartServer starts the discovery server programmatically
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	s.cfg = cfg

	app, err := discoverapp.NewDiscoverApp(s.ctx,
		discoverapp.WithConfig(cfg),
		discoverapp.WithAddress(fmt.Sprintf("127.0.0.1:%d", s.port)),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	go func() {
		if err := app.Start(s.ctx); err != nil {
			// The test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the discovery server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/health")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// GetSites makes a GET request to /discover/sites with the given query
func (s *ServerTestHelper) GetSites(query url.Values) (*http.Response, error) {
	u := s.baseURL + "/discover/sites"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return s.httpClient.Get(u)
}

// ListSites fetches /discover/sites and decodes the body, failing the test on error
func (s *ServerTestHelper) ListSites(query url.Values) *SiteList {
	resp, err := s.GetSites(query)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = resp.Body.Close()
	}()
	gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK))

	var list SiteList
	gomega.Expect(json.NewDecoder(resp.Body).Decode(&list)).To(gomega.Succeed())
	return &list
}

// GetSite makes a GET request to /discover/sites/{id}
func (s *ServerTestHelper) GetSite(id string) (*http.Response, error) {
	return s.httpClient.Get(fmt.Sprintf("%s/discover/sites/%s", s.baseURL, id))
}

// GetIndex makes a GET request to /discover
func (s *ServerTestHelper) GetIndex() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/discover")
}

// TriggerSync makes a POST request to /discover/sync. An empty token sends no
// Authorization header.
func (s *ServerTestHelper) TriggerSync(token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.baseURL+"/discover/sync", nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.httpClient.Do(req)
}

// GetSyncStatus makes an authenticated GET request to /discover/sync/status
func (s *ServerTestHelper) GetSyncStatus(token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.baseURL+"/discover/sync/status", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return s.httpClient.Do(req)
}

// AdminToken issues an admin token signed with the server's configured secret
func (s *ServerTestHelper) AdminToken() string {
	gomega.Expect(s.cfg).NotTo(gomega.BeNil(), "server must be started first")
	secret, err := s.cfg.Auth.GetAdminSecret()
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	token, err := auth.IssueAdminToken(secret, s.cfg.Auth.Issuer, "integration", time.Minute)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return token
}

// GetHealth makes a GET request to /health
func (s *ServerTestHelper) GetHealth() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/health")
}

// GetReadiness makes a GET request to /readiness
func (s *ServerTestHelper) GetReadiness() (*http.Response, error) {
	return s.httpClient.Get(s.baseURL + "/readiness")
}

// GetBaseURL returns the base URL of the server
func (s *ServerTestHelper) GetBaseURL() string {
	return s.baseURL
}

// SiteList is the decoded body of GET /discover/sites
type SiteList struct {
	Sites []Site `json:"sites"`
	Meta  struct {
		Page       int   `json:"page"`
		PerPage    int   `json:"per_page"`
		Total      int64 `json:"total"`
		TotalPages int64 `json:"total_pages"`
	} `json:"meta"`
}

// Site is a single site as returned by the read API
type Site struct {
	ID              int64    `json:"id"`
	ExternalTopicID int64    `json:"external_topic_id"`
	SiteName        string   `json:"site_name"`
	SiteURL         string   `json:"site_url"`
	Description     *string  `json:"description"`
	Locale          *string  `json:"locale"`
	Categories      []string `json:"categories"`
	Featured        bool     `json:"featured"`
}

// FreePort returns a TCP port that was free at the time of the call
func FreePort() int {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = listener.Close()
	}()
	return listener.Addr().(*net.TCPAddr).Port
}

// ConfigOptions holds optional settings for WriteConfigYAML
type ConfigOptions struct {
	Disabled    bool
	APIKey      string
	AdminSecret string
	MaxRetries  int
	Database    *PostgresInstance
}

// WriteConfigYAML writes a configuration file pointing at the forum and returns its path
func WriteConfigYAML(dir, forumURL, slug string, opts ConfigOptions) string {
	var b strings.Builder

	fmt.Fprintf(&b, "enabled: %t\n\n", !opts.Disabled)

	fmt.Fprintf(&b, "source:\n  baseUrl: %s\n  categorySlug: %s\n  timeout: 5s\n", forumURL, slug)
	if opts.APIKey != "" {
		fmt.Fprintf(&b, "  apiKey: %s\n  apiUsername: system\n", opts.APIKey)
	}

	// Short delays keep the crawl fast; the interval never elapses during a spec
	fmt.Fprintf(&b, `
sync:
  interval: 1h
  pageDelay: 1ms
  baseRetryDelay: 10ms
  maxRetries: %d
  bootstrapMaxRetries: %d
`, opts.MaxRetries, opts.MaxRetries)

	if opts.AdminSecret != "" {
		fmt.Fprintf(&b, "\nauth:\n  adminSecret: %s\n", opts.AdminSecret)
	}

	if db := opts.Database; db != nil {
		fmt.Fprintf(&b, `
database:
  host: %s
  port: %d
  user: %s
  password: %s
  database: %s
  sslMode: disable
  maxConns: 4
`, db.Host, db.Port, db.User, db.Password, db.Database)
	}

	path := filepath.Join(dir, "config.yaml")
	gomega.Expect(os.WriteFile(path, []byte(b.String()), 0o600)).To(gomega.Succeed())
	return path
}
