package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	apperrors "launchpad/internal/errors"
)

// Default configuration values.
const (
	DefaultAPIBaseURL    = "https://api.github.com"
	DefaultAssetPattern  = "*.zip"
	DefaultTimeout       = 30 * time.Second
	DefaultUserAgent     = "launchpad-release-resolver"
	maxReleaseBodyBytes  = 10 << 20
	releaseAcceptHeader  = "application/vnd.github+json"
	releaseLatestPathFmt = "%s/repos/%s/%s/releases/latest"
)

// Release describes the newest published release and where to fetch it.
type Release struct {
	Version     Version
	DownloadURL string
	Name        string
	Notes       string
	PageURL     string
	AssetName   string
	AssetSize   int64
	PublishedAt time.Time
}

// releaseAsset is the wire format for one downloadable file of a release.
type releaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	ContentType        string `json:"content_type"`
	Size               int64  `json:"size"`
}

// releaseDocument is the wire format of the release metadata endpoint.
type releaseDocument struct {
	TagName     string         `json:"tag_name"`
	Name        string         `json:"name"`
	Body        string         `json:"body"`
	HTMLURL     string         `json:"html_url"`
	PublishedAt time.Time      `json:"published_at"`
	Draft       bool           `json:"draft"`
	Assets      []releaseAsset `json:"assets"`
}

// Resolver queries the release metadata endpoint for the latest release.
type Resolver struct {
	endpoint     string
	assetPattern string
	token        string
	userAgent    string
	httpClient   *http.Client
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient sets a custom HTTP client for the resolver.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.httpClient.Timeout = timeout
	}
}

// WithAssetPattern selects the release asset by glob (path.Match syntax).
func WithAssetPattern(pattern string) ResolverOption {
	return func(r *Resolver) {
		if strings.TrimSpace(pattern) != "" {
			r.assetPattern = pattern
		}
	}
}

// WithToken sends a bearer token with every request. Needed for private
// repositories and raises API rate limits.
func WithToken(token string) ResolverOption {
	return func(r *Resolver) {
		r.token = strings.TrimSpace(token)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ResolverOption {
	return func(r *Resolver) {
		if ua != "" {
			r.userAgent = ua
		}
	}
}

// GitHubLatestURL returns the releases/latest endpoint for owner/repo.
func GitHubLatestURL(baseURL, owner, repo string) string {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	return fmt.Sprintf(releaseLatestPathFmt, strings.TrimRight(baseURL, "/"), owner, repo)
}

// NewResolver creates a resolver for the given metadata endpoint.
func NewResolver(endpoint string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		endpoint:     endpoint,
		assetPattern: DefaultAssetPattern,
		userAgent:    DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Endpoint returns the metadata URL the resolver queries.
func (r *Resolver) Endpoint() string {
	return r.endpoint
}

// FetchLatest performs one request to the metadata endpoint and returns the
// release it describes.
//
// Transport failures and non-2xx responses are network_unavailable; a body
// that cannot be turned into a version plus download URL is malformed_release.
func (r *Resolver) FetchLatest(ctx context.Context) (Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return Release{}, apperrors.New(apperrors.CodeNetworkUnavailable, "create release request", err)
	}
	req.Header.Set("Accept", releaseAcceptHeader)
	req.Header.Set("User-Agent", r.userAgent)
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Release{}, apperrors.New(apperrors.CodeNetworkUnavailable, "release service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return Release{}, apperrors.New(apperrors.CodeNetworkUnavailable,
			fmt.Sprintf("release service rate limited the request (status %d)", resp.StatusCode), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Release{}, apperrors.New(apperrors.CodeNetworkUnavailable,
			fmt.Sprintf("release service returned status %d", resp.StatusCode), nil)
	}

	var doc releaseDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReleaseBodyBytes)).Decode(&doc); err != nil {
		return Release{}, apperrors.New(apperrors.CodeMalformedRelease, "decode release document", err)
	}

	return r.toRelease(doc)
}

// DownloadURLFor returns the archive URL for a resolved release.
func (r *Resolver) DownloadURLFor(release Release) string {
	return release.DownloadURL
}

func (r *Resolver) toRelease(doc releaseDocument) (Release, error) {
	tag := strings.TrimSpace(doc.TagName)
	if tag == "" {
		return Release{}, apperrors.New(apperrors.CodeMalformedRelease, "release document has no tag_name", nil)
	}

	asset, err := r.selectAsset(doc.Assets)
	if err != nil {
		return Release{}, err
	}

	return Release{
		Version:     NewVersion(tag),
		DownloadURL: asset.BrowserDownloadURL,
		Name:        doc.Name,
		Notes:       doc.Body,
		PageURL:     doc.HTMLURL,
		AssetName:   asset.Name,
		AssetSize:   asset.Size,
		PublishedAt: doc.PublishedAt,
	}, nil
}

// selectAsset returns the first asset whose name matches the pattern.
func (r *Resolver) selectAsset(assets []releaseAsset) (releaseAsset, error) {
	for _, asset := range assets {
		ok, err := path.Match(r.assetPattern, asset.Name)
		if err != nil {
			return releaseAsset{}, apperrors.New(apperrors.CodeConfigurationError,
				fmt.Sprintf("invalid asset pattern %q", r.assetPattern), err)
		}
		if ok && strings.TrimSpace(asset.BrowserDownloadURL) != "" {
			return asset, nil
		}
	}
	return releaseAsset{}, apperrors.New(apperrors.CodeMalformedRelease,
		fmt.Sprintf("release has no asset matching %q", r.assetPattern), nil)
}
