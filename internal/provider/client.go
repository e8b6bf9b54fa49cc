package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/linode/linodego"

	"github.com/edvin/kubelease/internal/model"
)

// DefaultBaseURL is the public LKE v4 API.
const DefaultBaseURL = "https://api.linode.com/v4"

const defaultAPIVersion = "v4"

var apiVersionSegment = regexp.MustCompile(`^v\d+(beta)?$`)

// APIError is a non-2xx response from the provider.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Reasons    []string
}

func (e *APIError) Error() string {
	msg := "unspecified failure"
	if len(e.Reasons) > 0 {
		msg = strings.Join(e.Reasons, "; ")
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// IsNotFound reports whether err is a 404 from the provider.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is a Provider backed by the LKE API through linodego.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	api linodego.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	c.rebuild()
	return c
}

// WithTLS swaps the transport for one using tlsConfig. A nil config leaves
// the client unchanged.
func (c *Client) WithTLS(tlsConfig *tls.Config) *Client {
	if tlsConfig == nil {
		return c
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	c.HTTPClient.Transport = transport
	c.rebuild()
	return c
}

// rebuild points a fresh linodego client at BaseURL. linodego wants the
// host root and the API version separately, so a trailing "/v4" on
// BaseURL becomes the version.
func (c *Client) rebuild() {
	root, version := splitAPIVersion(c.BaseURL)

	api := linodego.NewClient(c.HTTPClient)
	api.SetToken(c.Token)
	api.SetBaseURL(root)
	api.SetAPIVersion(version)
	c.api = api
}

func splitAPIVersion(baseURL string) (root, version string) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL, defaultAPIVersion
	}

	p := strings.TrimRight(u.Path, "/")
	i := strings.LastIndex(p, "/")
	if i < 0 || !apiVersionSegment.MatchString(p[i+1:]) {
		return baseURL, defaultAPIVersion
	}
	version = p[i+1:]
	u.Path = p[:i]
	return strings.TrimRight(u.String(), "/"), version
}

func (c *Client) ListClusters(ctx context.Context) ([]model.UpstreamCluster, error) {
	items, err := c.api.ListLKEClusters(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", apiError(http.MethodGet, "/lke/clusters", err))
	}

	out := make([]model.UpstreamCluster, 0, len(items))
	for _, it := range items {
		out = append(out, model.UpstreamCluster{
			ID:      strconv.Itoa(it.ID),
			Label:   it.Label,
			Region:  it.Region,
			Version: it.K8sVersion,
			Status:  string(it.Status),
		})
	}
	return out, nil
}

func (c *Client) GetNodePools(ctx context.Context, id string) ([]model.NodePool, error) {
	clusterID, err := parseID(id)
	if err != nil {
		return nil, fmt.Errorf("get node pools: %w", err)
	}

	items, err := c.api.ListLKENodePools(ctx, clusterID, nil)
	if err != nil {
		return nil, fmt.Errorf("get node pools for %s: %w", id, apiError(http.MethodGet, "/lke/clusters/"+id+"/pools", err))
	}

	out := make([]model.NodePool, 0, len(items))
	for _, it := range items {
		out = append(out, model.NodePool{
			ID:    strconv.Itoa(it.ID),
			Type:  it.Type,
			Count: it.Count,
		})
	}
	return out, nil
}

func (c *Client) CreateCluster(ctx context.Context, name string, spec model.ClusterSpec) (string, error) {
	created, err := c.api.CreateLKECluster(ctx, linodego.LKEClusterCreateOptions{
		Label:      name,
		Region:     spec.Region,
		K8sVersion: spec.Version,
		NodePools: []linodego.LKENodePoolCreateOptions{
			{Type: spec.Instance, Count: spec.Size},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create cluster %q: %w", name, apiError(http.MethodPost, "/lke/clusters", err))
	}
	return strconv.Itoa(created.ID), nil
}

func (c *Client) DeleteCluster(ctx context.Context, id string) error {
	clusterID, err := parseID(id)
	if err != nil {
		return fmt.Errorf("delete cluster: %w", err)
	}
	if err := c.api.DeleteLKECluster(ctx, clusterID); err != nil {
		return fmt.Errorf("delete cluster %s: %w", id, apiError(http.MethodDelete, "/lke/clusters/"+id, err))
	}
	return nil
}

func (c *Client) GetKubeconfig(ctx context.Context, id string) (string, error) {
	clusterID, err := parseID(id)
	if err != nil {
		return "", fmt.Errorf("get kubeconfig: %w", err)
	}
	kc, err := c.api.GetLKEClusterKubeconfig(ctx, clusterID)
	if err != nil {
		return "", fmt.Errorf("get kubeconfig for %s: %w", id, apiError(http.MethodGet, "/lke/clusters/"+id+"/kubeconfig", err))
	}
	return kc.KubeConfig, nil
}

func parseID(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, fmt.Errorf("invalid cluster id %q", id)
	}
	return n, nil
}

// apiError turns an HTTP failure reported by linodego into an APIError.
// Transport failures carry a pseudo status below 100 and pass through.
func apiError(method, path string, err error) error {
	var lerr *linodego.Error
	if !errors.As(err, &lerr) || lerr.Code < 100 {
		return err
	}

	var reasons []string
	if msg := strings.TrimSpace(lerr.Message); msg != "" {
		reasons = []string{msg}
	}
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: lerr.Code,
		Reasons:    reasons,
	}
}
