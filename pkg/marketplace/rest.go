/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package marketplace

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/eschercloudai/site-agent/pkg/constants"
	coreerrors "github.com/eschercloudai/site-agent/pkg/errors"
)

// Options configures a REST client for one offering's control plane.
type Options struct {
	// BaseURL is the marketplace API root, e.g. https://portal.example.com.
	BaseURL string

	// Token is the provider scoped API token.
	Token string

	// InsecureSkipTLSVerify disables certificate validation.  Only for
	// development installs with self-signed certificates.
	InsecureSkipTLSVerify bool

	// Timeout is the per-operation deadline, defaulting to 30 seconds.
	Timeout time.Duration
}

// restClient implements Client over the marketplace's JSON REST API.
type restClient struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
}

var _ Client = &restClient{}

// NewClient returns a REST implementation of the Client interface.
// Authentication uses a static token source so the transport can be
// shared by concurrent lanes without locking.
func NewClient(o *Options) (Client, error) {
	if o.BaseURL == "" || o.Token == "" {
		return nil, fmt.Errorf("%w: marketplace URL and token are required", coreerrors.ErrConfiguration)
	}

	base, err := url.Parse(o.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed marketplace URL: %w", coreerrors.ErrConfiguration, err)
	}

	timeout := o.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport

	if o.InsecureSkipTLSVerify {
		transport = &http.Transport{
			//nolint:gosec
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	// The marketplace expects "Authorization: Token <token>"; the token
	// type propagates into the header verbatim.
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: o.Token,
		TokenType:   "Token",
	})

	return &restClient{
		base: base,
		client: &http.Client{
			Transport: &oauth2.Transport{
				Source: source,
				Base:   transport,
			},
		},
		timeout: timeout,
	}, nil
}

// do performs one API call with a bounded deadline, encoding the body and
// decoding the response as JSON, and folding HTTP failures into the error
// taxonomy.
func (c *restClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// JoinPath keeps any path prefix on the configured base URL, and the
	// trailing slash the API routes require.
	endpoint := c.base.JoinPath(path)

	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var payload io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}

		payload = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint.String(), payload)
	if err != nil {
		return err
	}

	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", constants.VersionString())

	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.client.Do(request)
	if err != nil {
		return coreerrors.Transient(err)
	}

	defer response.Body.Close()

	if err := checkStatus(response); err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed response for %s: %w", path, err)
	}

	return nil
}

// checkStatus maps HTTP status codes onto the error taxonomy.
func checkStatus(response *http.Response) error {
	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		return nil
	case response.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", coreerrors.ErrNotFound, response.Request.URL.Path)
	case response.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", coreerrors.ErrAlreadyExists, response.Request.URL.Path)
	case response.StatusCode >= 500:
		return coreerrors.Transient(fmt.Errorf("server error %d from %s", response.StatusCode, response.Request.URL.Path))
	default:
		// Include a bounded slice of the body, DRF validation errors
		// are the only way to see what the server objected to.
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))

		return coreerrors.Permanent(fmt.Errorf("status %d from %s: %s", response.StatusCode, response.Request.URL.Path, string(detail)))
	}
}

func (c *restClient) ListOrders(ctx context.Context, filter *OrderFilter) ([]Order, error) {
	query := url.Values{}

	if filter != nil {
		if filter.OfferingUUID != "" {
			query.Set("offering_uuid", filter.OfferingUUID)
		}

		for _, state := range filter.States {
			query.Add("state", string(state))
		}
	}

	var orders []Order

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-orders/", query, nil, &orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func (c *restClient) GetOrder(ctx context.Context, uuid string) (*Order, error) {
	order := &Order{}

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-orders/"+uuid+"/", nil, nil, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (c *restClient) ApproveOrderByProvider(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodPost, "/api/marketplace-orders/"+uuid+"/approve_by_provider/", nil, map[string]any{}, nil)
}

func (c *restClient) RejectOrderByProvider(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodPost, "/api/marketplace-orders/"+uuid+"/reject_by_provider/", nil, nil, nil)
}

func (c *restClient) SetOrderStateDone(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodPost, "/api/marketplace-orders/"+uuid+"/set_state_done/", nil, nil, nil)
}

func (c *restClient) SetOrderStateErred(ctx context.Context, uuid, message, traceback string) error {
	body := map[string]string{
		"error_message":   message,
		"error_traceback": traceback,
	}

	return c.do(ctx, http.MethodPost, "/api/marketplace-orders/"+uuid+"/set_state_erred/", nil, body, nil)
}

func (c *restClient) ListResources(ctx context.Context, filter *ResourceFilter) ([]Resource, error) {
	query := url.Values{}

	if filter != nil {
		if filter.OfferingUUID != "" {
			query.Set("offering_uuid", filter.OfferingUUID)
		}

		for _, state := range filter.States {
			query.Add("state", string(state))
		}
	}

	var resources []Resource

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-provider-resources/", query, nil, &resources); err != nil {
		return nil, err
	}

	return resources, nil
}

func (c *restClient) GetResource(ctx context.Context, uuid string) (*Resource, error) {
	resource := &Resource{}

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-provider-resources/"+uuid+"/", nil, nil, resource); err != nil {
		return nil, err
	}

	return resource, nil
}

func (c *restClient) SetResourceBackendID(ctx context.Context, uuid, backendID string) error {
	body := map[string]string{
		"backend_id": backendID,
	}

	return c.do(ctx, http.MethodPost, "/api/marketplace-provider-resources/"+uuid+"/set_backend_id/", nil, body, nil)
}

func (c *restClient) SetResourceBackendMetadata(ctx context.Context, uuid string, metadata map[string]any) error {
	body := map[string]any{
		"backend_metadata": metadata,
	}

	return c.do(ctx, http.MethodPost, "/api/marketplace-provider-resources/"+uuid+"/set_backend_metadata/", nil, body, nil)
}

func (c *restClient) SetResourceLimits(ctx context.Context, uuid string, limits map[string]int64) error {
	body := map[string]any{
		"limits": limits,
	}

	return c.do(ctx, http.MethodPost, "/api/marketplace-provider-resources/"+uuid+"/set_limits/", nil, body, nil)
}

func (c *restClient) SetResourceAsOK(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodPost, "/api/marketplace-provider-resources/"+uuid+"/set_as_ok/", nil, nil, nil)
}

func (c *restClient) SetResourceAsErred(ctx context.Context, uuid, message, traceback string) error {
	body := map[string]any{
		"error_message":   message,
		"error_traceback": traceback,
	}

	return c.do(ctx, http.MethodPost, "/api/marketplace-provider-resources/"+uuid+"/set_as_erred/", nil, body, nil)
}

func (c *restClient) RefreshResourceLastSync(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodPost, "/api/marketplace-provider-resources/"+uuid+"/refresh_last_sync/", nil, nil, nil)
}

func (c *restClient) ResourceTeam(ctx context.Context, uuid string) ([]TeamMember, error) {
	var team []TeamMember

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-provider-resources/"+uuid+"/team/", nil, nil, &team); err != nil {
		return nil, err
	}

	return team, nil
}

func (c *restClient) ListOfferingUsers(ctx context.Context, filter *OfferingUserFilter) ([]OfferingUser, error) {
	query := url.Values{}

	if filter != nil {
		if filter.OfferingUUID != "" {
			query.Set("offering_uuid", filter.OfferingUUID)
		}

		if filter.Username != "" {
			query.Set("username", filter.Username)
		}

		if filter.UserUUID != "" {
			query.Set("user_uuid", filter.UserUUID)
		}

		for _, state := range filter.States {
			query.Add("state", string(state))
		}
	}

	var users []OfferingUser

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-offering-users/", query, nil, &users); err != nil {
		return nil, err
	}

	return users, nil
}

func (c *restClient) PatchOfferingUser(ctx context.Context, uuid string, patch *OfferingUserPatch) error {
	return c.do(ctx, http.MethodPatch, "/api/marketplace-offering-users/"+uuid+"/", nil, patch, nil)
}

func (c *restClient) BeginCreatingOfferingUser(ctx context.Context, uuid string) error {
	return c.do(ctx, http.MethodPost, "/api/marketplace-offering-users/"+uuid+"/begin_creating/", nil, nil, nil)
}

func (c *restClient) SetOfferingUserOK(ctx context.Context, uuid, username string) error {
	body := map[string]string{
		"username": username,
	}

	return c.do(ctx, http.MethodPost, "/api/marketplace-offering-users/"+uuid+"/set_ok/", nil, body, nil)
}

func (c *restClient) SetOfferingUserPendingAccountLinking(ctx context.Context, uuid, comment, commentURL string) error {
	body := map[string]string{
		"comment":     comment,
		"comment_url": commentURL,
	}

	return c.do(ctx, http.MethodPost, "/api/marketplace-offering-users/"+uuid+"/set_pending_account_linking/", nil, body, nil)
}

func (c *restClient) SetOfferingUserPendingAdditionalValidation(ctx context.Context, uuid, comment, commentURL string) error {
	body := map[string]string{
		"comment":     comment,
		"comment_url": commentURL,
	}

	return c.do(ctx, http.MethodPost, "/api/marketplace-offering-users/"+uuid+"/set_pending_additional_validation/", nil, body, nil)
}

func (c *restClient) ListComponentUsages(ctx context.Context, resourceUUID string, period time.Time) ([]ComponentUsage, error) {
	query := url.Values{}
	query.Set("resource_uuid", resourceUUID)
	query.Set("billing_period", period.Format("2006-01-02"))

	var usages []ComponentUsage

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-component-usages/", query, nil, &usages); err != nil {
		return nil, err
	}

	return usages, nil
}

func (c *restClient) SetUsage(ctx context.Context, resourceUUID string, items []UsageItem) error {
	body := map[string]any{
		"resource": resourceUUID,
		"usages":   items,
	}

	return c.do(ctx, http.MethodPost, "/api/marketplace-component-usages/set_usage/", nil, body, nil)
}

func (c *restClient) SetUserUsage(ctx context.Context, componentUsageUUID, username, userUUID string, amount Amount) error {
	body := map[string]any{
		"username": username,
		"user":     userUUID,
		"usage":    amount,
	}

	return c.do(ctx, http.MethodPost, "/api/marketplace-component-usages/"+componentUsageUUID+"/set_user_usage/", nil, body, nil)
}

func (c *restClient) ListUserUsages(ctx context.Context, componentUsageUUID string) ([]UserUsage, error) {
	query := url.Values{}
	query.Set("component_usage_uuid", componentUsageUUID)

	var usages []UserUsage

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-component-user-usages/", query, nil, &usages); err != nil {
		return nil, err
	}

	return usages, nil
}

func (c *restClient) ListServiceAccounts(ctx context.Context, projectUUID string) ([]ServiceAccount, error) {
	query := url.Values{}
	query.Set("project_uuid", projectUUID)

	var accounts []ServiceAccount

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-service-accounts/", query, nil, &accounts); err != nil {
		return nil, err
	}

	return accounts, nil
}

func (c *restClient) ListCourseAccounts(ctx context.Context, projectUUID string) ([]CourseAccount, error) {
	query := url.Values{}
	query.Set("project_uuid", projectUUID)

	var accounts []CourseAccount

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-course-accounts/", query, nil, &accounts); err != nil {
		return nil, err
	}

	return accounts, nil
}

func (c *restClient) GetOffering(ctx context.Context, uuid string) (*OfferingDetails, error) {
	offering := &OfferingDetails{}

	if err := c.do(ctx, http.MethodGet, "/api/marketplace-provider-offerings/"+uuid+"/", nil, nil, offering); err != nil {
		return nil, err
	}

	return offering, nil
}
