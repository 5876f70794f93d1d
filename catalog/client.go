// Package catalog provides typed clients for the storefront's product,
// blog and plant-donation resources. A 401 on an authenticated call
// triggers exactly one session refresh and retry; a second rejection
// surfaces as the session's forced logout.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/greenplanet/storefront/credentials"
	"github.com/greenplanet/storefront/internal/apierrors"
	"github.com/greenplanet/storefront/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	routeProducts  = "/api/products"
	routeBlogs     = "/api/blogs"
	routeDonations = "/api/donations"
	routeHealth    = "/api/health"
)

// Authorizer is the slice of the session manager the catalog needs: a
// fresh token per request and a single-flight refresh on 401.
type Authorizer interface {
	AccessToken() string
	UserID() string
	Refresh(ctx context.Context) error
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       Authorizer
	clientID   string
	log        zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (primarily for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New builds the catalog client. The per-install client id is generated on
// first run and persisted; it also attributes anonymous content creation.
func New(cfg config.APIConfig, store credentials.Store, auth Authorizer, options ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("[catalog.New] credential store is required")
	}

	clientID, err := store.Get(credentials.KeyClientID)
	if errors.Is(err, credentials.ErrKeyNotFound) {
		clientID = uuid.NewString()
		if err := store.Set(credentials.KeyClientID, clientID); err != nil {
			return nil, errors.Wrap(err, "[catalog.New] persist client id")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "[catalog.New] read client id")
	}

	c := &Client{
		baseURL:    cfg.GetBaseURL(),
		httpClient: &http.Client{Timeout: cfg.GetRequestTimeout()},
		auth:       auth,
		clientID:   clientID,
		log:        log.With().Str("component", "catalog").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Health reports whether the backend is reachable.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+routeHealth, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListProducts fetches the catalog, optionally filtered by a search term.
func (c *Client) ListProducts(ctx context.Context, search string) ([]Product, error) {
	var products []Product
	if err := c.list(ctx, routeProducts, search, &products); err != nil {
		return nil, errors.Wrap(err, "[Client.ListProducts]")
	}
	return products, nil
}

func (c *Client) ListBlogs(ctx context.Context, search string) ([]Blog, error) {
	var blogs []Blog
	if err := c.list(ctx, routeBlogs, search, &blogs); err != nil {
		return nil, errors.Wrap(err, "[Client.ListBlogs]")
	}
	return blogs, nil
}

func (c *Client) ListDonations(ctx context.Context, search string) ([]Donation, error) {
	var donations []Donation
	if err := c.list(ctx, routeDonations, search, &donations); err != nil {
		return nil, errors.Wrap(err, "[Client.ListDonations]")
	}
	return donations, nil
}

// CreateProduct posts a new listing. JSON when no image accompanies the
// payload, multipart otherwise.
func (c *Client) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	fields := map[string]string{
		"name":        req.Name,
		"description": req.Description,
		"price":       strconv.FormatFloat(req.Price, 'f', 2, 64),
		"category":    req.Category,
		"stock":       strconv.Itoa(req.Stock),
		"sellerName":  req.SellerName,
		"user":        c.creatorID(),
	}
	body, err := c.createBody(ctx, routeProducts, fields, req.Image)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.CreateProduct]")
	}
	var product Product
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, errors.Wrap(err, "[Client.CreateProduct] decode response")
	}
	return &product, nil
}

func (c *Client) CreateBlog(ctx context.Context, req CreateBlogRequest) (*Blog, error) {
	fields := map[string]string{
		"title":           req.Title,
		"plantType":       req.PlantType,
		"content":         req.Content,
		"cultivationTips": req.CultivationTips,
		"user":            c.creatorID(),
		"author":          c.creatorID(),
	}
	body, err := c.createBody(ctx, routeBlogs, fields, req.Image)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.CreateBlog]")
	}
	var blog Blog
	if err := json.Unmarshal(body, &blog); err != nil {
		return nil, errors.Wrap(err, "[Client.CreateBlog] decode response")
	}
	return &blog, nil
}

func (c *Client) CreateDonation(ctx context.Context, req CreateDonationRequest) (*Donation, error) {
	donor := req.DonorName
	if donor == "" {
		donor = "Anonymous Donor"
	}
	fields := map[string]string{
		"plantName":   req.PlantName,
		"description": req.Description,
		"location":    req.Location,
		"donor":       donor,
		"user":        c.creatorID(),
	}
	body, err := c.createBody(ctx, routeDonations, fields, req.Image)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.CreateDonation]")
	}
	var donation Donation
	if err := json.Unmarshal(body, &donation); err != nil {
		return nil, errors.Wrap(err, "[Client.CreateDonation] decode response")
	}
	return &donation, nil
}

// ClaimDonation asks for a listed plant, with a message to the donor.
func (c *Client) ClaimDonation(ctx context.Context, donationID, message string) error {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return errors.Wrap(err, "[Client.ClaimDonation] marshal body")
	}
	route := fmt.Sprintf("%s/%s/claim", routeDonations, url.PathEscape(donationID))
	if _, err := c.do(ctx, http.MethodPost, route, nil, payload, "application/json", true); err != nil {
		return errors.Wrap(err, "[Client.ClaimDonation]")
	}
	return nil
}

func (c *Client) list(ctx context.Context, route, search string, out interface{}) error {
	var query url.Values
	if search != "" {
		query = url.Values{"search": []string{search}}
	}
	body, err := c.do(ctx, http.MethodGet, route, query, nil, "", false)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// createBody builds and sends a create request: JSON when image is nil,
// multipart with an "image" file part otherwise.
func (c *Client) createBody(ctx context.Context, route string, fields map[string]string, image *ImageUpload) ([]byte, error) {
	if image == nil {
		payload, err := json.Marshal(fields)
		if err != nil {
			return nil, errors.Wrap(err, "marshal create payload")
		}
		return c.do(ctx, http.MethodPost, route, nil, payload, "application/json", true)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, errors.Wrap(err, "write multipart field")
		}
	}
	part, err := writer.CreateFormFile("image", image.FileName)
	if err != nil {
		return nil, errors.Wrap(err, "create multipart file part")
	}
	if _, err := io.Copy(part, image.Content); err != nil {
		return nil, errors.Wrap(err, "copy image content")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "finalise multipart body")
	}
	return c.do(ctx, http.MethodPost, route, nil, buf.Bytes(), writer.FormDataContentType(), true)
}

// do issues the request. The access token is read fresh per attempt so a
// concurrent refresh is always picked up. On the first 401 of an
// authenticated call it refreshes once and retries.
func (c *Client) do(ctx context.Context, method, route string, query url.Values, body []byte, contentType string, authed bool) ([]byte, error) {
	respBody, status, err := c.attempt(ctx, method, route, query, body, contentType, authed)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized && authed && c.auth != nil {
		c.log.Debug().Str("route", route).Msg("call rejected, refreshing session")
		if err := c.auth.Refresh(ctx); err != nil {
			return nil, apierrors.FromStatus(status, respBody)
		}
		respBody, status, err = c.attempt(ctx, method, route, query, body, contentType, authed)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status > 299 {
		return nil, apierrors.FromStatus(status, respBody)
	}
	return respBody, nil
}

func (c *Client) attempt(ctx context.Context, method, route string, query url.Values, body []byte, contentType string, authed bool) ([]byte, int, error) {
	target := c.baseURL + route
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Client-Id", c.clientID)
	if authed && c.auth != nil {
		if token := c.auth.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, apierrors.Transport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, apierrors.Transport(err)
	}
	return respBody, resp.StatusCode, nil
}

// creatorID attributes created content: the logged-in user when there is
// one, the per-install client id otherwise.
func (c *Client) creatorID() string {
	if c.auth != nil {
		if userID := c.auth.UserID(); userID != "" {
			return userID
		}
	}
	return c.clientID
}
