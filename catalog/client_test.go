package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/greenplanet/storefront/catalog"
	"github.com/greenplanet/storefront/credentials"
	"github.com/greenplanet/storefront/credentials/storefakes"
	"github.com/greenplanet/storefront/internal/apierrors"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	baseURL string
}

func (c testConfig) GetBaseURL() string {
	return c.baseURL
}

func (c testConfig) GetRequestTimeout() time.Duration {
	return 2 * time.Second
}

// fakeAuthorizer stands in for the session manager.
type fakeAuthorizer struct {
	mu           sync.Mutex
	token        string
	userID       string
	refreshCalls int
	refreshErr   error
	nextToken    string
}

func (f *fakeAuthorizer) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeAuthorizer) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func (f *fakeAuthorizer) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	if f.nextToken != "" {
		f.token = f.nextToken
	}
	return nil
}

func newTestClient(t *testing.T, handler http.Handler, auth catalog.Authorizer) (*catalog.Client, *storefakes.FakeStore, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := storefakes.NewFakeStore()
	c, err := catalog.New(testConfig{baseURL: srv.URL}, store, auth)
	require.NoError(t, err)
	return c, store, srv
}

func TestListProductsWithSearch(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/products", r.URL.Path)
		require.Equal(t, "monstera", r.URL.Query().Get("search"))
		require.NotEmpty(t, r.Header.Get("X-Client-Id"))
		json.NewEncoder(w).Encode([]map[string]any{
			{"_id": "p1", "name": "Monstera", "price": 9.99, "stock": 3, "images": []string{"img/p1.jpg"}},
		})
	}), nil)

	products, err := c.ListProducts(context.Background(), "monstera")
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, int64(999), products[0].PriceCents())
	require.True(t, products[0].InStock())

	cp := products[0].CartProduct()
	require.Equal(t, "p1", cp.ID)
	require.Equal(t, int64(999), cp.PriceCents)
	require.Equal(t, "img/p1.jpg", cp.ImageRef)
}

func TestListBlogsAndDonations(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/blogs":
			json.NewEncoder(w).Encode([]map[string]any{{"_id": "b1", "title": "Repotting"}})
		case "/api/donations":
			json.NewEncoder(w).Encode([]map[string]any{{"_id": "d1", "plantName": "Fern"}})
		default:
			http.NotFound(w, r)
		}
	}), nil)

	blogs, err := c.ListBlogs(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, blogs, 1)
	require.Equal(t, "Repotting", blogs[0].Title)

	donations, err := c.ListDonations(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, donations, 1)
	require.Equal(t, "Fern", donations[0].PlantName)
}

func TestCreateProductSendsJSONWithAttribution(t *testing.T) {
	auth := &fakeAuthorizer{token: "tok", userID: "user-1"}
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/products", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Monstera", body["name"])
		require.Equal(t, "9.99", body["price"])
		require.Equal(t, "user-1", body["user"])

		json.NewEncoder(w).Encode(map[string]any{"_id": "p9", "name": "Monstera", "price": 9.99})
	}), auth)

	product, err := c.CreateProduct(context.Background(), catalog.CreateProductRequest{
		Name: "Monstera", Price: 9.99, Stock: 3, SellerName: "Jane",
	})
	require.NoError(t, err)
	require.Equal(t, "p9", product.ID)
}

func TestCreateProductAnonymousUsesClientID(t *testing.T) {
	var gotUser string
	c, store, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotUser = body["user"]
		json.NewEncoder(w).Encode(map[string]any{"_id": "p9"})
	}), &fakeAuthorizer{})

	_, err := c.CreateProduct(context.Background(), catalog.CreateProductRequest{Name: "Fern", Price: 1})
	require.NoError(t, err)

	clientID, err := store.Get(credentials.KeyClientID)
	require.NoError(t, err)
	require.Equal(t, clientID, gotUser)
}

func TestCreateBlogWithImageSendsMultipart(t *testing.T) {
	auth := &fakeAuthorizer{token: "tok", userID: "user-1"}
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Repotting", r.FormValue("title"))
		require.Equal(t, "user-1", r.FormValue("user"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "monstera.jpg", header.Filename)

		json.NewEncoder(w).Encode(map[string]any{"_id": "b9", "title": "Repotting"})
	}), auth)

	blog, err := c.CreateBlog(context.Background(), catalog.CreateBlogRequest{
		Title:   "Repotting",
		Content: "…",
		Image:   &catalog.ImageUpload{FileName: "monstera.jpg", Content: strings.NewReader("jpeg-bytes")},
	})
	require.NoError(t, err)
	require.Equal(t, "b9", blog.ID)
}

func TestClaimDonation(t *testing.T) {
	auth := &fakeAuthorizer{token: "tok", userID: "user-1"}
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/donations/d1/claim", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "I can pick it up Saturday", body["message"])
		w.WriteHeader(http.StatusOK)
	}), auth)

	require.NoError(t, c.ClaimDonation(context.Background(), "d1", "I can pick it up Saturday"))
}

func TestClaimDonationValidationErrorSurfacesMessage(t *testing.T) {
	auth := &fakeAuthorizer{token: "tok"}
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"donation already claimed"}`, http.StatusBadRequest)
	}), auth)

	err := c.ClaimDonation(context.Background(), "d1", "hello")
	require.ErrorIs(t, err, apierrors.ErrValidation)
	require.Contains(t, err.Error(), "donation already claimed")
}

func TestUnauthorizedTriggersOneRefreshAndRetry(t *testing.T) {
	auth := &fakeAuthorizer{token: "stale", nextToken: "fresh", userID: "user-1"}
	var tokens []string
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		tokens = append(tokens, token)
		if token != "fresh" {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), auth)

	require.NoError(t, c.ClaimDonation(context.Background(), "d1", "msg"))
	require.Equal(t, []string{"stale", "fresh"}, tokens, "token must be re-read after the refresh")
	require.Equal(t, 1, auth.refreshCalls)
}

func TestSecondUnauthorizedEscalates(t *testing.T) {
	auth := &fakeAuthorizer{token: "stale", nextToken: "still-stale"}
	calls := 0
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	}), auth)

	err := c.ClaimDonation(context.Background(), "d1", "msg")
	require.ErrorIs(t, err, apierrors.ErrAuthExpired)
	require.Equal(t, 2, calls, "exactly one retry")
	require.Equal(t, 1, auth.refreshCalls)
}

func TestHealth(t *testing.T) {
	c, _, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}), nil)

	require.True(t, c.Health(context.Background()))

	srv.Close()
	require.False(t, c.Health(context.Background()))
}

func TestClientIDIsStable(t *testing.T) {
	store := storefakes.NewFakeStore()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := catalog.New(testConfig{baseURL: srv.URL}, store, nil)
	require.NoError(t, err)
	first, err := store.Get(credentials.KeyClientID)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	_, err = catalog.New(testConfig{baseURL: srv.URL}, store, nil)
	require.NoError(t, err)
	second, err := store.Get(credentials.KeyClientID)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
