package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokoserba/backend/internal/domain"
	"tokoserba/backend/internal/service"
	"tokoserba/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	repo := memory.New()
	svc := service.New(repo, nil, time.Second)
	auth := NewAuthManager("test-secret-0123456789abcdef0123456789abcdef", 15*time.Minute, repo)
	return New(svc, auth, "*")
}

type testClient struct {
	t       *testing.T
	handler http.Handler
	token   string
	csrf    string
}

func newTestClient(t *testing.T, api *API) *testClient {
	t.Helper()
	c := &testClient{t: t, handler: api.Handler()}
	c.csrf = api.generateCSRFToken()
	return c
}

func (c *testClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *testClient) decode(rec *httptest.ResponseRecorder, dest any) {
	c.t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		c.t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// registerAdmin registers the first account, which gets the admin role, and
// stores its token on the client.
func (c *testClient) registerAdmin() domain.LoginResponse {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/auth/register", domain.RegisterRequest{
		Name:     "Store Owner",
		Email:    "owner@store.test",
		Password: "ownerpass",
	})
	if rec.Code != http.StatusCreated {
		c.t.Fatalf("register admin: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	c.decode(rec, &resp)
	c.token = resp.AccessToken
	return resp
}

func (c *testClient) createProduct(name string, purchase, retail, wholesale, quantity float64) domain.Product {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{
		Name:           name,
		Category:       "grocery",
		PurchasePrice:  purchase,
		RetailPrice:    retail,
		WholesalePrice: wholesale,
		Quantity:       quantity,
	})
	if rec.Code != http.StatusCreated {
		c.t.Fatalf("create product: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Product domain.Product `json:"product"`
	}
	c.decode(rec, &resp)
	return resp.Product
}

func TestHealthz(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	rec := c.do(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	resp := c.registerAdmin()
	if resp.User.Role != domain.RoleAdmin {
		t.Fatalf("first user role = %q, want ADMIN", resp.User.Role)
	}

	// Later self-registrations default to staff even when asking for admin.
	rec := c.do(http.MethodPost, "/api/v1/auth/register", domain.RegisterRequest{
		Name:     "New Hire",
		Email:    "hire@store.test",
		Password: "hirepass",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("second register: status %d body %s", rec.Code, rec.Body.String())
	}
	var second domain.LoginResponse
	c.decode(rec, &second)
	if second.User.Role != domain.RoleStaff {
		t.Fatalf("second user role = %q, want STAFF", second.User.Role)
	}
}

func TestLoginAndMe(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()
	c.token = ""

	rec := c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{
		Email:    "owner@store.test",
		Password: "ownerpass",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	c.decode(rec, &resp)
	if resp.AccessToken == "" {
		t.Fatal("login returned empty token")
	}
	c.token = resp.AccessToken

	rec = c.do(http.MethodGet, "/api/v1/auth/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d body %s", rec.Code, rec.Body.String())
	}
	var me struct {
		User domain.AuthUser `json:"user"`
	}
	c.decode(rec, &me)
	if me.User.Email != "owner@store.test" {
		t.Errorf("me email = %q", me.User.Email)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()
	c.token = ""

	rec := c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{
		Email:    "owner@store.test",
		Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	var last int
	for i := 0; i < 6; i++ {
		rec := c.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{
			Email:    "nobody@store.test",
			Password: "nope",
		})
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt status = %d, want 429", last)
	}
}

func TestRequestsWithoutTokenAreUnauthorized(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))

	rec := c.do(http.MethodGet, "/api/v1/products", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()
	c.csrf = ""

	rec := c.do(http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{
		Name: "No CSRF", Category: "grocery", RetailPrice: 10,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCSRFTokenEndpoint(t *testing.T) {
	api := newTestAPI(t)
	c := newTestClient(t, api)
	c.csrf = ""

	rec := c.do(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	c.decode(rec, &resp)
	if !api.validateCSRFToken(resp.CSRFToken) {
		t.Fatal("issued CSRF token does not validate")
	}
}

func TestProductCRUDOverHTTP(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()

	product := c.createProduct("HTTP Soap", 40, 60, 52, 20)
	if product.ID == "" {
		t.Fatal("created product has no id")
	}

	rec := c.do(http.MethodGet, "/api/v1/products/"+product.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = c.do(http.MethodPut, "/api/v1/products/"+product.ID, domain.ProductCreateRequest{
		Name: "HTTP Soap Renamed", Category: "grocery", PurchasePrice: 40, RetailPrice: 65, WholesalePrice: 55, Quantity: 20,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}
	var updated struct {
		Product domain.Product `json:"product"`
	}
	c.decode(rec, &updated)
	if updated.Product.Name != "HTTP Soap Renamed" {
		t.Errorf("updated name = %q", updated.Product.Name)
	}

	rec = c.do(http.MethodDelete, "/api/v1/products/"+product.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = c.do(http.MethodGet, "/api/v1/products/"+product.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status %d, want 404", rec.Code)
	}
}

func TestStaffCannotManageProducts(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()

	rec := c.do(http.MethodPost, "/api/v1/auth/register", domain.RegisterRequest{
		Name:     "Shop Staff",
		Email:    "staff@store.test",
		Password: "staffpass",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register staff: status %d", rec.Code)
	}
	var staff domain.LoginResponse
	c.decode(rec, &staff)
	c.token = staff.AccessToken

	rec = c.do(http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{
		Name: "Forbidden", Category: "grocery", RetailPrice: 10,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestSaleEndpoint(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()
	product := c.createProduct("Sale Item", 10, 15, 12, 5)

	rec := c.do(http.MethodPost, "/api/v1/sales", domain.SaleCreateRequest{
		SaleType: domain.SaleTypeRetail,
		Items:    []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: status %d body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	c.decode(rec, &created)
	if created.Sale.TotalAmount != 30 {
		t.Errorf("total = %g, want 30", created.Sale.TotalAmount)
	}

	// Missing product and insufficient stock both surface as 400 on this
	// endpoint.
	rec = c.do(http.MethodPost, "/api/v1/sales", domain.SaleCreateRequest{
		SaleType: domain.SaleTypeRetail,
		Items:    []domain.SaleLineRequest{{ProductID: "prod-missing", Quantity: 1}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing product: status %d, want 400", rec.Code)
	}

	rec = c.do(http.MethodPost, "/api/v1/sales", domain.SaleCreateRequest{
		SaleType: domain.SaleTypeRetail,
		Items:    []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 100}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("insufficient stock: status %d, want 400", rec.Code)
	}
}

func TestCustomerPaymentAndLedgerEndpoints(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()
	product := c.createProduct("Wholesale Crate", 100, 150, 130, 50)

	rec := c.do(http.MethodPost, "/api/v1/customers", domain.CustomerCreateRequest{
		Name:  "Ledger Shop",
		Phone: "0779876543",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create customer: status %d body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Customer domain.Customer `json:"customer"`
	}
	c.decode(rec, &created)
	customerID := created.Customer.ID

	rec = c.do(http.MethodPost, "/api/v1/sales", domain.SaleCreateRequest{
		SaleType:   domain.SaleTypeWholesale,
		CustomerID: &customerID,
		Items:      []domain.SaleLineRequest{{ProductID: product.ID, Quantity: 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("wholesale sale: status %d body %s", rec.Code, rec.Body.String())
	}

	// Overpayment is rejected, the exact balance is accepted.
	rec = c.do(http.MethodPost, fmt.Sprintf("/api/v1/customers/%s/payment", customerID), domain.PaymentRequest{Amount: 1000})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overpayment: status %d, want 400", rec.Code)
	}
	rec = c.do(http.MethodPost, fmt.Sprintf("/api/v1/customers/%s/payment", customerID), domain.PaymentRequest{Amount: 260})
	if rec.Code != http.StatusOK {
		t.Fatalf("payment: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = c.do(http.MethodGet, fmt.Sprintf("/api/v1/customers/%s/ledger", customerID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ledger: status %d body %s", rec.Code, rec.Body.String())
	}
	var ledger domain.LedgerResponse
	c.decode(rec, &ledger)
	if len(ledger.Ledger) != 2 {
		t.Fatalf("ledger entries = %d, want 2", len(ledger.Ledger))
	}
	if ledger.Customer.Balance != 0 {
		t.Errorf("balance = %g, want 0", ledger.Customer.Balance)
	}

	rec = c.do(http.MethodGet, "/api/v1/customers/missing/ledger", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing customer ledger: status %d, want 404", rec.Code)
	}
}

func TestSavedProductEndpoints(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()
	product := c.createProduct("Saved Tea", 480, 560, 520, 30)

	rec := c.do(http.MethodPost, "/api/v1/customers", domain.CustomerCreateRequest{
		Name:  "Tea Shop",
		Phone: "0771112222",
	})
	var created struct {
		Customer domain.Customer `json:"customer"`
	}
	c.decode(rec, &created)

	base := fmt.Sprintf("/api/v1/customers/%s/saved-products", created.Customer.ID)

	rec = c.do(http.MethodPost, base, domain.SavedProductRequest{ProductID: product.ID, Quantity: 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add saved: status %d body %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		SavedProduct domain.SavedProduct `json:"saved_product"`
	}
	c.decode(rec, &saved)

	rec = c.do(http.MethodGet, base, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list saved: status %d", rec.Code)
	}

	rec = c.do(http.MethodDelete, base+"/"+saved.SavedProduct.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove saved: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestDashboardStatsEndpoint(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()

	rec := c.do(http.MethodGet, "/api/v1/stats/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var stats domain.DashboardStats
	c.decode(rec, &stats)
	if stats.TotalProducts != 0 {
		t.Errorf("total products = %d, want 0 on empty store", stats.TotalProducts)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()

	rec := c.do(http.MethodDelete, "/api/v1/sales", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	c := newTestClient(t, newTestAPI(t))
	c.registerAdmin()

	rec := c.do(http.MethodPost, "/api/v1/products", map[string]any{
		"name": "X", "category": "c", "retail_price": 1, "bogus_field": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
