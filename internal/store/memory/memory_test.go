package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tokoserba/backend/internal/domain"
	"tokoserba/backend/internal/store"
)

func seedProduct(t *testing.T, s *Store, quantity float64) domain.Product {
	t.Helper()
	created, err := s.CreateProduct(context.Background(), domain.Product{
		Name:           "Contended Item",
		Category:       "grocery",
		PurchasePrice:  10,
		RetailPrice:    15,
		WholesalePrice: 12,
		Quantity:       quantity,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return *created
}

// Concurrent sales must never drive stock below zero: with 5 units and 20
// buyers of one unit each, exactly 5 succeed.
func TestConcurrentSalesNeverOversell(t *testing.T) {
	s := New()
	product := seedProduct(t, s, 5)

	const buyers = 20
	var wg sync.WaitGroup
	results := make(chan error, buyers)

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateSale(context.Background(), domain.Sale{
				SaleType: domain.SaleTypeRetail,
				Items:    []domain.SaleItem{{ProductID: product.ID, Quantity: 1}},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientStock):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 5 {
		t.Errorf("successful sales = %d, want 5", succeeded)
	}

	got, err := s.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Quantity != 0 {
		t.Errorf("final stock = %g, want 0", got.Quantity)
	}
}

func TestConcurrentPaymentsNeverOverdraw(t *testing.T) {
	s := New()
	ctx := context.Background()

	customer, err := s.CreateCustomer(ctx, domain.Customer{
		Name:     "Busy Shop",
		Phone:    "0770000000",
		Category: domain.CustomerCategoryWholesale,
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	product := seedProduct(t, s, 100)

	if _, err := s.CreateSale(ctx, domain.Sale{
		SaleType:   domain.SaleTypeWholesale,
		CustomerID: &customer.ID,
		Items:      []domain.SaleItem{{ProductID: product.ID, Quantity: 10}},
	}); err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	// Balance is 120: ten 50-unit payments cannot all go through.

	const payers = 10
	var wg sync.WaitGroup
	results := make(chan error, payers)
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordPayment(ctx, customer.ID, 50, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrInsufficientBalance):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 2 {
		t.Errorf("successful payments = %d, want 2", succeeded)
	}

	got, err := s.GetCustomer(ctx, customer.ID)
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if got.Balance < 0 {
		t.Errorf("balance = %g, must never be negative", got.Balance)
	}
}

func TestSeededStoreHasCatalogAndAdmin(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) == 0 {
		t.Fatal("seeded store has no products")
	}

	customers, err := s.ListCustomers(ctx)
	if err != nil {
		t.Fatalf("ListCustomers: %v", err)
	}
	if len(customers) == 0 {
		t.Fatal("seeded store has no customers")
	}

	admin, err := s.GetUserByEmail(ctx, "admin@store.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if admin.Role != domain.RoleAdmin {
		t.Errorf("seed user role = %q, want ADMIN", admin.Role)
	}
}

func TestRemoveSavedProductNotFound(t *testing.T) {
	s := New()
	if err := s.RemoveSavedProduct(context.Background(), "saved-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
