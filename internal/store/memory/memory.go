package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokoserba/backend/internal/domain"
	"tokoserba/backend/internal/pricing"
	"tokoserba/backend/internal/store"
	"tokoserba/backend/internal/xid"
)

// Store is a mutex-guarded in-memory Repository used for dev mode and tests.
// The write lock is held for the whole of each mutating operation, which
// gives the same all-or-nothing visibility the postgres store gets from
// transactions.
type Store struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	customers     map[string]domain.Customer
	sales         map[string]domain.Sale
	payments      map[string]domain.Payment
	savedProducts map[string]domain.SavedProduct
	usersByID     map[string]domain.UserAccount
	usersByEmail  map[string]string
}

func New() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		customers:     make(map[string]domain.Customer),
		sales:         make(map[string]domain.Sale),
		payments:      make(map[string]domain.Payment),
		savedProducts: make(map[string]domain.SavedProduct),
		usersByID:     make(map[string]domain.UserAccount),
		usersByEmail:  make(map[string]string),
	}
}

// NewSeeded returns a store preloaded with a demo catalog and an admin
// account. The admin password is read from SEED_ADMIN_PASSWORD; a hardcoded
// dev default is used with a warning when unset. Seeded data is never used
// in production (the backend uses PostgreSQL when DATABASE_URL is set).
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	expirySoon := now.AddDate(0, 0, 20)
	batchA := "BATCH-001"
	barcodeRice := "8901010101017"

	products := []domain.Product{
		{ID: "prod-seed-rice", Name: "Basmati Rice 5kg", Category: "grocery", Barcode: &barcodeRice, PurchasePrice: 900, RetailPrice: 1100, WholesalePrice: 1000, Quantity: 40},
		{ID: "prod-seed-flour", Name: "Wheat Flour 10kg", Category: "grocery", PurchasePrice: 700, RetailPrice: 850, WholesalePrice: 780, Quantity: 25},
		{ID: "prod-seed-oil", Name: "Cooking Oil 1L", Category: "grocery", PurchasePrice: 380, RetailPrice: 450, WholesalePrice: 420, Quantity: 60},
		{ID: "prod-seed-sugar", Name: "Sugar 1kg", Category: "grocery", PurchasePrice: 95, RetailPrice: 120, WholesalePrice: 110, Quantity: 80},
		{ID: "prod-seed-tea", Name: "Tea Pack 500g", Category: "beverage", PurchasePrice: 480, RetailPrice: 560, WholesalePrice: 520, Quantity: 30},
		{ID: "prod-seed-soap", Name: "Bath Soap", Category: "household", PurchasePrice: 40, RetailPrice: 60, WholesalePrice: 52, Quantity: 120},
		{ID: "prod-seed-milk", Name: "Milk Powder 400g", Category: "dairy", BatchNumber: &batchA, ExpiryDate: &expirySoon, PurchasePrice: 520, RetailPrice: 620, WholesalePrice: 575, Quantity: 8},
		{ID: "prod-seed-biscuit", Name: "Biscuit Family Pack", Category: "snack", PurchasePrice: 90, RetailPrice: 130, WholesalePrice: 115, Quantity: 50},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	shopA := "City Mart"
	customers := []domain.Customer{
		{ID: "cust-seed-walkin", Name: "Nimal Perera", Phone: "0771234567", Category: domain.CustomerCategoryRegular, CreatedAt: now},
		{ID: "cust-seed-citymart", Name: "Sunil Fernando", ShopName: &shopA, Phone: "0712345678", Category: domain.CustomerCategoryWholesale, CreatedAt: now},
	}
	for _, c := range customers {
		s.customers[c.ID] = c
	}

	adminPwd := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPwd == "" {
		adminPwd = "admin123"
		log.Println("[memory-store] WARNING: using default dev admin credentials. Set SEED_ADMIN_PASSWORD to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed admin password: %v", err)
	}
	admin := domain.UserAccount{
		ID:           "user-seed-admin",
		Name:         "Admin User",
		Email:        "admin@store.com",
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
	}
	s.usersByID[admin.ID] = admin
	s.usersByEmail[admin.Email] = admin.ID

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Deleted() {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	copied := p
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Barcode != nil {
		for _, existing := range s.products {
			if existing.Barcode != nil && *existing.Barcode == *product.Barcode && !existing.Deleted() {
				return nil, fmt.Errorf("barcode %s: %w", *product.Barcode, store.ErrDuplicate)
			}
		}
	}

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok || existing.Deleted() {
		return nil, fmt.Errorf("product %s: %w", product.ID, store.ErrNotFound)
	}

	product.CreatedAt = existing.CreatedAt
	product.DeletedAt = existing.DeletedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok || product.Deleted() {
		return false, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}

	referenced := false
	for _, sale := range s.sales {
		for _, item := range sale.Items {
			if item.ProductID == id {
				referenced = true
				break
			}
		}
		if referenced {
			break
		}
	}

	if referenced {
		now := time.Now().UTC()
		product.DeletedAt = &now
		product.UpdatedAt = now
		s.products[id] = product
		return true, nil
	}

	for savedID, saved := range s.savedProducts {
		if saved.ProductID == id {
			delete(s.savedProducts, savedID)
		}
	}
	delete(s.products, id)
	return false, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("sale needs at least one item: %w", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate and price every line against a working copy of the stock
	// levels before touching the maps, so a late failure leaves nothing
	// half-applied.
	working := make(map[string]float64, len(sale.Items))
	items := make([]domain.SaleItem, 0, len(sale.Items))
	totalAmount := 0.0

	for _, line := range sale.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be positive: %w", store.ErrInvalidInput)
		}

		product, ok := s.products[line.ProductID]
		if !ok || product.Deleted() {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}

		available, tracked := working[line.ProductID]
		if !tracked {
			available = product.Quantity
		}
		if available < line.Quantity {
			return nil, fmt.Errorf("%w for %s (requested %g, available %g)",
				store.ErrInsufficientStock, product.Name, line.Quantity, available)
		}
		working[line.ProductID] = available - line.Quantity

		quote := pricing.QuoteLine(product, sale.SaleType, line.Quantity)
		totalAmount += quote.LineTotal
		items = append(items, domain.SaleItem{
			ID:           xid.New("item"),
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			SellingPrice: quote.UnitPrice,
			Profit:       quote.LineProfit,
			Total:        quote.LineTotal,
		})
	}

	if sale.CustomerID != nil {
		if _, ok := s.customers[*sale.CustomerID]; !ok {
			return nil, fmt.Errorf("customer %s: %w", *sale.CustomerID, store.ErrNotFound)
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	sale.TotalAmount = totalAmount
	for i := range items {
		items[i].SaleID = sale.ID
	}
	sale.Items = items

	for productID, remaining := range working {
		product := s.products[productID]
		product.Quantity = remaining
		product.UpdatedAt = time.Now().UTC()
		s.products[productID] = product
	}

	if sale.CustomerID != nil && sale.SaleType == domain.SaleTypeWholesale {
		customer := s.customers[*sale.CustomerID]
		customer.Balance += totalAmount
		s.customers[*sale.CustomerID] = customer
	}

	s.sales[sale.ID] = sale

	created := s.joinSale(sale)
	return &created, nil
}

// joinSale returns a copy of the sale with product and customer snapshots
// attached, matching the joined shape the postgres store returns.
func (s *Store) joinSale(sale domain.Sale) domain.Sale {
	items := make([]domain.SaleItem, len(sale.Items))
	copy(items, sale.Items)
	for i := range items {
		if p, ok := s.products[items[i].ProductID]; ok {
			copied := p
			items[i].Product = &copied
		}
	}
	sale.Items = items

	if sale.CustomerID != nil {
		if c, ok := s.customers[*sale.CustomerID]; ok {
			copied := c
			sale.Customer = &copied
		}
	}
	return sale
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, s.joinSale(sale))
	}
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].Date.After(sales[j].Date)
	})
	return sales, nil
}

func (s *Store) ListSalesByCustomer(_ context.Context, customerID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 8)
	for _, sale := range s.sales {
		if sale.CustomerID != nil && *sale.CustomerID == customerID {
			sales = append(sales, s.joinSale(sale))
		}
	}
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].Date.After(sales[j].Date)
	})
	return sales, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool {
		return strings.ToLower(customers[i].Name) < strings.ToLower(customers[j].Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}
	copied := c
	return &copied, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer

	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", customer.ID, store.ErrNotFound)
	}

	// Balance is owned by the sale and payment paths and never updated here.
	customer.Balance = existing.Balance
	customer.CreatedAt = existing.CreatedAt
	s.customers[customer.ID] = customer

	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return fmt.Errorf("customer %s: %w", id, store.ErrNotFound)
	}

	for savedID, saved := range s.savedProducts {
		if saved.CustomerID == id {
			delete(s.savedProducts, savedID)
		}
	}
	for paymentID, payment := range s.payments {
		if payment.CustomerID == id {
			delete(s.payments, paymentID)
		}
	}
	for saleID, sale := range s.sales {
		if sale.CustomerID != nil && *sale.CustomerID == id {
			sale.CustomerID = nil
			sale.Customer = nil
			s.sales[saleID] = sale
		}
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) RecordPayment(_ context.Context, customerID string, amount float64, notes string) (*domain.Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive: %w", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[customerID]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", customerID, store.ErrNotFound)
	}
	if amount > customer.Balance {
		return nil, fmt.Errorf("%w (paid %g, due %g)", store.ErrInsufficientBalance, amount, customer.Balance)
	}

	payment := domain.Payment{
		ID:         xid.New("pay"),
		Date:       time.Now().UTC(),
		Amount:     amount,
		CustomerID: customerID,
		Notes:      notes,
	}
	s.payments[payment.ID] = payment

	customer.Balance -= amount
	s.customers[customerID] = customer

	created := payment
	return &created, nil
}

func (s *Store) ListPaymentsByCustomer(_ context.Context, customerID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]domain.Payment, 0, 8)
	for _, p := range s.payments {
		if p.CustomerID == customerID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].Date.After(payments[j].Date)
	})
	return payments, nil
}

func (s *Store) ListSavedProducts(_ context.Context, customerID string) ([]domain.SavedProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saved := make([]domain.SavedProduct, 0, 8)
	for _, sp := range s.savedProducts {
		if sp.CustomerID != customerID {
			continue
		}
		if p, ok := s.products[sp.ProductID]; ok {
			copied := p
			sp.Product = &copied
		}
		saved = append(saved, sp)
	}
	sort.Slice(saved, func(i, j int) bool {
		return saved[i].CreatedAt.Before(saved[j].CreatedAt)
	})
	return saved, nil
}

func (s *Store) AddSavedProduct(_ context.Context, saved domain.SavedProduct) (*domain.SavedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[saved.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %s: %w", saved.CustomerID, store.ErrNotFound)
	}
	product, ok := s.products[saved.ProductID]
	if !ok || product.Deleted() {
		return nil, fmt.Errorf("product %s: %w", saved.ProductID, store.ErrNotFound)
	}

	if saved.ID == "" {
		saved.ID = xid.New("saved")
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now().UTC()
	}
	if saved.Quantity <= 0 {
		saved.Quantity = 1
	}
	s.savedProducts[saved.ID] = saved

	created := saved
	copied := product
	created.Product = &copied
	return &created, nil
}

func (s *Store) RemoveSavedProduct(_ context.Context, savedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.savedProducts[savedID]; !ok {
		return fmt.Errorf("saved product %s: %w", savedID, store.ErrNotFound)
	}
	delete(s.savedProducts, savedID)
	return nil
}

func (s *Store) GetDashboardStats(_ context.Context) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{}
	now := time.Now().UTC()
	next30Days := now.AddDate(0, 0, 30)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for _, p := range s.products {
		if p.Deleted() {
			continue
		}
		stats.TotalProducts++
		if p.Quantity <= 10 {
			stats.LowStockProducts++
		}
		if p.ExpiryDate != nil && !p.ExpiryDate.After(next30Days) {
			stats.ExpiringSoon++
		}
	}

	for _, sale := range s.sales {
		if sale.SaleType == domain.SaleTypeRetail {
			stats.TotalSalesRetail += sale.TotalAmount
		} else {
			stats.TotalSalesWholesale += sale.TotalAmount
		}

		saleProfit := 0.0
		for _, item := range sale.Items {
			saleProfit += item.Profit
		}
		stats.TotalProfit += saleProfit

		if !sale.Date.Before(startOfDay) {
			stats.TodaySales += sale.TotalAmount
			stats.TodayProfit += saleProfit
		}
	}

	return stats, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	if _, exists := s.usersByEmail[email]; exists {
		return nil, fmt.Errorf("user %s: %w", email, store.ErrDuplicate)
	}

	if user.ID == "" {
		user.ID = xid.New("user")
	}
	user.Email = email
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByID[user.ID] = user
	s.usersByEmail[email] = user.ID

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, id string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByID[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	user.PasswordHash = passwordHash
	s.usersByID[id] = user
	return nil
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.usersByID), nil
}
