package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"tokoserba/backend/internal/cache"
	"tokoserba/backend/internal/domain"
	"tokoserba/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const dashboardStatsKey = "dashboard-stats"

type Service struct {
	repo       store.Repository
	statsCache cache.DashboardCache
	statsTTL   time.Duration
}

func New(repo store.Repository, statsCache cache.DashboardCache, statsTTL time.Duration) *Service {
	if statsCache == nil {
		statsCache = cache.NoopDashboardCache{}
	}
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}
	return &Service{
		repo:       repo,
		statsCache: statsCache,
		statsTTL:   statsTTL,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("product id required: %w", store.ErrInvalidInput)
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if product.Deleted() {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	product, err := productFromRequest(req)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("product id required: %w", store.ErrInvalidInput)
	}

	product, err := productFromRequest(req)
	if err != nil {
		return domain.Product{}, err
	}
	product.ID = id

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *updated, nil
}

func productFromRequest(req domain.ProductCreateRequest) (domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	category := strings.TrimSpace(req.Category)
	if name == "" || category == "" {
		return domain.Product{}, fmt.Errorf("name and category required: %w", store.ErrInvalidInput)
	}
	if req.PurchasePrice < 0 || req.RetailPrice < 0 || req.WholesalePrice < 0 {
		return domain.Product{}, fmt.Errorf("prices must not be negative: %w", store.ErrInvalidInput)
	}
	if req.Quantity < 0 {
		return domain.Product{}, fmt.Errorf("quantity must not be negative: %w", store.ErrInvalidInput)
	}

	product := domain.Product{
		Name:           name,
		Category:       category,
		PurchasePrice:  req.PurchasePrice,
		RetailPrice:    req.RetailPrice,
		WholesalePrice: req.WholesalePrice,
		Quantity:       req.Quantity,
	}

	if req.Barcode != nil {
		barcode := strings.TrimSpace(*req.Barcode)
		if barcode != "" {
			product.Barcode = &barcode
		}
	}
	if req.BatchNumber != nil {
		batch := strings.TrimSpace(*req.BatchNumber)
		if batch != "" {
			product.BatchNumber = &batch
		}
	}
	if req.ExpiryDate != nil && strings.TrimSpace(*req.ExpiryDate) != "" {
		expiry, err := parseDate(strings.TrimSpace(*req.ExpiryDate))
		if err != nil {
			return domain.Product{}, fmt.Errorf("invalid expiry date: %w", store.ErrInvalidInput)
		}
		product.ExpiryDate = &expiry
	}

	return product, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// DeleteProduct refuses to physically remove a product that appears on any
// sale item; such products are soft-deleted instead so historical totals and
// profits keep resolving. The returned flag reports a soft delete.
func (s *Service) DeleteProduct(ctx context.Context, id string) (bool, error) {
	if err := requireAdmin(ctx); err != nil {
		return false, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("product id required: %w", store.ErrInvalidInput)
	}
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if req.SaleType != domain.SaleTypeRetail && req.SaleType != domain.SaleTypeWholesale {
		return domain.Sale{}, fmt.Errorf("sale type must be RETAIL or WHOLESALE: %w", store.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("sale needs at least one item: %w", store.ErrInvalidInput)
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return domain.Sale{}, fmt.Errorf("product id required on every line: %w", store.ErrInvalidInput)
		}
		if line.Quantity <= 0 {
			return domain.Sale{}, fmt.Errorf("quantity must be positive: %w", store.ErrInvalidInput)
		}
		items = append(items, domain.SaleItem{ProductID: productID, Quantity: line.Quantity})
	}

	var customerID *string
	if req.CustomerID != nil {
		id := strings.TrimSpace(*req.CustomerID)
		if id != "" {
			customerID = &id
		}
	}

	sale := domain.Sale{
		SaleType:   req.SaleType,
		CustomerID: customerID,
		Items:      items,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}
	return *created, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	if name == "" {
		return domain.Customer{}, fmt.Errorf("name required: %w", store.ErrInvalidInput)
	}
	if len(phone) < 10 {
		return domain.Customer{}, fmt.Errorf("phone must have at least 10 digits: %w", store.ErrInvalidInput)
	}

	category := strings.ToUpper(strings.TrimSpace(req.Category))
	if category == "" {
		category = domain.CustomerCategoryRegular
	}

	customer := domain.Customer{
		Name:     name,
		Phone:    phone,
		Category: category,
	}
	if req.ShopName != nil {
		shop := strings.TrimSpace(*req.ShopName)
		if shop != "" {
			customer.ShopName = &shop
		}
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, fmt.Errorf("customer id required: %w", store.ErrInvalidInput)
	}

	existing, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, fmt.Errorf("name must not be empty: %w", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if len(phone) < 10 {
			return domain.Customer{}, fmt.Errorf("phone must have at least 10 digits: %w", store.ErrInvalidInput)
		}
		updated.Phone = phone
	}
	if req.ShopName != nil {
		shop := strings.TrimSpace(*req.ShopName)
		if shop == "" {
			updated.ShopName = nil
		} else {
			updated.ShopName = &shop
		}
	}
	if req.Category != nil {
		category := strings.ToUpper(strings.TrimSpace(*req.Category))
		if category == "" {
			return domain.Customer{}, fmt.Errorf("category must not be empty: %w", store.ErrInvalidInput)
		}
		updated.Category = category
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	return *saved, nil
}

// DeleteCustomer removes the customer and their payments and saved products,
// while the customer's sales survive with the reference detached.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("customer id required: %w", store.ErrInvalidInput)
	}
	return s.repo.DeleteCustomer(ctx, id)
}

func (s *Service) RecordPayment(ctx context.Context, customerID string, req domain.PaymentRequest) (domain.Payment, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Payment{}, fmt.Errorf("customer id required: %w", store.ErrInvalidInput)
	}
	if req.Amount <= 0 {
		return domain.Payment{}, fmt.Errorf("payment amount must be positive: %w", store.ErrInvalidInput)
	}

	payment, err := s.repo.RecordPayment(ctx, customerID, req.Amount, "Payment received")
	if err != nil {
		return domain.Payment{}, err
	}
	return *payment, nil
}

// GetLedger merges the customer's sales (debits) and payments (credits) into
// one statement sorted by date descending. Entries with equal timestamps keep
// their relative order.
func (s *Service) GetLedger(ctx context.Context, customerID string) (domain.LedgerResponse, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.LedgerResponse{}, fmt.Errorf("customer id required: %w", store.ErrInvalidInput)
	}

	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.LedgerResponse{}, err
	}

	sales, err := s.repo.ListSalesByCustomer(ctx, customerID)
	if err != nil {
		return domain.LedgerResponse{}, err
	}
	payments, err := s.repo.ListPaymentsByCustomer(ctx, customerID)
	if err != nil {
		return domain.LedgerResponse{}, err
	}

	ledger := make([]domain.LedgerEntry, 0, len(sales)+len(payments))
	for _, sale := range sales {
		items := make([]domain.LedgerItem, 0, len(sale.Items))
		for _, item := range sale.Items {
			name := item.ProductID
			if item.Product != nil {
				name = item.Product.Name
			}
			items = append(items, domain.LedgerItem{
				Name:     name,
				Quantity: item.Quantity,
				Price:    item.SellingPrice,
				Total:    item.Total,
			})
		}
		ledger = append(ledger, domain.LedgerEntry{
			ID:          sale.ID,
			Date:        sale.Date,
			Type:        domain.LedgerEntrySale,
			Description: fmt.Sprintf("Sale - Invoice #%s", invoiceLabel(sale.ID)),
			Amount:      sale.TotalAmount,
			Items:       items,
		})
	}
	for _, payment := range payments {
		ledger = append(ledger, domain.LedgerEntry{
			ID:          payment.ID,
			Date:        payment.Date,
			Type:        domain.LedgerEntryPayment,
			Description: "Payment Received",
			Amount:      payment.Amount,
			Items:       []domain.LedgerItem{},
		})
	}

	sort.SliceStable(ledger, func(i, j int) bool {
		return ledger[i].Date.After(ledger[j].Date)
	})

	return domain.LedgerResponse{Customer: *customer, Ledger: ledger}, nil
}

// invoiceLabel derives the short invoice reference shown on statements: the
// last six characters of the sale id, uppercased.
func invoiceLabel(saleID string) string {
	if len(saleID) > 6 {
		saleID = saleID[len(saleID)-6:]
	}
	return strings.ToUpper(saleID)
}

func (s *Service) ListSavedProducts(ctx context.Context, customerID string) ([]domain.SavedProduct, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("customer id required: %w", store.ErrInvalidInput)
	}
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListSavedProducts(ctx, customerID)
}

func (s *Service) AddSavedProduct(ctx context.Context, customerID string, req domain.SavedProductRequest) (domain.SavedProduct, error) {
	customerID = strings.TrimSpace(customerID)
	productID := strings.TrimSpace(req.ProductID)
	if customerID == "" || productID == "" {
		return domain.SavedProduct{}, fmt.Errorf("customer and product ids required: %w", store.ErrInvalidInput)
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	saved, err := s.repo.AddSavedProduct(ctx, domain.SavedProduct{
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   quantity,
	})
	if err != nil {
		return domain.SavedProduct{}, err
	}
	return *saved, nil
}

func (s *Service) RemoveSavedProduct(ctx context.Context, savedID string) error {
	savedID = strings.TrimSpace(savedID)
	if savedID == "" {
		return fmt.Errorf("saved product id required: %w", store.ErrInvalidInput)
	}
	return s.repo.RemoveSavedProduct(ctx, savedID)
}

func (s *Service) GetDashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	if cached, found, err := s.statsCache.Get(ctx, dashboardStatsKey); err == nil && found {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: dashboard cache read failed: %v", err)
	}

	stats, err := s.repo.GetDashboardStats(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	if err := s.statsCache.Set(ctx, dashboardStatsKey, &stats, s.statsTTL); err != nil {
		log.Printf("[service] WARN: dashboard cache write failed: %v", err)
	}
	return stats, nil
}
