package store

import (
	"context"
	"errors"

	"tokoserba/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("payment exceeds outstanding balance")
	ErrProductHasSales     = errors.New("product has sales history")
	ErrDuplicate           = errors.New("already exists")
)

// Repository is the storage boundary for the POS backend. Implementations
// must make CreateSale, RecordPayment, DeleteCustomer and DeleteProduct
// atomic: either every effect of the operation is visible after it returns,
// or none is.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// DeleteProduct soft-deletes the product when sale items reference it and
	// removes it physically (with its saved-product rows) otherwise. The
	// returned flag reports whether the delete was a soft delete.
	DeleteProduct(ctx context.Context, id string) (bool, error)

	// CreateSale runs the whole sale transaction: per-line stock validation,
	// price/profit snapshot, stock decrement, sale + item persistence and,
	// for wholesale sales with a customer, the balance increment.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	ListSalesByCustomer(ctx context.Context, customerID string) ([]domain.Sale, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	// DeleteCustomer removes the customer's saved products and payments,
	// detaches (nulls) the customer reference on their sales and deletes the
	// customer row, all in one transaction.
	DeleteCustomer(ctx context.Context, id string) error

	// RecordPayment persists a payment and decrements the customer balance.
	// Payments greater than the outstanding balance fail with
	// ErrInsufficientBalance; paying the exact balance is allowed.
	RecordPayment(ctx context.Context, customerID string, amount float64, notes string) (*domain.Payment, error)
	ListPaymentsByCustomer(ctx context.Context, customerID string) ([]domain.Payment, error)

	ListSavedProducts(ctx context.Context, customerID string) ([]domain.SavedProduct, error)
	AddSavedProduct(ctx context.Context, saved domain.SavedProduct) (*domain.SavedProduct, error)
	RemoveSavedProduct(ctx context.Context, savedID string) error

	GetDashboardStats(ctx context.Context) (domain.DashboardStats, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, id string, passwordHash string) error
	CountUsers(ctx context.Context) (int, error)
}
