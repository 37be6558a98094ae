package store

import (
	"MedicChat/models"
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrCustomerNotFound = errors.New("customer not found")

// CustomerStore reads the customer directory. Customers are created and
// edited by the admin application; nothing here writes to the table.
type CustomerStore struct {
	db *gorm.DB
}

func NewCustomerStore(db *gorm.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

// List returns every customer ordered by id, newest first when newestFirst.
func (s *CustomerStore) List(ctx context.Context, newestFirst bool) ([]models.Customer, error) {
	order := "id ASC"
	if newestFirst {
		order = "id DESC"
	}
	out := []models.Customer{}
	if err := s.db.WithContext(ctx).Order(order).Find(&out).Error; err != nil {
		return nil, &StorageError{Op: "list customers", Err: err}
	}
	return out, nil
}

// Get returns one customer or ErrCustomerNotFound.
func (s *CustomerStore) Get(ctx context.Context, id uint) (models.Customer, error) {
	var c models.Customer
	err := s.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Customer{}, ErrCustomerNotFound
	}
	if err != nil {
		return models.Customer{}, &StorageError{Op: "get customer", Err: err}
	}
	return c, nil
}
