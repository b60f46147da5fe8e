package mocks

import (
	"context"

	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateProfile(ctx context.Context, p models.Profile) (*models.Profile, error) {
	args := m.Called(ctx, p)
	var out *models.Profile
	if v := args.Get(0); v != nil {
		out = v.(*models.Profile)
	}
	return out, args.Error(1)
}

func (m *MockRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	var out *models.Profile
	if v := args.Get(0); v != nil {
		out = v.(*models.Profile)
	}
	return out, args.Error(1)
}

func (m *MockRepository) CountActiveSubscriptions(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) GetProduct(ctx context.Context, id uint64) (*models.Product, error) {
	args := m.Called(ctx, id)
	var out *models.Product
	if v := args.Get(0); v != nil {
		out = v.(*models.Product)
	}
	return out, args.Error(1)
}

func (m *MockRepository) GetProductByURL(ctx context.Context, url string) (*models.Product, error) {
	args := m.Called(ctx, url)
	var out *models.Product
	if v := args.Get(0); v != nil {
		out = v.(*models.Product)
	}
	return out, args.Error(1)
}

func (m *MockRepository) ReactivateProduct(ctx context.Context, id uint64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) CreateProduct(ctx context.Context, in models.ProductCreateInput) (*models.Product, error) {
	args := m.Called(ctx, in)
	var out *models.Product
	if v := args.Get(0); v != nil {
		out = v.(*models.Product)
	}
	return out, args.Error(1)
}

func (m *MockRepository) CreateSubscription(ctx context.Context, in models.SubscriptionCreateInput) (*models.Subscription, error) {
	args := m.Called(ctx, in)
	var out *models.Subscription
	if v := args.Get(0); v != nil {
		out = v.(*models.Subscription)
	}
	return out, args.Error(1)
}

func (m *MockRepository) DeactivateSubscription(ctx context.Context, userID uuid.UUID, productID uint64) error {
	args := m.Called(ctx, userID, productID)
	return args.Error(0)
}

func (m *MockRepository) ListUserSubscriptions(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error) {
	args := m.Called(ctx, userID)
	var out []*models.Subscription
	if v := args.Get(0); v != nil {
		out = v.([]*models.Subscription)
	}
	return out, args.Error(1)
}

func (m *MockRepository) ListPriceHistory(ctx context.Context, productID uint64, limit, offset int) ([]*models.PriceObservation, error) {
	args := m.Called(ctx, productID, limit, offset)
	var out []*models.PriceObservation
	if v := args.Get(0); v != nil {
		out = v.([]*models.PriceObservation)
	}
	return out, args.Error(1)
}
