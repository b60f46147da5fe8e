package products

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/PriceDrop/internal/broker/messages"
	cachemocks "github.com/BearBump/PriceDrop/internal/cache/mocks"
	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/BearBump/PriceDrop/internal/scraper"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	productsmocks "github.com/BearBump/PriceDrop/internal/services/products/mocks"
)

type ServiceSuite struct {
	suite.Suite

	repo    *productsmocks.MockRepository
	cache   *cachemocks.MockBytesCache
	scraper *stubScraper
	mailer  *recordingMailer
	svc     *Service
	userID  uuid.UUID
}

func (s *ServiceSuite) SetupTest() {
	s.repo = &productsmocks.MockRepository{}
	s.cache = &cachemocks.MockBytesCache{}
	s.scraper = &stubScraper{}
	s.mailer = &recordingMailer{}
	s.svc = New(s.repo, s.scraper, s.mailer, s.cache, 10*time.Minute)
	s.userID = uuid.New()
}

func (s *ServiceSuite) TestTrackProduct_NewURL_ScrapesAndCreates() {
	url := "https://www.amazon.com/dp/B0TEST"
	s.scraper.product = scraper.Product{Title: "Headphones", Price: 100, Currency: "USD", InStock: true}

	s.repo.On("GetProfile", mock.Anything, s.userID).
		Return(&models.Profile{ID: s.userID, Plan: models.PlanFree}, nil).Once()
	s.repo.On("CountActiveSubscriptions", mock.Anything, s.userID).Return(2, nil).Once()
	s.repo.On("GetProductByURL", mock.Anything, url).Return(nil, models.ErrNotFound).Once()
	s.repo.On("CreateProduct", mock.Anything, mock.MatchedBy(func(in models.ProductCreateInput) bool {
		return in.URL == url && in.Platform == "amazon" && in.Price == 100 && in.Name == "Headphones" && !in.CheckedAt.IsZero()
	})).Return(&models.Product{ID: 11, URL: url, CurrentPrice: 100}, nil).Once()
	s.repo.On("CreateSubscription", mock.Anything, models.SubscriptionCreateInput{
		UserID: s.userID, ProductID: 11, NotifyOnAnyDrop: true,
	}).Return(&models.Subscription{ID: 3, UserID: s.userID, ProductID: 11, IsActive: true}, nil).Once()

	res, err := s.svc.TrackProduct(context.Background(), TrackRequest{UserID: s.userID, URL: url, NotifyOnAnyDrop: true})
	s.Require().NoError(err)
	s.Require().Equal(uint64(11), res.Product.ID)
	s.Require().Equal(uint64(3), res.Subscription.ID)
	s.Require().Equal([]string{url}, s.scraper.calls)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestTrackProduct_KnownURL_NoScrape() {
	url := "https://www.ebay.com/itm/1"
	target := 80.0
	s.repo.On("GetProfile", mock.Anything, s.userID).
		Return(&models.Profile{ID: s.userID, Plan: models.PlanPro}, nil).Once()
	s.repo.On("CountActiveSubscriptions", mock.Anything, s.userID).Return(40, nil).Once()
	s.repo.On("GetProductByURL", mock.Anything, url).Return(&models.Product{ID: 5, URL: url, IsActive: true}, nil).Once()
	s.repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(in models.SubscriptionCreateInput) bool {
		return in.ProductID == 5 && in.TargetPrice != nil && *in.TargetPrice == 80
	})).Return(&models.Subscription{ID: 9, ProductID: 5}, nil).Once()

	_, err := s.svc.TrackProduct(context.Background(), TrackRequest{UserID: s.userID, URL: url, TargetPrice: &target})
	s.Require().NoError(err)
	s.Require().Empty(s.scraper.calls)
	s.repo.AssertNotCalled(s.T(), "CreateProduct", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestTrackProduct_InactiveProduct_RescrapedAndReactivated() {
	url := "https://www.walmart.com/ip/desk/3"
	checked := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s.scraper.product = scraper.Product{Title: "Desk", Price: 150, InStock: true}

	s.repo.On("GetProfile", mock.Anything, s.userID).
		Return(&models.Profile{ID: s.userID, Plan: models.PlanFree}, nil).Once()
	s.repo.On("CountActiveSubscriptions", mock.Anything, s.userID).Return(0, nil).Once()
	s.repo.On("GetProductByURL", mock.Anything, url).
		Return(&models.Product{ID: 7, URL: url, IsActive: false, LastChecked: &checked}, nil).Once()
	s.repo.On("ReactivateProduct", mock.Anything, uint64(7)).Return(nil).Once()
	s.repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(in models.SubscriptionCreateInput) bool {
		return in.ProductID == 7
	})).Return(&models.Subscription{ID: 1, ProductID: 7, IsActive: true}, nil).Once()

	res, err := s.svc.TrackProduct(context.Background(), TrackRequest{UserID: s.userID, URL: url, NotifyOnAnyDrop: true})
	s.Require().NoError(err)
	s.Require().True(res.Product.IsActive)
	s.Require().Nil(res.Product.LastChecked)
	s.Require().Equal([]string{url}, s.scraper.calls)
	s.repo.AssertNotCalled(s.T(), "CreateProduct", mock.Anything, mock.Anything)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestTrackProduct_InactiveProduct_StillBroken() {
	url := "https://www.walmart.com/ip/desk/3"
	s.scraper.err = &scraper.Error{URL: url, StatusCode: 404}

	s.repo.On("GetProfile", mock.Anything, s.userID).
		Return(&models.Profile{ID: s.userID, Plan: models.PlanFree}, nil).Once()
	s.repo.On("CountActiveSubscriptions", mock.Anything, s.userID).Return(0, nil).Once()
	s.repo.On("GetProductByURL", mock.Anything, url).Return(&models.Product{ID: 7, URL: url}, nil).Once()

	_, err := s.svc.TrackProduct(context.Background(), TrackRequest{UserID: s.userID, URL: url, NotifyOnAnyDrop: true})
	var se *scraper.Error
	s.Require().True(errors.As(err, &se))
	s.repo.AssertNotCalled(s.T(), "ReactivateProduct", mock.Anything, mock.Anything)
	s.repo.AssertNotCalled(s.T(), "CreateSubscription", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestTrackProduct_PlanLimit() {
	s.repo.On("GetProfile", mock.Anything, s.userID).
		Return(&models.Profile{ID: s.userID, Plan: models.PlanFree}, nil).Once()
	s.repo.On("CountActiveSubscriptions", mock.Anything, s.userID).Return(5, nil).Once()

	_, err := s.svc.TrackProduct(context.Background(), TrackRequest{UserID: s.userID, URL: "https://walmart.com/ip/1"})
	s.Require().ErrorIs(err, models.ErrPlanLimitReached)
	s.repo.AssertNotCalled(s.T(), "GetProductByURL", mock.Anything, mock.Anything)
	s.repo.AssertNotCalled(s.T(), "CreateSubscription", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestTrackProduct_Duplicate() {
	url := "https://www.ebay.com/itm/1"
	s.repo.On("GetProfile", mock.Anything, s.userID).
		Return(&models.Profile{ID: s.userID, Plan: models.PlanFree}, nil).Once()
	s.repo.On("CountActiveSubscriptions", mock.Anything, s.userID).Return(1, nil).Once()
	s.repo.On("GetProductByURL", mock.Anything, url).Return(&models.Product{ID: 5, IsActive: true}, nil).Once()
	s.repo.On("CreateSubscription", mock.Anything, mock.Anything).Return(nil, models.ErrAlreadyTracking).Once()

	_, err := s.svc.TrackProduct(context.Background(), TrackRequest{UserID: s.userID, URL: url})
	s.Require().ErrorIs(err, models.ErrAlreadyTracking)
}

func (s *ServiceSuite) TestTrackProduct_ScrapeFailure_NothingCreated() {
	url := "https://shop.example.com/p/1"
	s.scraper.err = &scraper.Error{URL: url, StatusCode: 404, Err: errors.New("not found")}
	s.repo.On("GetProfile", mock.Anything, s.userID).
		Return(&models.Profile{ID: s.userID, Plan: models.PlanFree}, nil).Once()
	s.repo.On("CountActiveSubscriptions", mock.Anything, s.userID).Return(0, nil).Once()
	s.repo.On("GetProductByURL", mock.Anything, url).Return(nil, models.ErrNotFound).Once()

	_, err := s.svc.TrackProduct(context.Background(), TrackRequest{UserID: s.userID, URL: url})
	var se *scraper.Error
	s.Require().ErrorAs(err, &se)
	s.repo.AssertNotCalled(s.T(), "CreateProduct", mock.Anything, mock.Anything)
	s.repo.AssertNotCalled(s.T(), "CreateSubscription", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestTrackProduct_Validation() {
	bad := -1.0
	zero := 0.0
	cases := []TrackRequest{
		{URL: "https://ebay.com/itm/1"},
		{UserID: s.userID, URL: ""},
		{UserID: s.userID, URL: "ftp://ebay.com/itm/1"},
		{UserID: s.userID, URL: "not a url"},
		{UserID: s.userID, URL: "https:///nohost"},
		{UserID: s.userID, URL: "https://ebay.com/itm/1", TargetPrice: &bad},
		{UserID: s.userID, URL: "https://ebay.com/itm/1", TargetPrice: &zero},
	}
	for _, req := range cases {
		_, err := s.svc.TrackProduct(context.Background(), req)
		s.Require().ErrorIs(err, models.ErrInvalidInput, req.URL)
	}
	s.repo.AssertNotCalled(s.T(), "GetProfile", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestTrackProduct_ProfileNotFound() {
	s.repo.On("GetProfile", mock.Anything, s.userID).Return(nil, models.ErrProfileNotFound).Once()
	_, err := s.svc.TrackProduct(context.Background(), TrackRequest{UserID: s.userID, URL: "https://ebay.com/itm/1"})
	s.Require().ErrorIs(err, models.ErrProfileNotFound)
}

func (s *ServiceSuite) TestUntrackProduct() {
	s.Require().ErrorIs(s.svc.UntrackProduct(context.Background(), s.userID, 0), models.ErrInvalidInput)

	s.repo.On("DeactivateSubscription", mock.Anything, s.userID, uint64(4)).Return(models.ErrNotTracking).Once()
	s.Require().ErrorIs(s.svc.UntrackProduct(context.Background(), s.userID, 4), models.ErrNotTracking)
}

func (s *ServiceSuite) TestCreateProfile_DefaultsAndWelcome() {
	s.repo.On("CreateProfile", mock.Anything, models.Profile{
		ID: s.userID, Email: "ann@example.com", FullName: "Ann", Plan: models.PlanFree, EmailNotifications: true,
	}).Return(&models.Profile{ID: s.userID, Email: "ann@example.com", FullName: "Ann", Plan: models.PlanFree}, nil).Once()

	p, err := s.svc.CreateProfile(context.Background(), ProfileInput{ID: s.userID, Email: " ann@example.com ", FullName: "Ann"})
	s.Require().NoError(err)
	s.Require().Equal(models.PlanFree, p.Plan)
	s.Require().Len(s.mailer.welcomes, 1)
	s.Require().Equal("ann@example.com", s.mailer.welcomes[0].To)
}

func (s *ServiceSuite) TestCreateProfile_WelcomeFailureIsNotReturned() {
	s.mailer.err = errors.New("smtp down")
	s.repo.On("CreateProfile", mock.Anything, mock.Anything).
		Return(&models.Profile{ID: s.userID, Email: "ann@example.com"}, nil).Once()

	_, err := s.svc.CreateProfile(context.Background(), ProfileInput{ID: s.userID, Email: "ann@example.com"})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestCreateProfile_Validation() {
	_, err := s.svc.CreateProfile(context.Background(), ProfileInput{Email: "ann@example.com"})
	s.Require().ErrorIs(err, models.ErrInvalidInput)
	_, err = s.svc.CreateProfile(context.Background(), ProfileInput{ID: s.userID, Email: "nope"})
	s.Require().ErrorIs(err, models.ErrInvalidInput)
	_, err = s.svc.CreateProfile(context.Background(), ProfileInput{ID: s.userID, Email: "ann@example.com", Plan: "gold"})
	s.Require().ErrorIs(err, models.ErrInvalidInput)
	s.repo.AssertNotCalled(s.T(), "CreateProfile", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGetProduct_CacheHit_NoDB() {
	b, _ := json.Marshal(&models.Product{ID: 7, Name: "Kettle"})
	s.cache.On("Get", mock.Anything, "product:7:current").Return(b, true, nil).Once()

	p, err := s.svc.GetProduct(context.Background(), 7)
	s.Require().NoError(err)
	s.Require().Equal("Kettle", p.Name)
	s.repo.AssertNotCalled(s.T(), "GetProduct", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGetProduct_CacheMissOrError_LoadsAndStores() {
	s.cache.On("Get", mock.Anything, "product:7:current").Return([]byte(nil), false, errors.New("redis down")).Once()
	s.repo.On("GetProduct", mock.Anything, uint64(7)).Return(&models.Product{ID: 7}, nil).Once()
	// ошибка Set игнорируется
	s.cache.On("Set", mock.Anything, "product:7:current", mock.Anything, 10*time.Minute).Return(errors.New("set failed")).Once()

	p, err := s.svc.GetProduct(context.Background(), 7)
	s.Require().NoError(err)
	s.Require().Equal(uint64(7), p.ID)
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGetProduct_CacheDisabled() {
	svc := New(s.repo, s.scraper, s.mailer, s.cache, 0)
	s.repo.On("GetProduct", mock.Anything, uint64(1)).Return(&models.Product{ID: 1}, nil).Once()

	_, err := svc.GetProduct(context.Background(), 1)
	s.Require().NoError(err)
	s.cache.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestListTrackedProducts() {
	s.repo.On("ListUserSubscriptions", mock.Anything, s.userID).
		Return([]*models.Subscription{{ID: 1, ProductID: 7}}, nil).Once()
	b, _ := json.Marshal(&models.Product{ID: 7})
	s.cache.On("Get", mock.Anything, "product:7:current").Return(b, true, nil).Once()

	out, err := s.svc.ListTrackedProducts(context.Background(), s.userID)
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Require().Equal(uint64(7), out[0].Product.ID)
}

func (s *ServiceSuite) TestListHistory_ClampsPaging() {
	s.repo.On("ListPriceHistory", mock.Anything, uint64(3), 100, 0).Return([]*models.PriceObservation{{ID: 1}}, nil).Once()
	out, err := s.svc.ListHistory(context.Background(), 3, 0, -5)
	s.Require().NoError(err)
	s.Require().Len(out, 1)

	_, err = s.svc.ListHistory(context.Background(), 0, 10, 0)
	s.Require().ErrorIs(err, models.ErrInvalidInput)
}

func (s *ServiceSuite) TestApplyPriceChanged_RefreshesCache() {
	s.repo.On("GetProduct", mock.Anything, uint64(10)).Return(&models.Product{ID: 10, CurrentPrice: 80}, nil).Once()
	s.cache.On("Set", mock.Anything, "product:10:current", mock.MatchedBy(func(b []byte) bool {
		var p models.Product
		return json.Unmarshal(b, &p) == nil && p.CurrentPrice == 80
	}), 10*time.Minute).Return(nil).Once()

	s.Require().NoError(s.svc.ApplyPriceChanged(context.Background(), messages.PriceChanged{ProductID: 10, NewPrice: 80}))
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestApplyPriceChanged_MissingProductDropsKey() {
	s.repo.On("GetProduct", mock.Anything, uint64(10)).Return(nil, models.ErrNotFound).Once()
	s.cache.On("Delete", mock.Anything, "product:10:current").Return(nil).Once()

	s.Require().NoError(s.svc.ApplyPriceChanged(context.Background(), messages.PriceChanged{ProductID: 10}))
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestApplyPriceChanged_Validation_AndRepoError() {
	s.Require().Error(s.svc.ApplyPriceChanged(context.Background(), messages.PriceChanged{}))

	want := errors.New("db down")
	s.repo.On("GetProduct", mock.Anything, uint64(2)).Return(nil, want).Once()
	s.Require().ErrorIs(s.svc.ApplyPriceChanged(context.Background(), messages.PriceChanged{ProductID: 2}), want)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
