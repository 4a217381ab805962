package service

import (
	"context"
	"fmt"

	"github.com/visagelab/visagebot/internal/config"
	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/repository"
)

type PackageService struct {
	cfg  config.Config
	repo *repository.PackageRepository
}

type CreatePackageInput struct {
	Code            string
	Title           string
	Description     string
	Currency        string
	PriceMinorUnits int
	Credits         int
	IsActive        *bool
}

type UpdatePackageInput struct {
	Title           *string
	Description     *string
	Currency        *string
	PriceMinorUnits *int
	Credits         *int
	IsActive        *bool
}

func NewPackageService(cfg config.Config, repo *repository.PackageRepository) *PackageService {
	return &PackageService{cfg: cfg, repo: repo}
}

// EnsureDefaults seeds the standard package tiers on first start.
func (s *PackageService) EnsureDefaults(ctx context.Context) error {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	defaults := []models.Package{
		{Code: "basic", Title: "Basic", Description: "Starter credit pack", Currency: s.cfg.PaymentCurrency, PriceMinorUnits: 500, Credits: 10, IsActive: true},
		{Code: "standard", Title: "Standard", Description: "Popular credit pack", Currency: s.cfg.PaymentCurrency, PriceMinorUnits: 2000, Credits: 50, IsActive: true},
		{Code: "pro", Title: "Pro", Description: "Big credit pack", Currency: s.cfg.PaymentCurrency, PriceMinorUnits: 3500, Credits: 100, IsActive: true},
	}
	for i := range defaults {
		if _, err := s.repo.Create(ctx, &defaults[i]); err != nil {
			return fmt.Errorf("create default package %s: %w", defaults[i].Code, err)
		}
	}
	return nil
}

func (s *PackageService) List(ctx context.Context) ([]models.Package, error) {
	return s.repo.List(ctx)
}

// ListActive returns purchasable packages in price order.
func (s *PackageService) ListActive(ctx context.Context) ([]models.Package, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, p := range all {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active, nil
}

func (s *PackageService) GetByCode(ctx context.Context, code string) (*models.Package, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *PackageService) GetByID(ctx context.Context, id int64) (*models.Package, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *PackageService) Create(ctx context.Context, input CreatePackageInput) (*models.Package, error) {
	if input.Code == "" {
		return nil, fmt.Errorf("code is required")
	}
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.Currency == "" {
		input.Currency = s.cfg.PaymentCurrency
	}
	if input.PriceMinorUnits <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}
	if input.Credits <= 0 {
		return nil, fmt.Errorf("credits must be positive")
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	pkg := models.Package{
		Code:            input.Code,
		Title:           input.Title,
		Description:     input.Description,
		Currency:        input.Currency,
		PriceMinorUnits: input.PriceMinorUnits,
		Credits:         input.Credits,
		IsActive:        isActive,
	}
	return s.repo.Create(ctx, &pkg)
}

func (s *PackageService) Update(ctx context.Context, id int64, input UpdatePackageInput) (*models.Package, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("package not found")
	}
	if input.Title != nil {
		existing.Title = *input.Title
	}
	if input.Description != nil {
		existing.Description = *input.Description
	}
	if input.Currency != nil && *input.Currency != "" {
		existing.Currency = *input.Currency
	}
	if input.PriceMinorUnits != nil && *input.PriceMinorUnits > 0 {
		existing.PriceMinorUnits = *input.PriceMinorUnits
	}
	if input.Credits != nil && *input.Credits > 0 {
		existing.Credits = *input.Credits
	}
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}
	return s.repo.Update(ctx, existing)
}

func (s *PackageService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
