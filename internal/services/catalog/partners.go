package catalog

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"stockledger/internal/database/models"
)

type SupplierParams struct {
	SupplierName  string
	ContactPerson *string
	Phone         *string
	Email         *string
	Address       *string
}

func (s *Service) CreateSupplier(ctx context.Context, p SupplierParams) (models.Supplier, error) {
	if p.SupplierName == "" {
		return models.Supplier{}, status.Errorf(codes.InvalidArgument, "Supplier name is required")
	}

	supplier := models.Supplier{
		SupplierName:  p.SupplierName,
		ContactPerson: p.ContactPerson,
		Phone:         p.Phone,
		Email:         p.Email,
		Address:       p.Address,
		IsActive:      true,
	}
	if err := s.db.WithContext(ctx).Create(&supplier).Error; err != nil {
		return models.Supplier{}, dbErr(err)
	}
	return supplier, nil
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (models.Supplier, error) {
	var supplier models.Supplier
	if err := s.db.WithContext(ctx).First(&supplier, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.Supplier{}, status.Errorf(codes.NotFound, "Supplier with ID %d not found", id)
		}
		return models.Supplier{}, dbErr(err)
	}
	return supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context, limit, offset int) ([]models.Supplier, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Supplier{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, dbErr(err)
	}

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var suppliers []models.Supplier
	if err := query.Order("supplier_name ASC").Limit(limit).Offset(offset).Find(&suppliers).Error; err != nil {
		return nil, 0, dbErr(err)
	}
	return suppliers, total, nil
}

type UpdateSupplierParams struct {
	SupplierName  *string
	ContactPerson *string
	Phone         *string
	Email         *string
	Address       *string
	IsActive      *bool
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, p UpdateSupplierParams) (models.Supplier, error) {
	var supplier models.Supplier
	if err := s.db.WithContext(ctx).First(&supplier, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.Supplier{}, status.Errorf(codes.NotFound, "Supplier with ID %d not found", id)
		}
		return models.Supplier{}, dbErr(err)
	}

	if p.SupplierName != nil {
		supplier.SupplierName = *p.SupplierName
	}
	if p.ContactPerson != nil {
		supplier.ContactPerson = p.ContactPerson
	}
	if p.Phone != nil {
		supplier.Phone = p.Phone
	}
	if p.Email != nil {
		supplier.Email = p.Email
	}
	if p.Address != nil {
		supplier.Address = p.Address
	}
	if p.IsActive != nil {
		supplier.IsActive = *p.IsActive
	}

	if err := s.db.WithContext(ctx).Save(&supplier).Error; err != nil {
		return models.Supplier{}, dbErr(err)
	}
	return supplier, nil
}

type LocationParams struct {
	LocationName string
	Description  *string
}

func (s *Service) CreateLocation(ctx context.Context, p LocationParams) (models.Location, error) {
	if p.LocationName == "" {
		return models.Location{}, status.Errorf(codes.InvalidArgument, "Location name is required")
	}

	location := models.Location{
		LocationName: p.LocationName,
		Description:  p.Description,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&location).Error; err != nil {
		return models.Location{}, dbErr(err)
	}
	return location, nil
}

func (s *Service) GetLocation(ctx context.Context, id int64) (models.Location, error) {
	var location models.Location
	if err := s.db.WithContext(ctx).First(&location, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.Location{}, status.Errorf(codes.NotFound, "Location with ID %d not found", id)
		}
		return models.Location{}, dbErr(err)
	}
	return location, nil
}

func (s *Service) ListLocations(ctx context.Context, limit, offset int) ([]models.Location, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Location{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, dbErr(err)
	}

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var locations []models.Location
	if err := query.Order("location_name ASC").Limit(limit).Offset(offset).Find(&locations).Error; err != nil {
		return nil, 0, dbErr(err)
	}
	return locations, total, nil
}

type CategoryParams struct {
	CategoryName string
	Description  *string
}

func (s *Service) CreateCategory(ctx context.Context, p CategoryParams) (models.Category, error) {
	if p.CategoryName == "" {
		return models.Category{}, status.Errorf(codes.InvalidArgument, "Category name is required")
	}

	category := models.Category{
		CategoryName: p.CategoryName,
		Description:  p.Description,
	}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		return models.Category{}, dbErr(err)
	}
	return category, nil
}

func (s *Service) ListCategories(ctx context.Context, limit, offset int) ([]models.Category, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Category{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, dbErr(err)
	}

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var categories []models.Category
	if err := query.Order("category_name ASC").Limit(limit).Offset(offset).Find(&categories).Error; err != nil {
		return nil, 0, dbErr(err)
	}
	return categories, total, nil
}
