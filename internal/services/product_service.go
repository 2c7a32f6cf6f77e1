// internal/services/product_service.go
package services

import (
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Rryannta/marketplace-digital/internal/config"
	"github.com/Rryannta/marketplace-digital/internal/models"
	"github.com/Rryannta/marketplace-digital/internal/utils"
)

// ProductService manages the product catalog: listings, search,
// uploads and the archive-instead-of-delete rule for sold products.
type ProductService struct {
	db      *gorm.DB
	storage *StorageService
	cfg     *config.Config
}

type CreateProductRequest struct {
	Title       string   `json:"title" validate:"required,min=3,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	Category    string   `json:"category" validate:"required,max=50"`
	Price       int64    `json:"price" validate:"gte=0"`
	Tags        []string `json:"tags" validate:"max=10,dive,max=30"`
}

type UpdateProductRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=5000"`
	Category    *string  `json:"category" validate:"omitempty,max=50"`
	Price       *int64   `json:"price" validate:"omitempty,gte=0"`
	Tags        []string `json:"tags" validate:"omitempty,max=10,dive,max=30"`
}

func NewProductService(db *gorm.DB, storage *StorageService, cfg *config.Config) *ProductService {
	return &ProductService{db: db, storage: storage, cfg: cfg}
}

func (s *ProductService) CreateProduct(ownerID uuid.UUID, req *CreateProductRequest) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	product := &models.Product{
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Tags:        pq.StringArray(req.Tags),
	}

	if err := s.db.Create(product).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return product, nil
}

func (s *ProductService) GetProduct(productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.Preload("Owner").First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &product, nil
}

// RecordView bumps the view counter without loading the row. Failures are
// logged and swallowed, a lost view is not worth a failed page load.
func (s *ProductService) RecordView(productID uuid.UUID) {
	err := s.db.Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
	if err != nil {
		logrus.WithError(err).WithField("product_id", productID).Warn("Failed to record product view")
	}
}

func (s *ProductService) UpdateProduct(ownerID, productID uuid.UUID, req *UpdateProductRequest) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	product, err := s.getOwnedProduct(ownerID, productID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.Tags != nil {
		updates["tags"] = pq.StringArray(req.Tags)
	}

	if len(updates) == 0 {
		return product, nil
	}

	if err := s.db.Model(product).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return product, nil
}

// RemoveProduct archives a product that has sales and hard-deletes one
// that never sold. Archived products stay resolvable so past buyers keep
// their downloads. Returns true when the product was archived.
func (s *ProductService) RemoveProduct(ownerID, productID uuid.UUID) (bool, error) {
	product, err := s.getOwnedProduct(ownerID, productID)
	if err != nil {
		return false, err
	}

	var soldCount int64
	if err := s.db.Model(&models.Order{}).
		Where("product_id = ? AND status = ?", productID, models.OrderStatusSuccess).
		Count(&soldCount).Error; err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}

	if soldCount > 0 {
		if err := s.db.Model(product).UpdateColumn("is_archived", true).Error; err != nil {
			return false, fmt.Errorf("failed to archive product: %w", err)
		}
		return true, nil
	}

	if err := s.db.Delete(product).Error; err != nil {
		return false, fmt.Errorf("failed to delete product: %w", err)
	}

	if product.FileKey != "" {
		if err := s.storage.DeleteFile(s.cfg.AWS.FileBucket, product.FileKey); err != nil {
			logrus.WithError(err).WithField("key", product.FileKey).Warn("Failed to delete product file")
		}
	}
	if product.CoverKey != "" {
		if err := s.storage.DeleteFile(s.cfg.AWS.ImageBucket, product.CoverKey); err != nil {
			logrus.WithError(err).WithField("key", product.CoverKey).Warn("Failed to delete cover image")
		}
	}

	return false, nil
}

// SearchProducts lists non-archived products with the storefront filters:
// trending sorts by sales, new by recency, sale keeps budget items only.
func (s *ProductService) SearchProducts(params utils.PaginationParams) ([]models.Product, int64, error) {
	query := s.db.Model(&models.Product{}).
		Where("is_archived = ?", false).
		Preload("Owner")

	if params.Search != "" {
		pattern := "%" + params.Search + "%"
		query = query.Where("title ILIKE ?", pattern)
	}

	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}

	if params.Filter == "sale" {
		query = query.Where("price < ?", int64(50000))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	switch params.Filter {
	case "trending":
		query = query.Order("sales_count DESC")
	case "new":
		query = query.Order("created_at DESC")
	case "sale":
		query = query.Order("price ASC")
	default:
		allowedSortFields := []string{"created_at", "price", "sales_count", "view_count", "title"}
		query = utils.ApplySort(query, params, allowedSortFields)
	}

	query = utils.ApplyPagination(query, params)

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to search products: %w", err)
	}

	return products, total, nil
}

// ListOwnProducts returns the seller's catalog, archived listings included.
func (s *ProductService) ListOwnProducts(ownerID uuid.UUID, params utils.PaginationParams) ([]models.Product, int64, error) {
	query := s.db.Model(&models.Product{}).Where("owner_id = ?", ownerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	allowedSortFields := []string{"created_at", "price", "sales_count", "view_count", "title"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch products: %w", err)
	}

	return products, total, nil
}

// UploadProductFile stores the downloadable asset in the private bucket
// and replaces the previous one.
func (s *ProductService) UploadProductFile(ownerID, productID uuid.UUID, file multipart.File, header *multipart.FileHeader) (*models.Product, error) {
	product, err := s.getOwnedProduct(ownerID, productID)
	if err != nil {
		return nil, err
	}

	options := s.storage.GetDefaultUploadOptions("product_files")
	result, err := s.storage.UploadFile(file, header, options)
	if err != nil {
		return nil, err
	}

	oldKey := product.FileKey
	if err := s.db.Model(product).UpdateColumn("file_key", result.Key).Error; err != nil {
		return nil, fmt.Errorf("failed to save file key: %w", err)
	}
	product.FileKey = result.Key

	if oldKey != "" && oldKey != result.Key {
		if err := s.storage.DeleteFile(s.cfg.AWS.FileBucket, oldKey); err != nil {
			logrus.WithError(err).WithField("key", oldKey).Warn("Failed to delete replaced product file")
		}
	}

	return product, nil
}

// UploadCoverImage stores the listing cover in the public bucket.
func (s *ProductService) UploadCoverImage(ownerID, productID uuid.UUID, file multipart.File, header *multipart.FileHeader) (*models.Product, error) {
	product, err := s.getOwnedProduct(ownerID, productID)
	if err != nil {
		return nil, err
	}

	if err := s.storage.ValidateImage(file); err != nil {
		return nil, err
	}

	options := s.storage.GetDefaultUploadOptions("covers")
	result, err := s.storage.UploadFile(file, header, options)
	if err != nil {
		return nil, err
	}

	oldKey := product.CoverKey
	updates := map[string]interface{}{
		"cover_key": result.Key,
		"cover_url": result.URL,
	}
	if err := s.db.Model(product).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to save cover image: %w", err)
	}
	product.CoverKey = result.Key
	product.CoverURL = result.URL

	if oldKey != "" && oldKey != result.Key {
		if err := s.storage.DeleteFile(s.cfg.AWS.ImageBucket, oldKey); err != nil {
			logrus.WithError(err).WithField("key", oldKey).Warn("Failed to delete replaced cover image")
		}
	}

	return product, nil
}

// SaveSearchQuery records a search term for the user. Duplicates of the
// most recent entry are skipped.
func (s *ProductService) SaveSearchQuery(userID uuid.UUID, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}

	var last models.SearchHistory
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").First(&last).Error
	if err == nil && last.Query == query {
		return
	}

	entry := &models.SearchHistory{UserID: userID, Query: query}
	if err := s.db.Create(entry).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to save search history")
	}
}

// ListSearchHistory returns the user's recent search terms, newest first.
func (s *ProductService) ListSearchHistory(userID uuid.UUID, limit int) ([]models.SearchHistory, error) {
	if limit < 1 || limit > 50 {
		limit = 10
	}

	var entries []models.SearchHistory
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search history: %w", err)
	}

	return entries, nil
}

func (s *ProductService) ClearSearchHistory(userID uuid.UUID) error {
	if err := s.db.Where("user_id = ?", userID).Delete(&models.SearchHistory{}).Error; err != nil {
		return fmt.Errorf("failed to clear search history: %w", err)
	}
	return nil
}

func (s *ProductService) getOwnedProduct(ownerID, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if product.OwnerID != ownerID {
		return nil, ErrNotEntitled
	}

	return &product, nil
}
