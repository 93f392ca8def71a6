package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/utils"
)

type ProductRequest struct {
	CatalogID   string   `json:"catalog_id" binding:"omitempty,objectid"`
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	SKU         string   `json:"sku"`
	Price       *float64 `json:"price" binding:"required,gte=0"`
	Currency    string   `json:"currency" binding:"omitempty,iso4217"`
	Stock       int      `json:"stock" binding:"gte=0"`
	ImageURL    string   `json:"image_url" binding:"omitempty,url"`
	IsActive    *bool    `json:"is_active"`
}

// resolveCatalog returns the requested catalog id, or the tenant default.
func (h *Handler) resolveCatalog(c *gin.Context, adminID primitive.ObjectID, hexID string) (*primitive.ObjectID, bool) {
	ctx, cancel := h.dbCtx(c)
	defer cancel()

	var catalog models.ProductCatalog
	q := h.mongoClient.NewQuery(mongo.CollProductCatalogs).Eq("admin_id", adminID)
	if hexID != "" {
		oid, _ := primitive.ObjectIDFromHex(hexID)
		q.Eq("_id", oid)
	} else {
		q.Eq("is_default", true)
	}
	if err := q.FindOneInto(ctx, &catalog); err != nil {
		if hexID == "" {
			return nil, true
		}
		errors.BadRequest(c, "unknown catalog_id")
		return nil, false
	}
	return &catalog.ID, true
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	catalogID, ok := h.resolveCatalog(c, adminID, req.CatalogID)
	if !ok {
		return
	}

	product := models.Product{
		AdminID:     adminID,
		CatalogID:   catalogID,
		Name:        middleware.SanitizeString(req.Name),
		Description: middleware.SanitizeString(req.Description),
		SKU:         middleware.SanitizeString(req.SKU),
		Price:       *req.Price,
		Currency:    defaultCurrency(req.Currency),
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	product.Touch()

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	if _, err := h.mongoClient.NewQuery(mongo.CollProducts).Insert(ctx, product); err != nil {
		h.fail(c, err)
		return
	}
	h.record(c, activity.ActionCreate, "product", product.ID.Hex(), product.Name)
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) ListProducts(c *gin.Context) {
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	pagination := utils.ParsePagination(c)

	q := h.mongoClient.NewQuery(mongo.CollProducts).
		Eq("admin_id", adminID).
		IsNull("deleted_at").
		Contains("name", c.Query("search"))
	if oid, err := primitive.ObjectIDFromHex(c.Query("catalog_id")); err == nil {
		q.Eq("catalog_id", oid)
	}
	if c.Query("in_stock") == "true" {
		q.Gte("stock", 1)
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	products := []models.Product{}
	total, err := q.Sort("created_at", false).FindPage(ctx, pagination.Skip(), int64(pagination.Limit), &products)
	if err != nil {
		h.logger.Error("Failed to fetch products", zap.Error(err))
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPage(products, pagination, total))
}

func (h *Handler) GetProduct(c *gin.Context) {
	var product models.Product
	if !h.findByID(c, mongo.CollProducts, c.Param("id"), &product) || !h.checkOwner(c, product.AdminID) {
		return
	}
	if product.IsDeleted() {
		errors.NotFound(c, "product not found")
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	var product models.Product
	if !h.findByID(c, mongo.CollProducts, c.Param("id"), &product) || !h.checkOwner(c, product.AdminID) {
		return
	}
	if product.IsDeleted() {
		errors.NotFound(c, "product not found")
		return
	}

	updates := map[string]interface{}{
		"name":        middleware.SanitizeString(req.Name),
		"description": middleware.SanitizeString(req.Description),
		"sku":         middleware.SanitizeString(req.SKU),
		"price":       *req.Price,
		"stock":       req.Stock,
		"image_url":   req.ImageURL,
	}
	if req.Currency != "" {
		updates["currency"] = req.Currency
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.CatalogID != "" {
		catalogID, ok := h.resolveCatalog(c, product.AdminID, req.CatalogID)
		if !ok {
			return
		}
		updates["catalog_id"] = catalogID
	}
	h.updateByID(c, mongo.CollProducts, "product", updates)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	var product models.Product
	if !h.findByID(c, mongo.CollProducts, c.Param("id"), &product) || !h.checkOwner(c, product.AdminID) {
		return
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	now := nowUTC()
	if _, err := h.mongoClient.NewQuery(mongo.CollProducts).Eq("_id", product.ID).
		UpdateOne(ctx, map[string]interface{}{"deleted_at": now, "is_active": false, "updated_at": now}); err != nil {
		h.fail(c, err)
		return
	}
	h.record(c, activity.ActionDelete, "product", product.ID.Hex(), product.Name)
	c.JSON(http.StatusOK, gin.H{"message": "product deleted successfully"})
}
