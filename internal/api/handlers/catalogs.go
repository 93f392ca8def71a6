package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
)

type CatalogRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Currency    string `json:"currency" binding:"omitempty,iso4217"`
	IsDefault   bool   `json:"is_default"`
}

func (h *Handler) CreateCatalog(c *gin.Context) {
	var req CatalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	catalog := models.ProductCatalog{
		AdminID:     adminID,
		Name:        middleware.SanitizeString(req.Name),
		Description: middleware.SanitizeString(req.Description),
		Currency:    defaultCurrency(req.Currency),
	}
	catalog.Touch()

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	// The first catalog of a tenant becomes its default.
	existing, err := h.mongoClient.NewQuery(mongo.CollProductCatalogs).Eq("admin_id", adminID).Count(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	if existing == 0 {
		req.IsDefault = true
	}

	if _, err := h.mongoClient.NewQuery(mongo.CollProductCatalogs).Insert(ctx, catalog); err != nil {
		h.fail(c, err)
		return
	}
	if req.IsDefault {
		if err := h.swapDefaultCatalog(c, catalog); err != nil {
			h.fail(c, err)
			return
		}
		catalog.IsDefault = true
	}

	h.record(c, activity.ActionCreate, "product_catalog", catalog.ID.Hex(), catalog.Name)
	c.JSON(http.StatusCreated, catalog)
}

func (h *Handler) ListCatalogs(c *gin.Context) {
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	catalogs := []models.ProductCatalog{}
	if err := h.mongoClient.NewQuery(mongo.CollProductCatalogs).
		Eq("admin_id", adminID).
		Sort("created_at", true).
		FindInto(ctx, &catalogs); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": catalogs, "count": len(catalogs)})
}

func (h *Handler) GetCatalog(c *gin.Context) {
	var catalog models.ProductCatalog
	if !h.findByID(c, mongo.CollProductCatalogs, c.Param("id"), &catalog) || !h.checkOwner(c, catalog.AdminID) {
		return
	}
	c.JSON(http.StatusOK, catalog)
}

func (h *Handler) UpdateCatalog(c *gin.Context) {
	var req CatalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	var catalog models.ProductCatalog
	if !h.findByID(c, mongo.CollProductCatalogs, c.Param("id"), &catalog) || !h.checkOwner(c, catalog.AdminID) {
		return
	}

	updates := map[string]interface{}{
		"name":        middleware.SanitizeString(req.Name),
		"description": middleware.SanitizeString(req.Description),
	}
	if req.Currency != "" {
		updates["currency"] = req.Currency
	}
	h.updateByID(c, mongo.CollProductCatalogs, "product_catalog", updates)
}

// SetDefaultCatalog makes the catalog the tenant's default.
func (h *Handler) SetDefaultCatalog(c *gin.Context) {
	var catalog models.ProductCatalog
	if !h.findByID(c, mongo.CollProductCatalogs, c.Param("id"), &catalog) || !h.checkOwner(c, catalog.AdminID) {
		return
	}
	if err := h.swapDefaultCatalog(c, catalog); err != nil {
		h.fail(c, err)
		return
	}
	h.record(c, activity.ActionUpdate, "product_catalog", catalog.ID.Hex(), "set as default")
	c.JSON(http.StatusOK, gin.H{"message": "default catalog updated"})
}

func (h *Handler) swapDefaultCatalog(c *gin.Context, catalog models.ProductCatalog) error {
	ctx, cancel := h.dbCtx(c)
	defer cancel()
	return swapDefault(ctx, h.inventory, catalog)
}

// DeleteCatalog refuses to delete the default catalog or one that still has products.
func (h *Handler) DeleteCatalog(c *gin.Context) {
	var catalog models.ProductCatalog
	if !h.findByID(c, mongo.CollProductCatalogs, c.Param("id"), &catalog) || !h.checkOwner(c, catalog.AdminID) {
		return
	}
	if catalog.IsDefault {
		errors.Conflict(c, "cannot delete the default catalog")
		return
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	n, err := h.mongoClient.NewQuery(mongo.CollProducts).
		Eq("catalog_id", catalog.ID).
		IsNull("deleted_at").
		Count(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	if n > 0 {
		errors.Conflict(c, "catalog still has products")
		return
	}

	if _, err := h.mongoClient.NewQuery(mongo.CollProductCatalogs).Eq("_id", catalog.ID).DeleteOne(ctx); err != nil {
		h.fail(c, err)
		return
	}
	h.record(c, activity.ActionDelete, "product_catalog", catalog.ID.Hex(), catalog.Name)
	c.JSON(http.StatusOK, gin.H{"message": "catalog deleted successfully"})
}

func defaultCurrency(cur string) string {
	if cur == "" {
		return "INR"
	}
	return cur
}
