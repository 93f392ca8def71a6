package handlers

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/activity"
	"github.com/troikatech/engage-api/pkg/errors"
	"github.com/troikatech/engage-api/pkg/middleware"
	"github.com/troikatech/engage-api/pkg/mongo"
	"github.com/troikatech/engage-api/pkg/utils"
)

type OrderItemRequest struct {
	ProductID string `json:"product_id" binding:"required,objectid"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

type CreateOrderRequest struct {
	UserID        string             `json:"user_id" binding:"omitempty,objectid"`
	CustomerName  string             `json:"customer_name" binding:"required"`
	CustomerPhone string             `json:"customer_phone" binding:"required,e164"`
	Items         []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Notes         string             `json:"notes"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending confirmed shipped delivered cancelled"`
}

// CreateOrder snapshots product prices and reserves stock item by item.
// A failed reservation releases what was already reserved.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	order := models.Order{
		AdminID:       adminID,
		CustomerName:  middleware.SanitizeString(req.CustomerName),
		CustomerPhone: req.CustomerPhone,
		Notes:         middleware.SanitizeString(req.Notes),
		Status:        models.OrderPending,
	}
	if req.UserID != "" {
		uid, _ := primitive.ObjectIDFromHex(req.UserID)
		order.UserID = &uid
	}

	reserved, currency, err := reserveItems(ctx, h.inventory, h.logger, adminID, req.Items)
	if err != nil {
		var se *stockError
		switch {
		case stderrors.As(err, &se) && se.unknown:
			errors.BadRequest(c, se.Error())
		case stderrors.As(err, &se):
			errors.Conflict(c, se.Error())
		default:
			h.fail(c, err)
		}
		return
	}

	order.Currency = currency
	order.Items = reserved
	order.Total = order.ComputeTotal()
	order.History = []models.StatusChange{{Status: models.OrderPending, At: nowUTC(), By: middleware.MustIdentity(c).ID}}
	order.Touch()

	if _, err := h.mongoClient.NewQuery(mongo.CollOrders).Insert(ctx, order); err != nil {
		releaseItems(ctx, h.inventory, h.logger, reserved)
		h.fail(c, err)
		return
	}

	h.record(c, activity.ActionCreate, "order", order.ID.Hex(), fmt.Sprintf("%.2f %s", order.Total, order.Currency))
	h.notify(c, models.Notification{
		AdminID:       adminID,
		RecipientID:   adminID,
		RecipientRole: "admin",
		Type:          models.NotificationOrder,
		Title:         "New order",
		Message:       fmt.Sprintf("%s placed an order of %.2f %s", order.CustomerName, order.Total, order.Currency),
		Data:          map[string]interface{}{"order_id": order.ID.Hex()},
	})
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) ListOrders(c *gin.Context) {
	adminID, err := tenantID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	pagination := utils.ParsePagination(c)

	q := h.mongoClient.NewQuery(mongo.CollOrders).
		Eq("admin_id", adminID).
		EqIf("status", c.Query("status")).
		EqIf("customer_phone", c.Query("customer_phone"))
	if uid, err := primitive.ObjectIDFromHex(c.Query("user_id")); err == nil {
		q.Eq("user_id", uid)
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	orders := []models.Order{}
	total, err := q.Sort("created_at", false).FindPage(ctx, pagination.Skip(), int64(pagination.Limit), &orders)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPage(orders, pagination, total))
}

func (h *Handler) GetOrder(c *gin.Context) {
	var order models.Order
	if !h.findByID(c, mongo.CollOrders, c.Param("id"), &order) || !h.checkOwner(c, order.AdminID) {
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateOrderStatus moves an order along its lifecycle. Cancelling returns stock.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BindFailed(c, err)
		return
	}
	var order models.Order
	if !h.findByID(c, mongo.CollOrders, c.Param("id"), &order) || !h.checkOwner(c, order.AdminID) {
		return
	}
	if !order.CanTransition(req.Status) {
		errors.Conflict(c, fmt.Sprintf("cannot move order from %s to %s", order.Status, req.Status))
		return
	}

	ctx, cancel := h.dbCtx(c)
	defer cancel()

	change := models.StatusChange{Status: req.Status, At: nowUTC(), By: middleware.MustIdentity(c).ID}
	res, err := h.mongoClient.NewQuery(mongo.CollOrders).
		Eq("_id", order.ID).
		Eq("status", order.Status).
		ApplyOne(ctx, bson.M{
			"$set":  bson.M{"status": req.Status, "updated_at": change.At},
			"$push": bson.M{"history": change},
		})
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.ModifiedCount == 0 {
		errors.Conflict(c, "order was modified concurrently")
		return
	}
	if req.Status == models.OrderCancelled {
		releaseItems(ctx, h.inventory, h.logger, order.Items)
	}

	h.record(c, activity.ActionUpdate, "order", order.ID.Hex(), order.Status+" -> "+req.Status)
	order.Status = req.Status
	order.History = append(order.History, change)
	c.JSON(http.StatusOK, order)
}
