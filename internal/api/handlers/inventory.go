package handlers

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/mongo"
)

// inventory is the set of product and catalog writes orders and catalogs
// depend on.
type inventory interface {
	Product(ctx context.Context, adminID, productID primitive.ObjectID) (*models.Product, error)
	// Reserve decrements stock only when at least qty remains.
	Reserve(ctx context.Context, productID primitive.ObjectID, qty int) (bool, error)
	Release(ctx context.Context, productID primitive.ObjectID, qty int) error
	ClearDefaults(ctx context.Context, adminID, keep primitive.ObjectID) error
	MarkDefault(ctx context.Context, catalogID primitive.ObjectID) error
}

type mongoInventory struct {
	client *mongo.Client
}

func (m mongoInventory) Product(ctx context.Context, adminID, productID primitive.ObjectID) (*models.Product, error) {
	var p models.Product
	if err := m.client.NewQuery(mongo.CollProducts).
		Eq("_id", productID).
		Eq("admin_id", adminID).
		FindOneInto(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m mongoInventory) Reserve(ctx context.Context, productID primitive.ObjectID, qty int) (bool, error) {
	res, err := m.client.NewQuery(mongo.CollProducts).
		Eq("_id", productID).
		Gte("stock", qty).
		ApplyOne(ctx, bson.M{"$inc": bson.M{"stock": -qty}, "$set": bson.M{"updated_at": nowUTC()}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (m mongoInventory) Release(ctx context.Context, productID primitive.ObjectID, qty int) error {
	_, err := m.client.NewQuery(mongo.CollProducts).
		Eq("_id", productID).
		ApplyOne(ctx, bson.M{"$inc": bson.M{"stock": qty}})
	return err
}

func (m mongoInventory) ClearDefaults(ctx context.Context, adminID, keep primitive.ObjectID) error {
	_, err := m.client.NewQuery(mongo.CollProductCatalogs).
		Eq("admin_id", adminID).
		Ne("_id", keep).
		Eq("is_default", true).
		Update(ctx, map[string]interface{}{"is_default": false, "updated_at": nowUTC()})
	return err
}

func (m mongoInventory) MarkDefault(ctx context.Context, catalogID primitive.ObjectID) error {
	_, err := m.client.NewQuery(mongo.CollProductCatalogs).
		Eq("_id", catalogID).
		UpdateOne(ctx, map[string]interface{}{"is_default": true, "updated_at": nowUTC()})
	return err
}

// stockError is a reservation refused for a business reason.
type stockError struct {
	product string
	unknown bool
}

func (e *stockError) Error() string {
	if e.unknown {
		return "unknown product " + e.product
	}
	return "insufficient stock for " + e.product
}

// reserveItems reserves each line in order and snapshots its price. The
// currency is the first product's. On any failure the lines already reserved
// are released and nothing is returned.
func reserveItems(ctx context.Context, inv inventory, log *zap.Logger, adminID primitive.ObjectID, items []OrderItemRequest) ([]models.OrderItem, string, error) {
	reserved := make([]models.OrderItem, 0, len(items))
	currency := ""
	for _, item := range items {
		pid, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			releaseItems(ctx, inv, log, reserved)
			return nil, "", &stockError{product: item.ProductID, unknown: true}
		}

		product, err := inv.Product(ctx, adminID, pid)
		if err != nil {
			releaseItems(ctx, inv, log, reserved)
			if stderrors.Is(err, mongo.ErrNoDocuments) {
				return nil, "", &stockError{product: item.ProductID, unknown: true}
			}
			return nil, "", err
		}
		if !product.InStock(item.Quantity) {
			releaseItems(ctx, inv, log, reserved)
			return nil, "", &stockError{product: product.Name}
		}
		ok, err := inv.Reserve(ctx, pid, item.Quantity)
		if err != nil {
			releaseItems(ctx, inv, log, reserved)
			return nil, "", fmt.Errorf("reserve %s: %w", product.Name, err)
		}
		if !ok {
			releaseItems(ctx, inv, log, reserved)
			return nil, "", &stockError{product: product.Name}
		}

		reserved = append(reserved, models.OrderItem{
			ProductID: pid,
			Name:      product.Name,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
		if currency == "" {
			currency = product.Currency
		}
	}
	return reserved, currency, nil
}

// releaseItems returns stock for every line. Failures are logged and the
// remaining lines are still released.
func releaseItems(ctx context.Context, inv inventory, log *zap.Logger, items []models.OrderItem) {
	for _, it := range items {
		if err := inv.Release(ctx, it.ProductID, it.Quantity); err != nil {
			log.Error("Failed to release stock", zap.String("product_id", it.ProductID.Hex()), zap.Error(err))
		}
	}
}

// swapDefault clears the tenant's other defaults, then sets catalog. The two
// writes are not atomic; a crash between them leaves no default, which the
// next swap repairs.
func swapDefault(ctx context.Context, inv inventory, catalog models.ProductCatalog) error {
	if err := inv.ClearDefaults(ctx, catalog.AdminID, catalog.ID); err != nil {
		return err
	}
	return inv.MarkDefault(ctx, catalog.ID)
}
