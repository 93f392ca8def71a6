package handlers

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/internal/models"
	"github.com/troikatech/engage-api/pkg/mongo"
)

// memInventory mirrors the conditional writes of mongoInventory.
type memInventory struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]*models.Product
	catalogs map[primitive.ObjectID]*models.ProductCatalog
}

func newMemInventory() *memInventory {
	return &memInventory{
		products: map[primitive.ObjectID]*models.Product{},
		catalogs: map[primitive.ObjectID]*models.ProductCatalog{},
	}
}

func (m *memInventory) addProduct(adminID primitive.ObjectID, name string, stock int, price float64) primitive.ObjectID {
	p := &models.Product{AdminID: adminID, Name: name, Stock: stock, Price: price, Currency: "INR", IsActive: true}
	p.ID = primitive.NewObjectID()
	m.products[p.ID] = p
	return p.ID
}

func (m *memInventory) addCatalog(adminID primitive.ObjectID, isDefault bool) models.ProductCatalog {
	c := &models.ProductCatalog{AdminID: adminID, Name: "catalog", IsDefault: isDefault}
	c.ID = primitive.NewObjectID()
	m.catalogs[c.ID] = c
	return *c
}

func (m *memInventory) stock(id primitive.ObjectID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memInventory) Product(_ context.Context, adminID, productID primitive.ObjectID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.AdminID != adminID {
		return nil, mongo.ErrNoDocuments
	}
	cp := *p
	return &cp, nil
}

func (m *memInventory) Reserve(_ context.Context, productID primitive.ObjectID, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (m *memInventory) Release(_ context.Context, productID primitive.ObjectID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[productID]; ok {
		p.Stock += qty
	}
	return nil
}

func (m *memInventory) ClearDefaults(_ context.Context, adminID, keep primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.catalogs {
		if c.AdminID == adminID && id != keep && c.IsDefault {
			c.IsDefault = false
		}
	}
	return nil
}

func (m *memInventory) MarkDefault(_ context.Context, catalogID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.catalogs[catalogID]; ok {
		c.IsDefault = true
	}
	return nil
}

func (m *memInventory) defaults(adminID primitive.ObjectID) []primitive.ObjectID {
	var out []primitive.ObjectID
	for id, c := range m.catalogs {
		if c.AdminID == adminID && c.IsDefault {
			out = append(out, id)
		}
	}
	return out
}

func TestReserveItems_SnapshotsPricesAndDecrementsStock(t *testing.T) {
	inv := newMemInventory()
	admin := primitive.NewObjectID()
	soap := inv.addProduct(admin, "Soap", 5, 40)
	oil := inv.addProduct(admin, "Oil", 3, 120)

	items, currency, err := reserveItems(context.Background(), inv, zap.NewNop(), admin, []OrderItemRequest{
		{ProductID: soap.Hex(), Quantity: 2},
		{ProductID: oil.Hex(), Quantity: 3},
	})

	require.NoError(t, err)
	assert.Equal(t, "INR", currency)
	require.Len(t, items, 2)
	assert.Equal(t, 40.0, items[0].UnitPrice)
	assert.Equal(t, 3, inv.stock(soap))
	assert.Equal(t, 0, inv.stock(oil))
}

func TestReserveItems_ShortSecondLineReleasesFirst(t *testing.T) {
	inv := newMemInventory()
	admin := primitive.NewObjectID()
	soap := inv.addProduct(admin, "Soap", 5, 40)
	oil := inv.addProduct(admin, "Oil", 1, 120)

	items, _, err := reserveItems(context.Background(), inv, zap.NewNop(), admin, []OrderItemRequest{
		{ProductID: soap.Hex(), Quantity: 2},
		{ProductID: oil.Hex(), Quantity: 3},
	})

	var se *stockError
	require.True(t, stderrors.As(err, &se))
	assert.False(t, se.unknown)
	assert.Contains(t, se.Error(), "Oil")
	assert.Nil(t, items)
	assert.Equal(t, 5, inv.stock(soap))
	assert.Equal(t, 1, inv.stock(oil))
}

func TestReserveItems_OtherTenantsProductIsUnknown(t *testing.T) {
	inv := newMemInventory()
	admin := primitive.NewObjectID()
	mine := inv.addProduct(admin, "Soap", 5, 40)
	theirs := inv.addProduct(primitive.NewObjectID(), "Oil", 5, 120)

	_, _, err := reserveItems(context.Background(), inv, zap.NewNop(), admin, []OrderItemRequest{
		{ProductID: mine.Hex(), Quantity: 1},
		{ProductID: theirs.Hex(), Quantity: 1},
	})

	var se *stockError
	require.True(t, stderrors.As(err, &se))
	assert.True(t, se.unknown)
	assert.Equal(t, 5, inv.stock(mine))
	assert.Equal(t, 5, inv.stock(theirs))
}

func TestReleaseItems_CancelReturnsStock(t *testing.T) {
	inv := newMemInventory()
	admin := primitive.NewObjectID()
	soap := inv.addProduct(admin, "Soap", 5, 40)

	items, _, err := reserveItems(context.Background(), inv, zap.NewNop(), admin, []OrderItemRequest{
		{ProductID: soap.Hex(), Quantity: 4},
	})
	require.NoError(t, err)
	require.Equal(t, 1, inv.stock(soap))

	order := models.Order{Status: models.OrderConfirmed, Items: items}
	require.True(t, order.CanTransition(models.OrderCancelled))
	releaseItems(context.Background(), inv, zap.NewNop(), order.Items)

	assert.Equal(t, 5, inv.stock(soap))
}

func TestSwapDefault_LeavesExactlyOneDefault(t *testing.T) {
	inv := newMemInventory()
	admin := primitive.NewObjectID()
	other := primitive.NewObjectID()

	first := inv.addCatalog(admin, true)
	stale := inv.addCatalog(admin, true)
	next := inv.addCatalog(admin, false)
	foreign := inv.addCatalog(other, true)

	require.NoError(t, swapDefault(context.Background(), inv, next))

	assert.Equal(t, []primitive.ObjectID{next.ID}, inv.defaults(admin))
	assert.False(t, inv.catalogs[first.ID].IsDefault)
	assert.False(t, inv.catalogs[stale.ID].IsDefault)
	assert.Equal(t, []primitive.ObjectID{foreign.ID}, inv.defaults(other))
}
