package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type ProductCatalog struct {
	Base        `bson:",inline"`
	AdminID     primitive.ObjectID `bson:"admin_id" json:"admin_id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Currency    string             `bson:"currency" json:"currency"`
	IsDefault   bool               `bson:"is_default" json:"is_default"`
}

type Product struct {
	Base        `bson:",inline"`
	SoftDelete  `bson:",inline"`
	AdminID     primitive.ObjectID  `bson:"admin_id" json:"admin_id"`
	CatalogID   *primitive.ObjectID `bson:"catalog_id,omitempty" json:"catalog_id,omitempty"`
	Name        string              `bson:"name" json:"name"`
	Description string              `bson:"description,omitempty" json:"description,omitempty"`
	SKU         string              `bson:"sku,omitempty" json:"sku,omitempty"`
	Price       float64             `bson:"price" json:"price"`
	Currency    string              `bson:"currency" json:"currency"`
	Stock       int                 `bson:"stock" json:"stock"`
	ImageURL    string              `bson:"image_url,omitempty" json:"image_url,omitempty"`
	IsActive    bool                `bson:"is_active" json:"is_active"`
}

// InStock reports whether qty units can be ordered.
func (p Product) InStock(qty int) bool {
	return p.IsActive && !p.IsDeleted() && p.Stock >= qty
}
