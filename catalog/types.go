package catalog

import (
	"io"
	"math"

	"github.com/greenplanet/storefront/cart"
)

// Product is a catalog listing. The backend prices in currency units;
// PriceCents converts once, at the catalog boundary, so the cart only ever
// sees integer cents.
type Product struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Category    string   `json:"category,omitempty"`
	Stock       int      `json:"stock"`
	SellerName  string   `json:"sellerName,omitempty"`
	User        string   `json:"user,omitempty"`
	Images      []string `json:"images,omitempty"`
}

func (p Product) PriceCents() int64 {
	return int64(math.Round(p.Price * 100))
}

// CartProduct converts a listing into the cart's input shape.
func (p Product) CartProduct() cart.Product {
	imageRef := ""
	if len(p.Images) > 0 {
		imageRef = p.Images[0]
	}
	return cart.Product{
		ID:         p.ID,
		Name:       p.Name,
		PriceCents: p.PriceCents(),
		ImageRef:   imageRef,
		Category:   p.Category,
	}
}

// InStock is the view-layer gate: out-of-stock products never reach
// cart.AddItem.
func (p Product) InStock() bool {
	return p.Stock > 0
}

type Blog struct {
	ID              string   `json:"_id"`
	Title           string   `json:"title"`
	PlantType       string   `json:"plantType,omitempty"`
	Content         string   `json:"content"`
	CultivationTips string   `json:"cultivationTips,omitempty"`
	Author          string   `json:"author,omitempty"`
	User            string   `json:"user,omitempty"`
	Images          []string `json:"images,omitempty"`
}

type Donation struct {
	ID          string   `json:"_id"`
	PlantName   string   `json:"plantName"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Donor       string   `json:"donor,omitempty"`
	User        string   `json:"user,omitempty"`
	Claimed     bool     `json:"claimed,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// ImageUpload accompanies a create request. Its presence switches the
// request body from JSON to multipart.
type ImageUpload struct {
	FileName string
	Content  io.Reader
}

type CreateProductRequest struct {
	Name        string
	Description string
	Price       float64
	Category    string
	Stock       int
	SellerName  string
	Image       *ImageUpload
}

type CreateBlogRequest struct {
	Title           string
	PlantType       string
	Content         string
	CultivationTips string
	Image           *ImageUpload
}

type CreateDonationRequest struct {
	PlantName   string
	Description string
	Location    string
	DonorName   string
	Image       *ImageUpload
}
