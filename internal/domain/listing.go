package domain

import "time"

// ListingStatus tracks the on-chain lifecycle of a produce listing.
type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusSoldOut  ListingStatus = "sold_out"
	ListingStatusDelisted ListingStatus = "delisted"
)

// Listing is a produce listing as the dashboard sees it: the on-chain record
// joined with its IPFS metadata.
type Listing struct {
	ID          uint64 // on-chain listing id
	Seller      string // 0x address
	MetadataCID string // IPFS content id of the metadata JSON
	UnitPrice   string // smallest-unit decimal string, set on chain
	Quantity    uint64
	Status      ListingStatus
	Metadata    ListingMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SellerProfile is the JSON document pinned to IPFS when a seller registers.
// The chain stores only its CID.
type SellerProfile struct {
	Name    string `json:"name"`
	Region  string `json:"region,omitempty"`
	Contact string `json:"contact,omitempty"`
	Bio     string `json:"bio,omitempty"`
}

// ListingMetadata is the JSON document pinned to IPFS for a listing. The
// chain stores only its CID.
type ListingMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"` // e.g. "vegetables", "fruit", "dairy"
	Unit        string `json:"unit"`     // e.g. "kg", "crate", "dozen"
	HarvestDate string `json:"harvest_date,omitempty"`
	Origin      string `json:"origin,omitempty"`
	ImageCID    string `json:"image_cid,omitempty"`
}
