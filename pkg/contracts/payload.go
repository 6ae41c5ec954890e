package contracts

import (
	"encoding/json"
	"fmt"
)

// ActionKind discriminates the payload union.
type ActionKind string

// ActionKind constants.
const (
	ActionCampaignSend  ActionKind = "CAMPAIGN_SEND"
	ActionPriceChange   ActionKind = "PRICE_CHANGE"
	ActionListingCreate ActionKind = "LISTING_CREATE"
	ActionListingCancel ActionKind = "LISTING_CANCEL"
)

// ActionPayload is the tagged union describing what a proposal intends to do.
// Exactly one of the pointer fields matching Kind is set; Validate enforces
// this at the boundary so untyped maps never reach business logic.
type ActionPayload struct {
	Kind ActionKind `json:"kind"`

	CampaignSend  *CampaignSendAction  `json:"campaign_send,omitempty"`
	PriceChange   *PriceChangeAction   `json:"price_change,omitempty"`
	ListingCreate *ListingCreateAction `json:"listing_create,omitempty"`
	ListingCancel *ListingCancelAction `json:"listing_cancel,omitempty"`
}

// CampaignSendAction sends content to an audience over a messaging service.
type CampaignSendAction struct {
	Service    string   `json:"service"` // connector service name, e.g. "klaviyo"
	Audience   []string `json:"audience"`
	Subject    string   `json:"subject,omitempty"`
	Content    string   `json:"content"`
	CampaignID string   `json:"campaign_id,omitempty"` // set by the connector on success
}

// PriceChangeAction updates a product variant's price on a commerce platform.
type PriceChangeAction struct {
	Service   string  `json:"service"` // e.g. "shopify"
	SKU       string  `json:"sku"`
	ProductID string  `json:"product_id"`
	VariantID string  `json:"variant_id"`
	OldPrice  float64 `json:"old_price"`
	NewPrice  float64 `json:"new_price"`
}

// ListingCreateAction lists an item on an external marketplace.
type ListingCreateAction struct {
	Service   string  `json:"service"`
	SKU       string  `json:"sku"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"quantity"`
	ListingID string  `json:"listing_id,omitempty"`
}

// ListingCancelAction removes a previously created external listing.
type ListingCancelAction struct {
	Service   string `json:"service"`
	SKU       string `json:"sku"`
	ListingID string `json:"listing_id"`
}

// Validate checks the union discriminant matches exactly one populated arm
// and that the arm carries its required fields.
func (p *ActionPayload) Validate() error {
	set := 0
	if p.CampaignSend != nil {
		set++
	}
	if p.PriceChange != nil {
		set++
	}
	if p.ListingCreate != nil {
		set++
	}
	if p.ListingCancel != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("payload must populate exactly one action arm, got %d", set)
	}

	switch p.Kind {
	case ActionCampaignSend:
		a := p.CampaignSend
		if a == nil {
			return fmt.Errorf("kind %s: campaign_send arm missing", p.Kind)
		}
		if a.Service == "" || len(a.Audience) == 0 || a.Content == "" {
			return fmt.Errorf("campaign_send requires service, audience and content")
		}
	case ActionPriceChange:
		a := p.PriceChange
		if a == nil {
			return fmt.Errorf("kind %s: price_change arm missing", p.Kind)
		}
		if a.Service == "" || a.SKU == "" || a.ProductID == "" {
			return fmt.Errorf("price_change requires service, sku and product_id")
		}
		if a.NewPrice <= 0 {
			return fmt.Errorf("price_change new_price must be positive, got %v", a.NewPrice)
		}
	case ActionListingCreate:
		a := p.ListingCreate
		if a == nil {
			return fmt.Errorf("kind %s: listing_create arm missing", p.Kind)
		}
		if a.Service == "" || a.SKU == "" || a.Quantity <= 0 {
			return fmt.Errorf("listing_create requires service, sku and positive quantity")
		}
	case ActionListingCancel:
		a := p.ListingCancel
		if a == nil {
			return fmt.Errorf("kind %s: listing_cancel arm missing", p.Kind)
		}
		if a.Service == "" || a.ListingID == "" {
			return fmt.Errorf("listing_cancel requires service and listing_id")
		}
	default:
		return fmt.Errorf("unknown action kind %q", p.Kind)
	}
	return nil
}

// Service returns the downstream connector service this payload targets.
func (p *ActionPayload) Service() string {
	switch p.Kind {
	case ActionCampaignSend:
		return p.CampaignSend.Service
	case ActionPriceChange:
		return p.PriceChange.Service
	case ActionListingCreate:
		return p.ListingCreate.Service
	case ActionListingCancel:
		return p.ListingCancel.Service
	}
	return ""
}

// ResourceKeys returns the business resource keys (SKUs, campaign audiences)
// that must be locked before execution.
func (p *ActionPayload) ResourceKeys() []string {
	switch p.Kind {
	case ActionCampaignSend:
		if p.CampaignSend.CampaignID != "" {
			return []string{"campaign:" + p.CampaignSend.CampaignID}
		}
		return nil
	case ActionPriceChange:
		return []string{"sku:" + p.PriceChange.SKU}
	case ActionListingCreate:
		return []string{"sku:" + p.ListingCreate.SKU}
	case ActionListingCancel:
		return []string{"sku:" + p.ListingCancel.SKU}
	}
	return nil
}

// InventoryDelta returns the resource key and quantity a payload would hold
// against real stock, or ok=false for non-inventory-affecting actions.
func (p *ActionPayload) InventoryDelta() (key string, qty int64, ok bool) {
	if p.Kind == ActionListingCreate && p.ListingCreate != nil {
		return "sku:" + p.ListingCreate.SKU, p.ListingCreate.Quantity, true
	}
	return "", 0, false
}

// MarshalPayload round-trips the union for persistence.
func MarshalPayload(p *ActionPayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

// UnmarshalPayload parses and re-validates a persisted payload.
func UnmarshalPayload(raw string) (*ActionPayload, error) {
	var p ActionPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("persisted payload invalid: %w", err)
	}
	return &p, nil
}
