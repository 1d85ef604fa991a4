package reviews

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dineledger/crypto"
)

const metadataURIPrefix = "data:application/json;base64,"

// Metadata is the display document rendered for a review token.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

// Attribute is one trait/value pair of the metadata document.
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// Metadata builds the display document for review id from stored fields.
func (e *Engine) Metadata(id uint64) (*Metadata, error) {
	review, err := e.Review(id)
	if err != nil {
		return nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	status := "Active"
	if !review.Active {
		status = "Inactive"
	}
	image := ""
	if cfg.BaseImageURI != "" {
		image = cfg.BaseImageURI + strconv.FormatUint(id, 10)
	}
	return &Metadata{
		Name:        fmt.Sprintf("Review #%d - %s", review.ID, review.RestaurantName),
		Description: review.Text,
		Image:       image,
		Attributes: []Attribute{
			{TraitType: "Restaurant", Value: review.RestaurantName},
			{TraitType: "Restaurant Address", Value: crypto.FormatAddress(review.Restaurant)},
			{TraitType: "Rating", Value: review.Rating},
			{TraitType: "Date", Value: time.Unix(int64(review.CreatedAt), 0).UTC().Format("2006-01-02")},
			{TraitType: "Bill ID", Value: review.BillID},
			{TraitType: "Tips", Value: review.TotalTips.String()},
			{TraitType: "Status", Value: status},
		},
	}, nil
}

// TokenURI returns the metadata document as a base64 JSON data URI.
func (e *Engine) TokenURI(id uint64) (string, error) {
	meta, err := e.Metadata(id)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("reviews: encode metadata: %w", err)
	}
	return metadataURIPrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTokenURI parses a data URI produced by TokenURI.
func DecodeTokenURI(uri string) (*Metadata, error) {
	payload, ok := strings.CutPrefix(uri, metadataURIPrefix)
	if !ok {
		return nil, fmt.Errorf("reviews: unexpected metadata uri prefix")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("reviews: decode metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("reviews: decode metadata: %w", err)
	}
	return &meta, nil
}
