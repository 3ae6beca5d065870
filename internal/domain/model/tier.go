package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"velvet-metal/internal/domain"

	"github.com/shopspring/decimal"
)

// FeatureKind tells which field of a FeatureValue is set.
type FeatureKind int

const (
	FeatureNumber FeatureKind = iota + 1
	FeatureBool
	FeatureText
)

// FeatureValue is one entry of a tier's feature table. Exactly one of
// Number, Bool or Text is meaningful, selected by Kind.
type FeatureValue struct {
	Kind   FeatureKind
	Number float64
	Bool   bool
	Text   string
}

func NumberFeature(n float64) FeatureValue { return FeatureValue{Kind: FeatureNumber, Number: n} }
func BoolFeature(b bool) FeatureValue      { return FeatureValue{Kind: FeatureBool, Bool: b} }
func TextFeature(s string) FeatureValue    { return FeatureValue{Kind: FeatureText, Text: s} }

// String renders the value the way the tier cards display it.
func (v FeatureValue) String() string {
	switch v.Kind {
	case FeatureNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case FeatureBool:
		if v.Bool {
			return "yes"
		}
		return "no"
	default:
		return v.Text
	}
}

func (v FeatureValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case FeatureNumber:
		return json.Marshal(v.Number)
	case FeatureBool:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Text)
	}
}

func (v *FeatureValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return domain.ErrInvalidArgument
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = TextFeature(s)
	case 't', 'f':
		var x bool
		if err := json.Unmarshal(b, &x); err != nil {
			return err
		}
		*v = BoolFeature(x)
	default:
		var n float64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("feature value %s: %w", b, domain.ErrInvalidArgument)
		}
		*v = NumberFeature(n)
	}
	return nil
}

// SubscriptionTier is a plan the user picks on the second wizard step.
type SubscriptionTier struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	TierLabel string                  `json:"tier"`
	Price     decimal.Decimal         `json:"price"`
	Features  map[string]FeatureValue `json:"features"`
}

func (t *SubscriptionTier) IsZero() bool { return t == nil || t.ID == "" }

// IsFree reports whether the tier costs nothing.
func (t *SubscriptionTier) IsFree() bool { return t.Price.IsZero() }

// DisplayPrice formats the price with exactly two decimal places.
func (t *SubscriptionTier) DisplayPrice() string { return t.Price.StringFixed(2) }

// FeatureKeys returns the feature keys in a stable order for rendering.
func (t *SubscriptionTier) FeatureKeys() []string {
	keys := make([]string, 0, len(t.Features))
	for k := range t.Features {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewSubscriptionTier validates and constructs a tier. The price is rounded
// to cents.
func NewSubscriptionTier(id, name, label string, price decimal.Decimal, features map[string]FeatureValue) (*SubscriptionTier, error) {
	if id == "" || name == "" || price.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	if features == nil {
		features = map[string]FeatureValue{}
	}
	return &SubscriptionTier{
		ID:        id,
		Name:      name,
		TierLabel: label,
		Price:     price.Round(2),
		Features:  features,
	}, nil
}

// SortTiersByPrice orders tiers by ascending price, breaking ties by ID so the
// rendered order never depends on the store's row order.
func SortTiersByPrice(tiers []*SubscriptionTier) {
	sort.SliceStable(tiers, func(i, j int) bool {
		if c := tiers[i].Price.Cmp(tiers[j].Price); c != 0 {
			return c < 0
		}
		return tiers[i].ID < tiers[j].ID
	})
}

// FindTier returns the tier with the given id, or nil.
func FindTier(tiers []*SubscriptionTier, id string) *SubscriptionTier {
	for _, t := range tiers {
		if t.ID == id {
			return t
		}
	}
	return nil
}
