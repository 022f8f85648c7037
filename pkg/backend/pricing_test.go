package backend

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const t3microPrice = `{"product":{"attributes":{"instanceType":"t3.micro"}},"terms":{"OnDemand":{"ABC.JRTCKXETXF":{"priceDimensions":{"ABC.JRTCKXETXF.6YS6EN2CT7":{"unit":"Hrs","pricePerUnit":{"USD":"0.0104000000"}}}}}}}`

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "-", FormatPrice(0, false))
	assert.Equal(t, "$0.0052", FormatPrice(0.0052, true))
	assert.Equal(t, "$0.01", FormatPrice(0.0104, true))
	assert.Equal(t, "$7.59", FormatPrice(7.592, true))
	assert.Equal(t, "$0.0000", FormatPrice(0, true))
}

func TestParseOnDemandUSD(t *testing.T) {
	v, ok := parseOnDemandUSD(t3microPrice)
	require.True(t, ok)
	assert.InDelta(t, 0.0104, v, 1e-9)

	_, ok = parseOnDemandUSD(`{"terms":{"OnDemand":{}}}`)
	assert.False(t, ok)
	_, ok = parseOnDemandUSD(`not json`)
	assert.False(t, ok)
}

func TestGetInstancePriceFiltersAndCache(t *testing.T) {
	var got *pricing.GetProductsInput
	fp := &fakePricing{getProducts: func(in *pricing.GetProductsInput) (*pricing.GetProductsOutput, error) {
		got = in
		return &pricing.GetProductsOutput{PriceList: []string{t3microPrice}}, nil
	}}
	b := newTestBackend(t, &Clients{Pricing: fp})
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return now })

	p := b.GetInstancePrice("t3.micro", "eu-west-1")
	require.True(t, p.Known)
	assert.False(t, p.UsedFallback)
	assert.InDelta(t, 0.0104, p.Hourly, 1e-9)
	assert.InDelta(t, 0.0104*730, p.Monthly(), 1e-9)
	assert.Equal(t, "AmazonEC2", aws.ToString(got.ServiceCode))
	assert.EqualValues(t, 1, aws.ToInt32(got.MaxResults))
	fields := map[string]string{}
	for _, f := range got.Filters {
		fields[aws.ToString(f.Field)] = aws.ToString(f.Value)
	}
	assert.Equal(t, map[string]string{
		"instanceType":    "t3.micro",
		"location":        "EU (Ireland)",
		"operatingSystem": "Linux",
		"tenancy":         "Shared",
		"preInstalledSw":  "NA",
		"capacitystatus":  "Used",
	}, fields)

	b.GetInstancePrice("t3.micro", "eu-west-1")
	assert.Equal(t, 1, fp.calls)

	now = now.Add(25 * time.Hour)
	b.GetInstancePrice("t3.micro", "eu-west-1")
	assert.Equal(t, 2, fp.calls)
}

func TestGetInstancePriceFallbackRegion(t *testing.T) {
	var location string
	fp := &fakePricing{getProducts: func(in *pricing.GetProductsInput) (*pricing.GetProductsOutput, error) {
		for _, f := range in.Filters {
			if aws.ToString(f.Field) == "location" {
				location = aws.ToString(f.Value)
			}
		}
		return &pricing.GetProductsOutput{PriceList: []string{t3microPrice}}, nil
	}}
	b := newTestBackend(t, &Clients{Pricing: fp})
	p := b.GetInstancePrice("t3.micro", "me-central-1")
	assert.True(t, p.Known)
	assert.True(t, p.UsedFallback)
	assert.Equal(t, "US East (N. Virginia)", location)
}

func TestGetInstancePriceFailureIsUnknown(t *testing.T) {
	fp := &fakePricing{getProducts: func(in *pricing.GetProductsInput) (*pricing.GetProductsOutput, error) {
		return nil, apiErr("AccessDeniedException")
	}}
	b := newTestBackend(t, &Clients{Pricing: fp})
	p := b.GetInstancePrice("t3.micro", "eu-west-1")
	assert.False(t, p.Known)
	b.GetInstancePrice("t3.micro", "eu-west-1")
	assert.Equal(t, 2, fp.calls)
}

func TestGetInstancePriceEmptyListIsCached(t *testing.T) {
	fp := &fakePricing{getProducts: func(in *pricing.GetProductsInput) (*pricing.GetProductsOutput, error) {
		return &pricing.GetProductsOutput{}, nil
	}}
	b := newTestBackend(t, &Clients{Pricing: fp})
	assert.False(t, b.GetInstancePrice("x9.huge", "eu-west-1").Known)
	assert.False(t, b.GetInstancePrice("x9.huge", "eu-west-1").Known)
	assert.Equal(t, 1, fp.calls)
}

func TestRegionLocations(t *testing.T) {
	assert.Len(t, regionLocations, 18)
	l, ok := RegionLocation("sa-east-1")
	assert.True(t, ok)
	assert.Equal(t, "South America (Sao Paulo)", l)
}
