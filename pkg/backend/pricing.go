package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/lithammer/shortuuid"
)

const HoursPerMonth = 730

const priceCacheFile = "instance_prices.json"

// the pricing API filters on location names, not region codes
var regionLocations = map[string]string{
	"us-east-1":      "US East (N. Virginia)",
	"us-east-2":      "US East (Ohio)",
	"us-west-1":      "US West (N. California)",
	"us-west-2":      "US West (Oregon)",
	"eu-west-1":      "EU (Ireland)",
	"eu-west-2":      "EU (London)",
	"eu-west-3":      "EU (Paris)",
	"eu-central-1":   "EU (Frankfurt)",
	"eu-north-1":     "EU (Stockholm)",
	"eu-south-1":     "EU (Milan)",
	"ap-northeast-1": "Asia Pacific (Tokyo)",
	"ap-northeast-2": "Asia Pacific (Seoul)",
	"ap-northeast-3": "Asia Pacific (Osaka)",
	"ap-southeast-1": "Asia Pacific (Singapore)",
	"ap-southeast-2": "Asia Pacific (Sydney)",
	"ap-south-1":     "Asia Pacific (Mumbai)",
	"sa-east-1":      "South America (Sao Paulo)",
	"ca-central-1":   "Canada (Central)",
}

// RegionLocation returns the pricing location name of a region.
func RegionLocation(region string) (string, bool) {
	l, ok := regionLocations[region]
	return l, ok
}

// Price is an hourly on-demand price in USD. Known is false when no price could be found.
type Price struct {
	Hourly       float64
	Known        bool
	UsedFallback bool
}

func (p Price) Monthly() float64 {
	return p.Hourly * HoursPerMonth
}

// FormatPrice renders a price in dollars, "-" when unknown.
func FormatPrice(p float64, known bool) string {
	if !known {
		return "-"
	}
	if p < 0.01 {
		return fmt.Sprintf("$%.4f", p)
	}
	return fmt.Sprintf("$%.2f", p)
}

type priceCacheEntry struct {
	Hourly float64   `json:"hourly"`
	Known  bool      `json:"known"`
	Ts     time.Time `json:"ts"`
}

type priceCache struct {
	Prices map[string]*priceCacheEntry `json:"prices"`
}

var priceCacheLock = new(sync.Mutex)

type priceProduct struct {
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// GetInstancePrice returns the Linux on-demand hourly price of an instance type.
// Regions without a known location use us-east-1 pricing and set UsedFallback.
// Lookup failures produce an unknown price rather than an error.
func (b *Backend) GetInstancePrice(instanceType string, region string) Price {
	log := b.log.WithPrefix("GetInstancePrice: job=" + shortuuid.New() + " type=" + instanceType + " ")
	log.Detail("Start")
	defer log.Detail("End")
	if region == "" {
		region = b.region
	}
	res := Price{}
	location, ok := regionLocations[region]
	if !ok {
		res.UsedFallback = true
		region = PricingRegion
		location = regionLocations[PricingRegion]
	}
	key := region + "/" + instanceType
	if e := b.cachedPrice(key); e != nil {
		log.Detail("cache hit")
		res.Hourly, res.Known = e.Hourly, e.Known
		return res
	}
	hourly, known, err := b.priceFromAWS(instanceType, location)
	if err != nil {
		log.Detail("pricing lookup failed: %s", err)
		return res
	}
	res.Hourly, res.Known = hourly, known
	if err := b.storePrice(key, hourly, known); err != nil {
		log.Detail("could not write price cache: %s", err)
	}
	return res
}

func (b *Backend) priceFromAWS(instanceType string, location string) (float64, bool, error) {
	filter := func(field, value string) types.Filter {
		return types.Filter{
			Type:  types.FilterTypeTermMatch,
			Field: aws.String(field),
			Value: aws.String(value),
		}
	}
	out, err := b.pricing.GetProducts(context.TODO(), &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		Filters: []types.Filter{
			filter("instanceType", instanceType),
			filter("location", location),
			filter("operatingSystem", "Linux"),
			filter("tenancy", "Shared"),
			filter("preInstalledSw", "NA"),
			filter("capacitystatus", "Used"),
		},
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return 0, false, wrapErr("Pricing", "GetProducts", err)
	}
	if len(out.PriceList) == 0 {
		return 0, false, nil
	}
	hourly, ok := parseOnDemandUSD(out.PriceList[0])
	return hourly, ok, nil
}

func parseOnDemandUSD(priceJSON string) (float64, bool) {
	p := &priceProduct{}
	if err := json.Unmarshal([]byte(priceJSON), p); err != nil {
		return 0, false
	}
	for _, term := range p.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			usd, ok := dim.PricePerUnit["USD"]
			if !ok || usd == "" {
				continue
			}
			v, err := strconv.ParseFloat(usd, 64)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}

func (b *Backend) priceCachePath() string {
	if b.workDir == "" {
		return ""
	}
	return path.Join(b.workDir, priceCacheFile)
}

func (b *Backend) readPriceCache() *priceCache {
	pc := &priceCache{Prices: make(map[string]*priceCacheEntry)}
	f := b.priceCachePath()
	if f == "" {
		return pc
	}
	fd, err := os.Open(f)
	if err != nil {
		return pc
	}
	defer fd.Close()
	if err := json.NewDecoder(fd).Decode(pc); err != nil || pc.Prices == nil {
		pc.Prices = make(map[string]*priceCacheEntry)
	}
	return pc
}

func (b *Backend) cachedPrice(key string) *priceCacheEntry {
	priceCacheLock.Lock()
	defer priceCacheLock.Unlock()
	e, ok := b.readPriceCache().Prices[key]
	if !ok || b.now().Sub(e.Ts) > b.cacheTTL {
		return nil
	}
	return e
}

func (b *Backend) storePrice(key string, hourly float64, known bool) error {
	f := b.priceCachePath()
	if f == "" {
		return nil
	}
	priceCacheLock.Lock()
	defer priceCacheLock.Unlock()
	pc := b.readPriceCache()
	pc.Prices[key] = &priceCacheEntry{
		Hourly: hourly,
		Known:  known,
		Ts:     b.now(),
	}
	fd, err := os.Create(f)
	if err != nil {
		return err
	}
	defer fd.Close()
	return json.NewEncoder(fd).Encode(pc)
}

// PriceCacheInvalidate removes the on-disk price cache.
func (b *Backend) PriceCacheInvalidate() {
	if f := b.priceCachePath(); f != "" {
		os.Remove(f)
	}
}
