package businessflow

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/amirphl/freightdesk/config"
	"github.com/amirphl/freightdesk/models"
	"github.com/amirphl/freightdesk/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Candidate outcomes recorded in a debug trace
const (
	TraceSelected                 = "selected"
	TraceGeographyMismatch        = "geography_mismatch"
	TraceLowerPriority            = "lower_priority"
	TraceBracketUnavailable       = "bracket_unavailable"
	TraceServiceAttributeMismatch = "service_attribute_mismatch"
)

// Shipment describes what is being priced.
type Shipment struct {
	DestinationCity   string
	Province          string
	PostalCode        string
	Weight            decimal.Decimal
	SkidCount         int
	ServiceAttributes map[string]string
}

func (s Shipment) geography(level string) string {
	switch level {
	case config.GeoMatchCity:
		return s.DestinationCity
	case config.GeoMatchPostalCode:
		return s.PostalCode
	case config.GeoMatchProvince:
		return s.Province
	}
	return ""
}

// TraceEntry explains what happened to one candidate record.
type TraceEntry struct {
	RecordID         uint
	PrioritySequence int
	Outcome          string
	Detail           string
}

// RateDecision is the resolver's answer. Matched=false is the no-match
// outcome; it is not an error.
type RateDecision struct {
	Matched    bool
	RecordID   uint
	RateCode   *string
	Price      decimal.Decimal
	Bracket    string
	MinApplied bool
	MatchedOn  string
	Trace      []TraceEntry
}

// RateResolver picks the applicable rate for a shipment
type RateResolver interface {
	Resolve(ctx context.Context, customerID uint, rateType string, shipment Shipment) (*RateDecision, error)
}

// RateResolverImpl implements the rate resolution flow
type RateResolverImpl struct {
	cache   *RateLookupCache
	storage RateStorage
	cfg     *EngineConfig
	logger  *zap.Logger
}

// NewRateResolver creates a resolver reading candidates from cache, or from
// storage directly when the new engine is switched off.
func NewRateResolver(cache *RateLookupCache, storage RateStorage, cfg *EngineConfig, logger *zap.Logger) RateResolver {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateResolverImpl{
		cache:   cache,
		storage: storage,
		cfg:     cfg,
		logger:  logger,
	}
}

// Resolve returns the first candidate, by priority sequence then id, whose
// geography and service attributes match and whose bracket yields a price.
func (r *RateResolverImpl) Resolve(ctx context.Context, customerID uint, rateType string, shipment Shipment) (*RateDecision, error) {
	if err := validateShipment(customerID, rateType, shipment); err != nil {
		rateResolutions.WithLabelValues("error").Inc()
		return nil, err
	}
	rateType = NormalizeRateType(rateType)

	candidates, err := r.candidates(ctx, customerID, rateType)
	if err != nil {
		rateResolutions.WithLabelValues("error").Inc()
		return nil, err
	}

	decision := &RateDecision{}
	trace := func(rec *models.RateRecord, outcome, detail string) {
		if !r.cfg.DebugMode {
			return
		}
		decision.Trace = append(decision.Trace, TraceEntry{
			RecordID:         rec.ID,
			PrioritySequence: rec.PrioritySequence,
			Outcome:          outcome,
			Detail:           detail,
		})
	}

	level, matched := r.matchGeography(candidates, shipment)
	decision.MatchedOn = level
	for i := range candidates {
		if _, ok := matched[candidates[i].ID]; !ok {
			trace(&candidates[i], TraceGeographyMismatch, "")
		}
	}

	for i := range candidates {
		rec := &candidates[i]
		if _, ok := matched[rec.ID]; !ok {
			continue
		}
		if decision.Matched {
			trace(rec, TraceLowerPriority, fmt.Sprintf("record %d selected first", decision.RecordID))
			continue
		}
		if name, ok := serviceAttributeMismatch(rec, shipment.ServiceAttributes); !ok {
			trace(rec, TraceServiceAttributeMismatch, name)
			continue
		}

		price, bracket, ok := r.price(rec, shipment)
		if !ok {
			trace(rec, TraceBracketUnavailable, "")
			continue
		}
		if rec.MinRate.Valid && price.LessThan(rec.MinRate.Decimal) {
			price = rec.MinRate.Decimal
			decision.MinApplied = true
		}

		decision.Matched = true
		decision.RecordID = rec.ID
		decision.RateCode = rec.RateCode
		decision.Price = price.Round(utils.MoneyScale)
		decision.Bracket = bracket
		trace(rec, TraceSelected, bracket)
	}

	if !decision.Matched {
		decision.MatchedOn = ""
		rateResolutions.WithLabelValues("no_match").Inc()
	} else {
		rateResolutions.WithLabelValues("matched").Inc()
	}

	if r.cfg.LogRateCalculations {
		r.logger.Info("rate resolved",
			zap.Uint("customer_id", customerID),
			zap.String("type", rateType),
			zap.Int("candidates", len(candidates)),
			zap.Bool("matched", decision.Matched),
			zap.Uint("record_id", decision.RecordID),
			zap.String("matched_on", decision.MatchedOn),
			zap.String("bracket", decision.Bracket),
			zap.String("price", decision.Price.StringFixed(utils.MoneyScale)),
			zap.Bool("min_applied", decision.MinApplied))
	}
	return decision, nil
}

func validateShipment(customerID uint, rateType string, s Shipment) error {
	if customerID == 0 {
		return validationError("CUSTOMER_ID_REQUIRED", "Customer ID is required")
	}
	if strings.TrimSpace(rateType) == "" {
		return validationError("RATE_TYPE_REQUIRED", "Rate type is required")
	}
	if strings.TrimSpace(s.DestinationCity) == "" && strings.TrimSpace(s.Province) == "" && strings.TrimSpace(s.PostalCode) == "" {
		return validationError("SHIPMENT_GEOGRAPHY_REQUIRED", "Destination city, postal code or province is required")
	}
	if s.Weight.IsNegative() || s.SkidCount < 0 {
		return validationError("SHIPMENT_QUANTITY_INVALID", "Weight and skid count must not be negative")
	}
	return nil
}

func (r *RateResolverImpl) candidates(ctx context.Context, customerID uint, rateType string) ([]models.RateRecord, error) {
	if r.cfg.UseNewEngine && r.cache != nil {
		return r.cache.Get(ctx, customerID, rateType)
	}

	records, err := r.storage.QueryActiveRecords(ctx, customerID, rateType)
	if err != nil {
		return nil, storageError("RATE_LOOKUP_FAILED", "Failed to load active rate records", err)
	}
	sortRateRecords(records)
	return records, nil
}

// matchGeography walks the precedence list and returns the first level on
// which the shipment has a value and at least one record matches.
func (r *RateResolverImpl) matchGeography(records []models.RateRecord, s Shipment) (string, map[uint]struct{}) {
	levels := r.cfg.GeoMatchPrecedence
	if len(levels) == 0 {
		levels = config.DefaultRateEngineConfig().GeoMatchPrecedence
	}

	for _, level := range levels {
		want := s.geography(level)
		if strings.TrimSpace(want) == "" {
			continue
		}

		matched := make(map[uint]struct{})
		for i := range records {
			if geographyMatches(level, &records[i], want) {
				matched[records[i].ID] = struct{}{}
			}
		}
		if len(matched) > 0 {
			return level, matched
		}
	}
	return "", nil
}

func geographyMatches(level string, rec *models.RateRecord, want string) bool {
	switch level {
	case config.GeoMatchCity:
		return rec.DestinationCity != nil && foldPlace(*rec.DestinationCity) == foldPlace(want)
	case config.GeoMatchProvince:
		return rec.Province != nil && foldPlace(*rec.Province) == foldPlace(want)
	case config.GeoMatchPostalCode:
		if rec.PostalCode == nil {
			return false
		}
		have := foldPostal(*rec.PostalCode)
		return have != "" && strings.HasPrefix(foldPostal(want), have)
	}
	return false
}

func foldPlace(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

func foldPostal(v string) string {
	return strings.ToUpper(strings.Join(strings.Fields(v), ""))
}

// serviceAttributeMismatch rejects a record that carries a requested service
// attribute with none of its values equal to the requested one.
func serviceAttributeMismatch(rec *models.RateRecord, wanted map[string]string) (string, bool) {
	names := make([]string, 0, len(wanted))
	for name := range wanted {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values := rec.AttributeValues(strings.TrimSpace(name))
		if len(values) == 0 {
			continue
		}
		want := strings.TrimSpace(wanted[name])
		found := false
		for _, v := range values {
			if strings.EqualFold(strings.TrimSpace(v), want) {
				found = true
				break
			}
		}
		if !found {
			return name, false
		}
	}
	return "", true
}

// bracketName matches a bare number or one tagged with a weight or skid unit:
// 500, 1000lbs, skid_3, 3_skids. Names like zone_2 or fsc_2024 are not brackets.
var bracketName = regexp.MustCompile(`(?i)^(?:skids?[_ -]?)?(\d+(?:\.\d+)?)(?:[_ -]?(?:lbs?|skids?))?$`)

type rateBracket struct {
	name      string
	threshold decimal.Decimal
	rate      decimal.Decimal
}

// numericBrackets collects attributes whose name is a bracket and whose value
// is a price, ordered by threshold.
func numericBrackets(rec *models.RateRecord) []rateBracket {
	var out []rateBracket
	for _, a := range rec.Attributes {
		m := bracketName.FindStringSubmatch(strings.TrimSpace(a.Name))
		if m == nil {
			continue
		}
		threshold, err := decimal.NewFromString(m[1])
		if err != nil {
			continue
		}
		rate := parseMoney(strings.TrimSpace(a.Value))
		if !rate.Valid {
			continue
		}
		out = append(out, rateBracket{name: a.Name, threshold: threshold, rate: rate.Decimal})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].threshold.LessThan(out[j].threshold)
	})
	return out
}

// price finds the bracket for the shipment quantity, falling back to the
// default bracket when the record has no numeric one or there is no quantity.
func (r *RateResolverImpl) price(rec *models.RateRecord, s Shipment) (decimal.Decimal, string, bool) {
	quantity := decimal.NewFromInt(int64(s.SkidCount))
	if rec.SkidByWeight {
		quantity = s.Weight
	}

	if brackets := numericBrackets(rec); len(brackets) > 0 && quantity.IsPositive() {
		chosen := brackets[0]
		for _, b := range brackets {
			if b.threshold.GreaterThan(quantity) {
				break
			}
			chosen = b
		}
		if rec.SkidByWeight {
			return chosen.rate.Mul(quantity).Div(decimal.NewFromInt(100)), chosen.name, true
		}
		return chosen.rate.Mul(quantity), chosen.name, true
	}

	name := strings.ToLower(strings.TrimSpace(r.cfg.DefaultSkidBracket))
	if name == "" {
		name = ColumnLTL
	}
	if name == ColumnLTL {
		if rec.LTL.Valid {
			return rec.LTL.Decimal, ColumnLTL, true
		}
		return decimal.Zero, "", false
	}
	for _, v := range rec.AttributeValues(name) {
		if p := parseMoney(strings.TrimSpace(v)); p.Valid {
			return p.Decimal, name, true
		}
	}
	return decimal.Zero, "", false
}
