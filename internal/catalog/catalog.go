// Package catalog declares the exportable fields per source kind and their
// destination columns. The catalog is an immutable value object constructed
// once at startup; it is the single source of truth for destination naming,
// so no column name is ever derived from a source identifier by string
// transformation.
package catalog

import (
	"fmt"

	"metrika-etl/internal/domain"
)

// SortExpr is one component of a destination table's sort or sampling key.
// Expr is the rendered expression; Column names the destination column the
// expression requires, so the expression can be dropped when the column is
// not part of the resolved schema.
type SortExpr struct {
	Column string
	Expr   string
}

// Declaration is the input for one source kind's catalog entry.
type Declaration struct {
	Kind     domain.SourceKind
	Fields   []domain.Field
	OrderBy  []SortExpr
	SampleBy SortExpr // zero value means no sampling clause
}

type entry struct {
	fields   []domain.Field
	bySource map[string]domain.Field
	orderBy  []SortExpr
	sampleBy SortExpr
}

// Catalog is an immutable set of per-kind field declarations.
type Catalog struct {
	kinds   []domain.SourceKind
	entries map[domain.SourceKind]entry
}

// New builds a catalog from declarations, validating that every source ID
// and destination column is unique within its kind and every column type is
// recognized.
func New(decls ...Declaration) (*Catalog, error) {
	c := &Catalog{entries: make(map[domain.SourceKind]entry, len(decls))}
	for _, d := range decls {
		if d.Kind == "" {
			return nil, fmt.Errorf("catalog declaration without a source kind")
		}
		if _, exists := c.entries[d.Kind]; exists {
			return nil, fmt.Errorf("duplicate catalog declaration for %q", d.Kind)
		}
		if len(d.Fields) == 0 {
			return nil, fmt.Errorf("catalog declaration for %q has no fields", d.Kind)
		}

		e := entry{
			fields:   append([]domain.Field(nil), d.Fields...),
			bySource: make(map[string]domain.Field, len(d.Fields)),
			orderBy:  append([]SortExpr(nil), d.OrderBy...),
			sampleBy: d.SampleBy,
		}
		seenColumns := make(map[string]bool, len(d.Fields))
		for _, f := range d.Fields {
			if f.SourceID == "" || f.Column == "" {
				return nil, fmt.Errorf("%s: field with empty source ID or column", d.Kind)
			}
			if !f.Type.Valid() {
				return nil, fmt.Errorf("%s: field %s has unrecognized column type %q", d.Kind, f.SourceID, f.Type)
			}
			if _, dup := e.bySource[f.SourceID]; dup {
				return nil, fmt.Errorf("%s: duplicate source field %q", d.Kind, f.SourceID)
			}
			if seenColumns[f.Column] {
				return nil, fmt.Errorf("%s: duplicate destination column %q", d.Kind, f.Column)
			}
			e.bySource[f.SourceID] = f
			seenColumns[f.Column] = true
		}
		c.kinds = append(c.kinds, d.Kind)
		c.entries[d.Kind] = e
	}
	return c, nil
}

// Kinds returns the declared source kinds in declaration order.
func (c *Catalog) Kinds() []domain.SourceKind {
	return append([]domain.SourceKind(nil), c.kinds...)
}

// Has reports whether the kind is declared.
func (c *Catalog) Has(kind domain.SourceKind) bool {
	_, ok := c.entries[kind]
	return ok
}

// Fields returns the declared fields for a kind in declaration order.
func (c *Catalog) Fields(kind domain.SourceKind) []domain.Field {
	e, ok := c.entries[kind]
	if !ok {
		return nil
	}
	return append([]domain.Field(nil), e.fields...)
}

// SourceIDs returns the source field identifiers for a kind in declaration
// order. This is the candidate set for availability probing.
func (c *Catalog) SourceIDs(kind domain.SourceKind) []string {
	e, ok := c.entries[kind]
	if !ok {
		return nil
	}
	ids := make([]string, len(e.fields))
	for i, f := range e.fields {
		ids[i] = f.SourceID
	}
	return ids
}

// Field looks up a single field by source identifier.
func (c *Catalog) Field(kind domain.SourceKind, sourceID string) (domain.Field, bool) {
	e, ok := c.entries[kind]
	if !ok {
		return domain.Field{}, false
	}
	f, ok := e.bySource[sourceID]
	return f, ok
}

// SortKey returns the declared sort key expressions for a kind.
func (c *Catalog) SortKey(kind domain.SourceKind) []SortExpr {
	e, ok := c.entries[kind]
	if !ok {
		return nil
	}
	return append([]SortExpr(nil), e.orderBy...)
}

// SampleKey returns the declared sampling expression for a kind, if any.
func (c *Catalog) SampleKey(kind domain.SourceKind) (SortExpr, bool) {
	e, ok := c.entries[kind]
	if !ok || e.sampleBy.Expr == "" {
		return SortExpr{}, false
	}
	return e.sampleBy, true
}

// Default returns the built-in catalog: 8 event-level fields and 41
// session-level fields.
func Default() *Catalog {
	c, err := New(
		Declaration{
			Kind:     domain.SourceHits,
			Fields:   hitsFields,
			OrderBy:  []SortExpr{{Column: "ClientID", Expr: "intHash32(ClientID)"}, {Column: "EventDate", Expr: "EventDate"}},
			SampleBy: SortExpr{Column: "ClientID", Expr: "intHash32(ClientID)"},
		},
		Declaration{
			Kind:     domain.SourceVisits,
			Fields:   visitsFields,
			OrderBy:  []SortExpr{{Column: "ClientID", Expr: "intHash32(ClientID)"}, {Column: "StartDate", Expr: "StartDate"}},
			SampleBy: SortExpr{Column: "ClientID", Expr: "intHash32(ClientID)"},
		},
	)
	if err != nil {
		panic("catalog: invalid built-in declarations: " + err.Error())
	}
	return c
}

var hitsFields = []domain.Field{
	{SourceID: "ym:pv:browser", Column: "Browser", Type: domain.TypeString},
	{SourceID: "ym:pv:clientID", Column: "ClientID", Type: domain.TypeUInt64},
	{SourceID: "ym:pv:date", Column: "EventDate", Type: domain.TypeDate},
	{SourceID: "ym:pv:dateTime", Column: "EventTime", Type: domain.TypeDateTime},
	{SourceID: "ym:pv:deviceCategory", Column: "DeviceCategory", Type: domain.TypeString},
	{SourceID: "ym:pv:lastTrafficSource", Column: "TraficSource", Type: domain.TypeString},
	{SourceID: "ym:pv:operatingSystemRoot", Column: "OSRoot", Type: domain.TypeString},
	{SourceID: "ym:pv:URL", Column: "URL", Type: domain.TypeString},
}

var visitsFields = []domain.Field{
	{SourceID: "ym:s:visitID", Column: "VisitID", Type: domain.TypeUInt64},
	{SourceID: "ym:s:watchIDs", Column: "WatchIDs", Type: domain.TypeString},
	{SourceID: "ym:s:date", Column: "StartDate", Type: domain.TypeDate},
	{SourceID: "ym:s:dateTime", Column: "StartTime", Type: domain.TypeDateTime},
	{SourceID: "ym:s:isNewUser", Column: "IsNewUser", Type: domain.TypeUInt8},
	{SourceID: "ym:s:startURL", Column: "StartURL", Type: domain.TypeString},
	{SourceID: "ym:s:endURL", Column: "EndURL", Type: domain.TypeString},
	{SourceID: "ym:s:visitDuration", Column: "VisitDuration", Type: domain.TypeUInt32},
	{SourceID: "ym:s:bounce", Column: "Bounce", Type: domain.TypeUInt8},
	{SourceID: "ym:s:clientID", Column: "ClientID", Type: domain.TypeUInt64},
	{SourceID: "ym:s:goalsID", Column: "GoalsID", Type: domain.TypeString},
	{SourceID: "ym:s:goalsDateTime", Column: "GoalsDateTime", Type: domain.TypeString},
	{SourceID: "ym:s:referer", Column: "Referer", Type: domain.TypeString},
	{SourceID: "ym:s:deviceCategory", Column: "DeviceCategory", Type: domain.TypeString},
	{SourceID: "ym:s:operatingSystemRoot", Column: "OSRoot", Type: domain.TypeString},
	{SourceID: "ym:s:browser", Column: "Browser", Type: domain.TypeString},
	{SourceID: "ym:s:lastTrafficSource", Column: "TraficSource", Type: domain.TypeString},
	{SourceID: "ym:s:UTMCampaign", Column: "UTMCampaign", Type: domain.TypeString},
	{SourceID: "ym:s:UTMContent", Column: "UTMContent", Type: domain.TypeString},
	{SourceID: "ym:s:UTMMedium", Column: "UTMMedium", Type: domain.TypeString},
	{SourceID: "ym:s:UTMSource", Column: "UTMSource", Type: domain.TypeString},
	{SourceID: "ym:s:UTMTerm", Column: "UTMTerm", Type: domain.TypeString},
	{SourceID: "ym:s:TrafficSource", Column: "TrafficSource", Type: domain.TypeString},
	{SourceID: "ym:s:pageViews", Column: "PageViews", Type: domain.TypeUInt32},
	{SourceID: "ym:s:purchaseID", Column: "PurchaseID", Type: domain.TypeString},
	{SourceID: "ym:s:purchaseDateTime", Column: "PurchaseDateTime", Type: domain.TypeString},
	{SourceID: "ym:s:purchaseRevenue", Column: "PurchaseRevenue", Type: domain.TypeString},
	{SourceID: "ym:s:purchaseCurrency", Column: "PurchaseCurrency", Type: domain.TypeString},
	{SourceID: "ym:s:purchaseProductQuantity", Column: "PurchaseProductQuantity", Type: domain.TypeString},
	{SourceID: "ym:s:productsPurchaseID", Column: "ProductsPurchaseID", Type: domain.TypeString},
	{SourceID: "ym:s:productsID", Column: "ProductsID", Type: domain.TypeString},
	{SourceID: "ym:s:productsName", Column: "ProductsName", Type: domain.TypeString},
	{SourceID: "ym:s:productsCategory", Column: "ProductsCategory", Type: domain.TypeString},
	{SourceID: "ym:s:regionCity", Column: "RegionCity", Type: domain.TypeString},
	{SourceID: "ym:s:impressionsURL", Column: "ImpressionsURL", Type: domain.TypeString},
	{SourceID: "ym:s:impressionsDateTime", Column: "ImpressionsDateTime", Type: domain.TypeString},
	{SourceID: "ym:s:impressionsProductID", Column: "ImpressionsProductID", Type: domain.TypeString},
	{SourceID: "ym:s:AdvEngine", Column: "AdvEngine", Type: domain.TypeString},
	{SourceID: "ym:s:ReferalSource", Column: "ReferalSource", Type: domain.TypeString},
	{SourceID: "ym:s:SearchEngineRoot", Column: "SearchEngineRoot", Type: domain.TypeString},
	{SourceID: "ym:s:SearchPhrase", Column: "SearchPhrase", Type: domain.TypeString},
}
