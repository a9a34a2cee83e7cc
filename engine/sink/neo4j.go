package sink

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rentscout/rentscout/engine/domain"
	"github.com/rentscout/rentscout/pkg/repo"
)

// listingNode is the property set stored on a Listing node.
type listingNode struct {
	Event
}

func listingProps(n listingNode) map[string]any {
	props := map[string]any{
		"url":        n.URL,
		"title":      n.Title,
		"run_id":     n.RunID,
		"scraped_at": n.ScrapedAt,
	}
	if n.Price != nil {
		props["price"] = int64(*n.Price)
	}
	if n.Beds != nil {
		props["beds"] = *n.Beds
	}
	if n.Baths != nil {
		props["baths"] = *n.Baths
	}
	if n.SqFt != nil {
		props["sqft"] = int64(*n.SqFt)
	}
	if n.Lat != nil && n.Lon != nil {
		props["location"] = neo4j.Point2D{X: *n.Lon, Y: *n.Lat, SpatialRefId: 4326}
		props["geohash"] = n.Geohash
	}
	for k, t := range map[string]domain.TriState{
		"furnished":          n.Furnished,
		"pets_allowed":       n.PetsAllowed,
		"utilities_included": n.UtilitiesIncluded,
		"parking_available":  n.ParkingAvailable,
	} {
		if b := triBool(t); b != nil {
			props[k] = *b
		}
	}
	if n.PostDate != "" {
		props["post_date"] = n.PostDate
	}
	return props
}

// graphStore is the part of repo.Neo4jRepo the mirror uses.
type graphStore interface {
	Upsert(ctx context.Context, n listingNode) error
	Relate(ctx context.Context, id, rel, label, key string, value any) error
}

// Neo4j mirrors events as (:Listing)-[:LOCATED_IN]->(:City) graphs.
type Neo4j struct {
	listings graphStore
	close    func(context.Context) error
}

// OpenNeo4j connects to url and ensures the Listing url constraint. An
// empty database uses the server default.
func OpenNeo4j(ctx context.Context, url, user, pass, database string) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(url, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connect: %w", err)
	}
	listings := repo.NewNeo4jRepo[listingNode, string](driver, "Listing", listingProps,
		repo.WithIDKey[listingNode, string]("url"),
		repo.WithDatabase[listingNode, string](database))
	if err := listings.EnsureConstraint(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j constraint: %w", err)
	}
	return &Neo4j{listings: listings, close: driver.Close}, nil
}

func (n *Neo4j) Emit(ctx context.Context, ev Event) error {
	if err := n.listings.Upsert(ctx, listingNode{ev}); err != nil {
		return fmt.Errorf("neo4j listing %s: %w", ev.URL, err)
	}
	if ev.City == "" {
		return nil
	}
	if err := n.listings.Relate(ctx, ev.URL, "LOCATED_IN", "City", "name", ev.City); err != nil {
		return fmt.Errorf("neo4j city %s: %w", ev.URL, err)
	}
	return nil
}

func (n *Neo4j) Close(ctx context.Context) error {
	if n.close == nil {
		return nil
	}
	return n.close(ctx)
}
