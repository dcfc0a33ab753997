// Package aggregate provides the fan-out aggregator for PokeAPI list endpoints.
//
// PokeAPI list endpoints return only {name, url} references. An Aggregator
// fetches the list once, then one detail record per entry in parallel, and
// zips both by index into enriched items. The result is all-or-nothing: a
// single failed detail fails the whole call and cancels the requests still
// in flight.
//
// Example usage:
//
//	client, _ := pokeapi.New(pokeapi.DefaultConfig("MyApp/1.0"))
//	berries, _ := aggregate.New(aggregate.Upstream[resource.BerryDetail](client), resource.Berries, aggregate.DefaultConfig())
//	items, err := berries.Aggregate(ctx)
//
// The aggregator:
//   - Fetches the list endpoint (1 request)
//   - Fans out detail requests bounded by MaxConcurrency (N requests)
//   - Preserves list order and length in the result
//   - Does not cache; caching is the caller's concern (see pkg/cache)
package aggregate
