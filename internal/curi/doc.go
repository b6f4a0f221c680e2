// Package curi models a discovered URI as it moves through the crawler: its
// identity, the hop path from the nearest seed, the referring URI, and a
// mutable attribute bag whose heritable keys follow the URI into its
// descendants.
package curi
