// Package resource describes the record types a lookup-service instance can serve.
package resource

import (
	"fmt"
	"sort"
	"strings"
)

// Def is one servable resource. Versioned resources inject latency by api_version and expose the
// legacy find_<name> route pinned to version 1.
type Def struct {
	Name        string
	IDField     string
	Versioned   bool
	DefaultAddr string
	DefaultFile string
	// Banner is the API name reported by GET /.
	Banner string
}

func (d Def) LookupPath() string { return "/" + d.Name + "_lookup" }

func (d Def) LegacyPath() string { return "/find_" + d.Name }

// CheckStep names the span wrapping the injected latency.
func (d Def) CheckStep() string { return "check_" + d.Name }

func (d Def) RootMessage() string {
	return fmt.Sprintf("%s: please access %s", d.Banner, d.LookupPath())
}

func (d Def) NotFoundMessage() string { return d.Name + " not found" }

var defs = map[string]Def{
	"user": {
		Name:        "user",
		IDField:     "user_id",
		Versioned:   true,
		DefaultAddr: ":5003",
		DefaultFile: "users.json",
		Banner:      "user-lookup-api",
	},
	"supplier": {
		Name:        "supplier",
		IDField:     "supplier_id",
		Versioned:   true,
		DefaultAddr: ":5004",
		DefaultFile: "suppliers.csv",
		Banner:      "supplier-lookup-api",
	},
	"product": {
		Name:        "product",
		IDField:     "product_id",
		DefaultAddr: ":5002",
		DefaultFile: "products.json",
		Banner:      "business-lookup-api",
	},
}

// Lookup returns the definition registered under name.
func Lookup(name string) (Def, error) {
	d, ok := defs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Def{}, fmt.Errorf("unknown resource %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	return d, nil
}

func Names() []string {
	out := make([]string, 0, len(defs))
	for n := range defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
