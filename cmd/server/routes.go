package main

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"request_pipeline/internal/cache"
	"request_pipeline/internal/dispatch"
	"request_pipeline/internal/extra"
	"request_pipeline/internal/responder"
	"request_pipeline/internal/route"
	"request_pipeline/internal/web"
)

// item is a catalog entry served by the demo routes.
type item struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type catalog struct {
	mu    sync.RWMutex
	items map[int]item
}

func newCatalog() *catalog {
	return &catalog{items: map[int]item{
		1: {ID: 1, Name: "Bolt M6", Price: 0.12},
		2: {ID: 2, Name: "Nut M6", Price: 0.05},
		3: {ID: 3, Name: "Washer M6", Price: 0.02},
	}}
}

func (c *catalog) list() []item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *catalog) get(id int) (item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	return it, ok
}

// register installs the catalog controllers.
func (c *catalog) register(controllers *dispatch.Controllers) {
	controllers.Register("items.list", func(*web.Context, any) (any, error) {
		return c.list(), nil
	})

	controllers.Register("items.get", func(ctx *web.Context, _ any) (any, error) {
		id, err := strconv.Atoi(ctx.Param("id"))
		if err != nil {
			return nil, web.NewError(http.StatusBadRequest, "invalid item id")
		}
		it, ok := c.get(id)
		if !ok {
			return nil, web.Errorf(http.StatusNotFound, "item %d not found", id)
		}
		return it, nil
	})

	controllers.Register("items.export", func(*web.Context, any) (any, error) {
		table := &responder.Table{Sheet: "Items", Columns: []string{"ID", "Name", "Price"}, Filename: "items.xlsx"}
		for _, it := range c.list() {
			table.Rows = append(table.Rows, []any{it.ID, it.Name, it.Price})
		}
		return table, nil
	})

	controllers.Register("me", func(ctx *web.Context, _ any) (any, error) {
		claims, _ := ctx.Value(extra.ClaimsKey)
		return claims, nil
	})

	controllers.Register("status", func(*web.Context, any) (any, error) {
		return "ok", nil
	})
}

// routes builds the demo route tree.
func routes() *route.Tree {
	listKey := cache.RequestKey(cache.KeyOptions{IncludeQuery: true})

	return route.New(
		&route.Group{Prefix: "/api", Routes: []route.Node{
			&route.Leaf{Pattern: "/items", Route: &web.Route{
				Name:       "items.list",
				Methods:    []string{http.MethodGet},
				Controller: web.ControllerPoint{Name: "items.list"},
				Responder:  web.ResponderPoint{Name: "json"},
				Cache: &web.CacheSpec{
					TTL:       30 * time.Second,
					Mode:      web.CacheModeController,
					Cacheable: cache.SafeMethods,
					Key:       listKey,
				},
			}},
			&route.Leaf{Pattern: "/items/{id}", Route: &web.Route{
				Name:       "items.get",
				Methods:    []string{http.MethodGet},
				Controller: web.ControllerPoint{Name: "items.get"},
				Responder:  web.ResponderPoint{Name: "json"},
				Cache: &web.CacheSpec{
					TTL:       time.Minute,
					Mode:      web.CacheModeBody,
					Cacheable: cache.SafeMethods,
				},
			}},
			&route.Leaf{Pattern: "/items.xlsx", Route: &web.Route{
				Name:       "items.export",
				Methods:    []string{http.MethodGet},
				Controller: web.ControllerPoint{Name: "items.export"},
				Responder:  web.ResponderPoint{Name: "xlsx", Props: responder.XLSXProps{Filename: "items.xlsx"}},
				Cache:      &web.CacheSpec{TTL: 5 * time.Minute, Mode: web.CacheModeBody},
			}},
			&route.Leaf{Pattern: "/me", Route: &web.Route{
				Name:       "me",
				Methods:    []string{http.MethodGet},
				Controller: web.ControllerPoint{Name: "me"},
				Responder:  web.ResponderPoint{Name: "json"},
				Middleware: []web.MiddlewarePoint{
					{Name: "auth.jwt"},
					{Name: "headers", Props: map[string]string{"Cache-Control": "no-store"}},
				},
			}},
		}},
		&route.Leaf{Pattern: "/status", Route: &web.Route{
			Name:       "status",
			Methods:    []string{http.MethodGet, http.MethodHead},
			Controller: web.ControllerPoint{Name: "status"},
			Responder:  web.ResponderPoint{Name: "text"},
			NoCORS:     true,
		}},
	)
}
