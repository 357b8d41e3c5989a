package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"mercator-hq/warden/pkg/agent"
	"mercator-hq/warden/pkg/enhance"
	"mercator-hq/warden/pkg/interceptor"
	"mercator-hq/warden/pkg/plugins/router"
)

// Methods of the bundled inventory service.
var (
	lookupMethod  = interceptor.NewMethodKey("inventory.Service", "Lookup", "(map[string]string, []router.Instance, string) (int, error)")
	reserveMethod = interceptor.NewMethodKey("inventory.Service", "Reserve", "(map[string]string, []router.Instance, string, int) (string, error)")
)

// ErrOutOfStock is returned when a reservation exceeds the stock.
var ErrOutOfStock = errors.New("out of stock")

// inventory is a small in-process service whose methods run through the
// agent. Every call carries a header map for the tag and tracing plugins and
// the candidate instances for the router.
type inventory struct {
	lookup  *enhance.Method
	reserve *enhance.Method
	fleet   []router.Instance

	mu    sync.Mutex
	stock map[string]int
}

func defaultFleet() []router.Instance {
	return []router.Instance{
		{ID: "inv-eu-1", Address: "10.0.1.10:7000", Tags: map[string]string{"zone": "eu-west-1"}},
		{ID: "inv-eu-2", Address: "10.0.1.11:7000", Tags: map[string]string{"zone": "eu-west-1", "canary": "true"}},
		{ID: "inv-us-1", Address: "10.0.2.10:7000", Tags: map[string]string{"zone": "us-east-1"}, Weight: 2},
	}
}

func defaultStock() map[string]int {
	return map[string]int{"sku-apple": 120, "sku-pear": 40, "sku-plum": 5}
}

// newInventory declares the inventory methods on a and enhances them.
func newInventory(a *agent.Agent, stock map[string]int, fleet []router.Instance) (*inventory, error) {
	if err := a.Declare(lookupMethod, reserveMethod); err != nil {
		return nil, fmt.Errorf("failed to declare inventory methods: %w", err)
	}

	s := &inventory{stock: stock, fleet: fleet}
	var err error
	if s.lookup, err = a.Enhance(lookupMethod, s.doLookup); err != nil {
		return nil, err
	}
	if s.reserve, err = a.Enhance(reserveMethod, s.doReserve); err != nil {
		return nil, err
	}
	return s, nil
}

// Lookup returns the stock of sku.
func (s *inventory) Lookup(ctx context.Context, headers map[string]string, sku string) (int, error) {
	return enhance.Call[int](ctx, s.lookup, s, headers, s.fleet, sku)
}

// Reserve takes qty items of sku and returns the reservation id.
func (s *inventory) Reserve(ctx context.Context, headers map[string]string, sku string, qty int) (string, error) {
	return enhance.Call[string](ctx, s.reserve, s, headers, s.fleet, sku, qty)
}

// SKUs returns the known SKUs in order.
func (s *inventory) SKUs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	skus := make([]string, 0, len(s.stock))
	for sku := range s.stock {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

func (s *inventory) doLookup(inv *interceptor.Invocation) (any, error) {
	sku, _ := inv.Argument(2).(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.stock[sku]
	if !ok {
		return nil, fmt.Errorf("unknown sku %q", sku)
	}
	return n, nil
}

func (s *inventory) doReserve(inv *interceptor.Invocation) (any, error) {
	fleet, _ := inv.Argument(1).([]router.Instance)
	sku, _ := inv.Argument(2).(string)
	qty, _ := inv.Argument(3).(int)
	if qty <= 0 {
		return nil, fmt.Errorf("invalid quantity %d", qty)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.stock[sku]
	if !ok {
		return nil, fmt.Errorf("unknown sku %q", sku)
	}
	if qty > n {
		return nil, fmt.Errorf("reserve %d of %s: %w", qty, sku, ErrOutOfStock)
	}
	s.stock[sku] = n - qty

	target := "local"
	if len(fleet) > 0 {
		target = fleet[0].ID
	}
	return fmt.Sprintf("%s/%s/%d", target, sku, qty), nil
}
