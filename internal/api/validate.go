package api

import (
	"fmt"
	"net/url"
	"strconv"

	"dronenav/internal/model"
)

// Upper bounds on accepted problems. The Hash Code inputs stay well below.
const (
	maxDrones     = 1000
	maxOrders     = 100000
	maxWarehouses = 1000
	maxTypes      = 10000
	maxBodyBytes  = 32 << 20
)

func validatePlanRequest(req *model.PlanRequest) error {
	p := req.Problem
	if len(req.Name) > 200 {
		return fmt.Errorf("name longer than 200 characters")
	}
	if p.Drones > maxDrones {
		return fmt.Errorf("drones must be <= %d", maxDrones)
	}
	if len(p.Orders) > maxOrders {
		return fmt.Errorf("at most %d orders per plan", maxOrders)
	}
	if len(p.Warehouses) > maxWarehouses {
		return fmt.Errorf("at most %d warehouses per plan", maxWarehouses)
	}
	if len(p.ProductWeights) > maxTypes {
		return fmt.Errorf("at most %d product types per plan", maxTypes)
	}
	return nil
}

// applyPlanQuery lets query parameters override ordering fields, which is
// the only way to set them for text/plain uploads.
func applyPlanQuery(req *model.PlanRequest, q url.Values) error {
	if v := q.Get("name"); v != "" {
		req.Name = v
	}
	if v := q.Get("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("seed: %v", err)
		}
		req.Seed = n
	}
	if v := q.Get("shuffle"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("shuffle: %v", err)
		}
		req.Shuffle = b
	}
	return nil
}
