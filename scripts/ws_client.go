// Package main runs a demo WebSocket client: it submits an async plan and
// prints the plan's event stream.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dronenav/internal/model"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	host := flag.String("host", "localhost:"+port, "API host:port")
	seed := flag.Int64("seed", 1, "shuffle seed")
	flag.Parse()

	body, _ := json.Marshal(demoRequest(*seed))
	req, _ := http.NewRequest(http.MethodPost, "http://"+*host+"/v1/plans?async=true", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "planner")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal().Err(err).Msg("submit plan")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatal().Int("status", resp.StatusCode).Msg("unexpected response")
	}
	var sum model.PlanSummary
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		log.Fatal().Err(err).Msg("decode response")
	}
	log.Info().Str("plan", sum.ID).Msg("plan submitted")

	u := url.URL{Scheme: "ws", Host: *host, Path: "/v1/plans/" + sum.ID + "/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "viewer")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal().Err(err).Msg("dial")
	}
	defer func() { _ = c.Close() }()

	for {
		var evt struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := c.ReadJSON(&evt); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return
			}
			log.Fatal().Err(err).Msg("read")
		}
		fmt.Printf("%s %v\n", evt.Type, evt.Data)
	}
}

// demoRequest is a small problem: two warehouses, four orders, one of which
// cannot be stocked.
func demoRequest(seed int64) model.PlanRequest {
	return model.PlanRequest{
		Name:    "ws demo",
		Seed:    seed,
		Shuffle: true,
		Problem: model.ProblemIn{
			Rows: 20, Cols: 20, Drones: 2, MaxTurns: 80, MaxPayload: 200,
			ProductWeights: []int{50, 20, 150},
			Warehouses: []model.WarehouseIn{
				{Location: model.Point{X: 0, Y: 0}, Stock: []int{4, 4, 0}},
				{Location: model.Point{X: 12, Y: 7}, Stock: []int{0, 6, 1}},
			},
			Orders: []model.OrderIn{
				{Location: model.Point{X: 3, Y: 4}, Products: []int{0, 1}},
				{Location: model.Point{X: 15, Y: 9}, Products: []int{2}},
				{Location: model.Point{X: 18, Y: 18}, Products: []int{2, 2}},
				{Location: model.Point{X: 6, Y: 1}, Products: []int{1, 1, 0}},
			},
		},
	}
}
