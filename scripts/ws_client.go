// Package main runs a demo WebSocket client: it subscribes to a route, posts
// a location for it and prints what the server pushes back.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"logistrans/internal/hub"
	"logistrans/internal/model"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	routeID, driverID := uuid.New(), uuid.New()
	log.Printf("Route ID: %s  Driver ID: %s", routeID, driverID)

	// Connect WS (dev auth token)
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/ws", RawQuery: "token=demo:dispatcher"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	sub, err := hub.EncodeSubscribe(hub.DimRoute, routeID)
	if err != nil {
		log.Fatal(err)
	}
	if err := c.WriteMessage(websocket.TextMessage, sub); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s", data)
		}
	}()

	// Report a fix as the driver
	time.Sleep(500 * time.Millisecond)
	body, _ := json.Marshal(model.UpdateLocationRequest{
		RouteID:   routeID,
		VehicleID: uuid.New(),
		DriverID:  driverID,
		Latitude:  40.7128,
		Longitude: -74.006,
		Speed:     8.5,
		Heading:   90,
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/api/tracking/location", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+driverID.String()+":driver")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("POST location -> %s", resp.Status)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
