package server

import (
	"encoding/json"
	"net/http"
)

type statsResponse struct {
	TotalConnections   int    `json:"totalConnections"`
	AuthenticatedUsers int    `json:"authenticatedUsers"`
	AdminUsers         int    `json:"adminUsers"`
	ActiveRooms        int    `json:"activeRooms"`
	Timestamp          string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
