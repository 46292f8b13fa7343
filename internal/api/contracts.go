package api

import "github.com/Meesho/BharatMLStack/proxy-pool/internal/egress"

type ErrorResponse struct {
	Error string `json:"error"`
}

type ListEndpointsResponse struct {
	Data []egress.EndpointStatus `json:"data"`
}

type RegisterEndpointsRequest struct {
	Endpoints []egress.Endpoint `json:"endpoints"`
}

type CooldownRequest struct {
	Seconds int64 `json:"seconds"`
}

type EndpointActionResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}
